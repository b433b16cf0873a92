// Package web serves the plan API, the projected agenda as JSON, HTML and
// iCalendar, and a live event stream.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"plancal/internal/caldate"
	"plancal/internal/config"
	appLog "plancal/internal/log"
	"plancal/internal/model"
	"plancal/internal/store"
)

// UserHeader names the user a request acts for.
const UserHeader = "X-User-ID"

// PlanStore is the plan repository the handlers use.
type PlanStore interface {
	Create(ctx context.Context, userID string, p *model.Plan) error
	Get(ctx context.Context, id string) (*model.Plan, error)
	ListByUser(ctx context.Context, userID string) ([]model.Plan, error)
	Update(ctx context.Context, id string, patch store.Patch) (*model.Plan, error)
	UpdateFrequency(ctx context.Context, id string, freq model.Frequency) (*model.Plan, error)
	ToggleStep(ctx context.Context, id string, index int) (*model.Plan, error)
	ToggleStepByID(ctx context.Context, id, stepID string) (*model.Plan, error)
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, userID string) <-chan []model.Plan
}

// FeedEvents yields the subscribed-feed events visible to a user.
type FeedEvents interface {
	EventsFor(userID string) []model.Event
}

// Server provides the HTTP API and pages.
type Server struct {
	cfg   *config.Config
	plans PlanStore
	feeds FeedEvents
	loc   *time.Location
	mux   *http.ServeMux

	// now is replaced in tests.
	now func() time.Time

	// Short-lived projections per user; dropped whenever that user's plans
	// change through the API.
	viewsMu sync.Mutex
	views   map[viewKey]cachedView
	gens    map[string]uint64
}

// NewServer constructs a Server. feeds may be nil.
func NewServer(cfg *config.Config, plans PlanStore, feeds FeedEvents) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}
	s := &Server{
		cfg:   cfg,
		plans: plans,
		feeds: feeds,
		loc:   loc,
		mux:   http.NewServeMux(),
		now:   time.Now,
		views: make(map[viewKey]cachedView),
		gens:  make(map[string]uint64),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped with Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if len(s.cfg.CORSOrigins) > 0 {
		// Preflights carry no credentials, so CORS sits outside basic auth.
		h = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", UserHeader},
			AllowCredentials: true,
		}).Handler(h)
	}
	return requestLog(h)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/plans", s.handleListPlans)
	s.mux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	s.mux.HandleFunc("GET /api/plans/{id}", s.handleGetPlan)
	s.mux.HandleFunc("PATCH /api/plans/{id}", s.handleUpdatePlan)
	s.mux.HandleFunc("DELETE /api/plans/{id}", s.handleDeletePlan)
	s.mux.HandleFunc("PUT /api/plans/{id}/frequency", s.handleUpdateFrequency)
	s.mux.HandleFunc("POST /api/plans/{id}/steps/{step}/toggle", s.handleToggleStep)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/stream", s.handleEventStream)
	s.mux.HandleFunc("GET /api/progress", s.handleProgress)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("GET /agenda", s.handleAgenda)
	s.mux.Handle("GET /{$}", http.RedirectHandler("/agenda", http.StatusFound))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean auth is off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="plancal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// userID resolves the acting user: header, then ?user=, then the default.
func (s *Server) userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("user")); id != "" {
		return id
	}
	return s.cfg.DefaultUser
}

func (s *Server) today() string {
	return caldate.Today(s.now().In(s.loc))
}

// StartServer serves until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end with ctx instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
