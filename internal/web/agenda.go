package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"plancal/internal/calendar"
	"plancal/internal/ics"
	appLog "plancal/internal/log"
	"plancal/internal/model"
)

const (
	viewTTL = 30 * time.Second

	// maxExportEvents caps /calendar.ics; calendar clients want more than
	// the on-screen agenda.
	maxExportEvents = 200
)

//go:embed templates/agenda.html
var templatesFS embed.FS

var agendaTmpl = template.Must(template.New("agenda.html").Funcs(template.FuncMap{
	"amount": func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%.2f", *v)
	},
	"stepNumber": func(i *int) int {
		if i == nil {
			return 0
		}
		return *i + 1
	},
}).ParseFS(templatesFS, "templates/agenda.html"))

// agendaView is one user's projected agenda.
type agendaView struct {
	User     string             `json:"user"`
	Today    string             `json:"today"`
	Events   []model.Event      `json:"events"`
	Sections []calendar.Section `json:"sections"`
	Week     []calendar.Day     `json:"week"`
	Summary  calendar.Summary   `json:"summary"`
	Skipped  []skippedPlan      `json:"skipped,omitempty"`
}

type skippedPlan struct {
	PlanID string `json:"planId"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type viewKey struct {
	user  string
	today string
	max   int
}

type cachedView struct {
	view      agendaView
	updatedAt time.Time
}

// invalidate drops the user's cached views and bumps their generation so a
// projection started before the change is not cached afterwards.
func (s *Server) invalidate(userID string) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	s.gens[userID]++
	for k := range s.views {
		if k.user == userID {
			delete(s.views, k)
		}
	}
}

// agenda returns the user's projection, from cache while it is fresh.
func (s *Server) agenda(ctx context.Context, userID string, maxEvents int) (agendaView, error) {
	key := viewKey{user: userID, today: s.today(), max: maxEvents}

	s.viewsMu.Lock()
	cv, ok := s.views[key]
	gen := s.gens[userID]
	s.viewsMu.Unlock()
	if ok && s.now().Sub(cv.updatedAt) < viewTTL {
		return cv.view, nil
	}

	plans, err := s.plans.ListByUser(ctx, userID)
	if err != nil {
		return agendaView{}, err
	}
	view, err := s.project(userID, key.today, plans, maxEvents)
	if err != nil {
		return agendaView{}, err
	}

	s.viewsMu.Lock()
	if s.gens[userID] == gen {
		s.views[key] = cachedView{view: view, updatedAt: s.now()}
	}
	s.viewsMu.Unlock()
	return view, nil
}

// project builds the agenda of plans and the user's feed events.
func (s *Server) project(userID, today string, plans []model.Plan, maxEvents int) (agendaView, error) {
	opts := s.cfg.CalendarOptions()
	if maxEvents > 0 {
		opts.MaxEvents = maxEvents
	}

	proj, err := calendar.Build(plans, today, opts)
	if err != nil {
		return agendaView{}, err
	}
	events := proj.Events
	if s.feeds != nil {
		events, err = calendar.MergeExternal(events, s.feeds.EventsFor(userID), today, opts.MaxEvents)
		if err != nil {
			return agendaView{}, err
		}
	}

	sections, err := calendar.Sections(events, today)
	if err != nil {
		return agendaView{}, err
	}
	week, err := calendar.WeekDays(today, s.cfg.WeekStart, events)
	if err != nil {
		return agendaView{}, err
	}

	view := agendaView{
		User:     userID,
		Today:    today,
		Events:   events,
		Sections: sections,
		Week:     week,
		Summary:  calendar.Summarize(plans),
	}
	for _, mpe := range proj.Skipped {
		view.Skipped = append(view.Skipped, skippedPlan{PlanID: mpe.PlanID, Field: mpe.Field, Reason: mpe.Reason})
	}
	return view, nil
}

// handleEvents returns the projected agenda.
//
// GET /api/events?max=10
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	maxEvents := parseIntDefault(r.URL.Query().Get("max"), 0)
	if maxEvents < 0 {
		writeError(w, http.StatusBadRequest, "max must not be negative")
		return
	}
	view, err := s.agenda(r.Context(), s.userID(r), maxEvents)
	if err != nil {
		appLog.Error("api events: projection failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build agenda")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleEventStream pushes a fresh agenda as a server-sent event every time
// the user's plans change, starting with the current one.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	userID := s.userID(r)
	maxEvents := parseIntDefault(r.URL.Query().Get("max"), 0)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for plans := range s.plans.Subscribe(ctx, userID) {
		view, err := s.project(userID, s.today(), plans, maxEvents)
		if err != nil {
			appLog.Error("event stream: projection failed", err, "user_id", userID)
			continue
		}
		data, err := json.Marshal(view)
		if err != nil {
			appLog.Error("event stream: encode failed", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: agenda\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleProgress returns checklist progress and the monthly reminder total.
//
// GET /api/progress
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListByUser(r.Context(), s.userID(r))
	if err != nil {
		appLog.Error("api progress: list plans failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load plans")
		return
	}
	writeJSON(w, http.StatusOK, calendar.Summarize(plans))
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	maxEvents := parseIntDefault(r.URL.Query().Get("max"), maxExportEvents)
	view, err := s.agenda(r.Context(), userID, maxEvents)
	if err != nil {
		appLog.Error("calendar.ics: projection failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build agenda")
		return
	}
	body, err := ics.Encode(view.Events, "Plans ("+userID+")")
	if err != nil {
		appLog.Error("calendar.ics: encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="plancal.ics"`)
	_, _ = w.Write(body)
}

// handleAgenda renders the agenda page. The root element carries
// data-ready="true" once rendered, which the snapshot capture waits for.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	maxEvents := parseIntDefault(r.URL.Query().Get("max"), 0)
	view, err := s.agenda(r.Context(), s.userID(r), maxEvents)
	if err != nil {
		appLog.Error("agenda: projection failed", err)
		http.Error(w, "failed to build agenda", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := agendaTmpl.Execute(w, view); err != nil {
		appLog.Error("agenda: render failed", err)
	}
}
