package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"plancal/internal/calendar"
	"plancal/internal/config"
	"plancal/internal/model"
	"plancal/internal/store"
)

type staticFeeds map[string][]model.Event

func (f staticFeeds) EventsFor(userID string) []model.Event { return f[userID] }

type fixture struct {
	srv     *Server
	handler http.Handler
	db      *gorm.DB
}

func newFixture(t *testing.T, mutate func(*config.Config)) fixture {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.DefaultUser = "ana"
	if mutate != nil {
		mutate(cfg)
	}

	feeds := staticFeeds{
		"ana": {{Type: model.EventExternal, SourceID: "work", UID: "u1", Date: "2024-03-11", Title: "Standup"}},
	}
	srv := NewServer(cfg, store.NewPlanStore(db), feeds)
	srv.now = func() time.Time { return time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC) }
	return fixture{srv: srv, handler: srv.Handler(), db: db}
}

func (f fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createPlan(t *testing.T, f fixture, user string, p model.Plan) model.Plan {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/plans", user, p)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Plan](t, rec)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).Code)

	rec := f.do(t, http.MethodGet, "/api/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	req.SetBasicAuth("admin", "pw")
	ok := httptest.NewRecorder()
	f.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.CORSOrigins = []string{"https://app.example.com"}
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-user-id")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPlansCRUD(t *testing.T) {
	f := newFixture(t, nil)

	rent := createPlan(t, f, "", model.Plan{Type: model.PlanReminder, Title: "Rent", StartDate: "2024-01-05", Frequency: model.FrequencyMonthly})
	assert.NotEmpty(t, rent.ID)
	assert.Equal(t, "ana", rent.UserID, "default user applies")

	rec := f.do(t, http.MethodPost, "/api/plans", "ana", model.Plan{Type: model.PlanReminder, Title: "No start"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "startDate", decode[errorResponse](t, rec).Field)

	rec = f.do(t, http.MethodPost, "/api/plans", "ana", "not a plan")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode[[]model.Plan](t, f.do(t, http.MethodGet, "/api/plans", "ana", nil))
	require.Len(t, list, 1)
	assert.Empty(t, decode[[]model.Plan](t, f.do(t, http.MethodGet, "/api/plans?user=bob", "", nil)))

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/plans/"+rent.ID, "ana", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/plans/"+rent.ID, "bob", nil).Code)

	title := "Rent (flat)"
	rec = f.do(t, http.MethodPatch, "/api/plans/"+rent.ID, "ana", store.Patch{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, title, decode[model.Plan](t, rec).Title)

	rec = f.do(t, http.MethodPut, "/api/plans/"+rent.ID+"/frequency", "ana", frequencyRequest{Frequency: model.FrequencyWeekly})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.FrequencyWeekly, decode[model.Plan](t, rec).Frequency)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/plans/"+rent.ID+"/frequency", "ana", frequencyRequest{}).Code)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/plans/"+rent.ID+"/steps/0/toggle", "ana", nil).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/plans/"+rent.ID, "ana", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/plans/"+rent.ID, "ana", nil).Code)
}

func TestToggleStep(t *testing.T) {
	f := newFixture(t, nil)
	fund := createPlan(t, f, "ana", model.Plan{Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{
		{Label: "Open", Date: "2024-03-12"},
		{Label: "Deposit", Date: "2024-03-20"},
	}})

	rec := f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/1/toggle", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Plan](t, rec).Steps[1].Done)

	rec = f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/"+fund.Steps[0].ID+"/toggle", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Plan](t, rec).Steps[0].Done)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/7/toggle", "ana", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/nope/toggle", "ana", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/0/toggle", "bob", nil).Code)

	rec = f.do(t, http.MethodPut, "/api/plans/"+fund.ID+"/frequency", "ana", frequencyRequest{Frequency: model.FrequencyWeekly})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestEvents(t *testing.T) {
	f := newFixture(t, nil)
	createPlan(t, f, "ana", model.Plan{Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{
		{Label: "Past", Date: "2024-03-01"},
		{Label: "Open", Date: "2024-03-10"},
		{Label: "Deposit", Date: "2024-03-12"},
	}})
	// A record written behind the API's back with a missing start date.
	require.NoError(t, f.db.Create(&model.Plan{ID: "broken", UserID: "ana", Type: model.PlanReminder, Title: "Broken"}).Error)

	rec := f.do(t, http.MethodGet, "/api/events", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[agendaView](t, rec)

	assert.Equal(t, "2024-03-10", view.Today)
	require.Len(t, view.Events, 3)
	assert.Equal(t, []string{"2024-03-10", "2024-03-11", "2024-03-12"},
		[]string{view.Events[0].Date, view.Events[1].Date, view.Events[2].Date})
	assert.Equal(t, model.EventExternal, view.Events[1].Type)

	require.Len(t, view.Sections, 3)
	assert.Equal(t, "Today", view.Sections[0].Label)
	assert.Equal(t, "Tomorrow", view.Sections[1].Label)
	require.Len(t, view.Week, 7)
	assert.Equal(t, "2024-03-04", view.Week[0].Date, "weeks start on monday")

	require.Len(t, view.Skipped, 1)
	assert.Equal(t, "broken", view.Skipped[0].PlanID)
	assert.Equal(t, "startDate", view.Skipped[0].Field)

	capped := decode[agendaView](t, f.do(t, http.MethodGet, "/api/events?max=1", "ana", nil))
	assert.Len(t, capped.Events, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/events?max=-1", "ana", nil).Code)
}

func TestEvents_CacheDroppedOnChange(t *testing.T) {
	f := newFixture(t, nil)
	first := decode[agendaView](t, f.do(t, http.MethodGet, "/api/events", "ana", nil))
	require.Len(t, first.Events, 1, "only the feed event")

	createPlan(t, f, "ana", model.Plan{Type: model.PlanSession, StartDate: "2024-03-10", Frequency: model.FrequencyWeekly})
	second := decode[agendaView](t, f.do(t, http.MethodGet, "/api/events", "ana", nil))
	assert.Greater(t, len(second.Events), 1)
}

// listHook runs once right after the wrapped store lists a user's plans.
type listHook struct {
	PlanStore
	after func()
}

func (h *listHook) ListByUser(ctx context.Context, userID string) ([]model.Plan, error) {
	plans, err := h.PlanStore.ListByUser(ctx, userID)
	if h.after != nil {
		after := h.after
		h.after = nil
		after()
	}
	return plans, err
}

func TestEvents_ChangeDuringProjectionNotCached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	inner := f.srv.plans
	f.srv.plans = &listHook{PlanStore: inner, after: func() {
		rent := &model.Plan{Type: model.PlanReminder, Title: "Rent", StartDate: "2024-03-12", Frequency: model.FrequencyOnce}
		require.NoError(t, inner.Create(ctx, "ana", rent))
		f.srv.invalidate("ana")
	}}

	stale, err := f.srv.agenda(ctx, "ana", 0)
	require.NoError(t, err)
	assert.Len(t, stale.Events, 1, "listed before the reminder existed")

	fresh, err := f.srv.agenda(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, fresh.Events, 2)
	assert.Equal(t, "Rent", fresh.Events[1].Title)
}

func TestProgress(t *testing.T) {
	f := newFixture(t, nil)
	fund := createPlan(t, f, "ana", model.Plan{Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{
		{Label: "Open", Date: "2024-03-12"},
		{Label: "Deposit", Date: "2024-03-20"},
		{Label: "Automate", Date: "2024-03-28"},
	}})
	rent := 1200.0
	gym := 10.0
	createPlan(t, f, "ana", model.Plan{Type: model.PlanReminder, Title: "Rent", StartDate: "2024-03-15", Frequency: model.FrequencyMonthly, Amount: &rent})
	createPlan(t, f, "ana", model.Plan{Type: model.PlanReminder, Title: "Gym", StartDate: "2024-03-15", Frequency: model.FrequencyWeekly, Amount: &gym})
	createPlan(t, f, "bob", model.Plan{Type: model.PlanReminder, Title: "Other", StartDate: "2024-03-15", Frequency: model.FrequencyMonthly, Amount: &rent})

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/plans/"+fund.ID+"/steps/0/toggle", "ana", nil).Code)

	rec := f.do(t, http.MethodGet, "/api/progress", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[calendar.Summary](t, rec)
	require.Len(t, sum.Progress, 1)
	assert.Equal(t, fund.ID, sum.Progress[0].PlanID)
	assert.Equal(t, 1, sum.Progress[0].Done)
	assert.Equal(t, 33, sum.Progress[0].Percent)
	assert.False(t, sum.Progress[0].Completed)
	assert.Equal(t, 1243.0, sum.Reminders.TotalMonthly)
	assert.Equal(t, 2, sum.Reminders.Count)

	for i := 1; i < 3; i++ {
		path := fmt.Sprintf("/api/plans/%s/steps/%d/toggle", fund.ID, i)
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, "ana", nil).Code)
	}
	sum = decode[calendar.Summary](t, f.do(t, http.MethodGet, "/api/progress", "ana", nil))
	assert.Equal(t, 100, sum.Progress[0].Percent)
	assert.True(t, sum.Progress[0].Completed)

	view := decode[agendaView](t, f.do(t, http.MethodGet, "/api/events", "ana", nil))
	assert.Equal(t, sum, view.Summary)

	page := f.do(t, http.MethodGet, "/agenda", "ana", nil).Body.String()
	assert.Contains(t, page, "3 of 3 steps · 100%")
	assert.Contains(t, page, `class="checklist completed"`)
	assert.Contains(t, page, "1243 per month")
}

func TestCalendarICS(t *testing.T) {
	f := newFixture(t, nil)
	createPlan(t, f, "ana", model.Plan{Type: model.PlanReminder, Title: "Rent", StartDate: "2024-03-15", Frequency: model.FrequencyMonthly})

	rec := f.do(t, http.MethodGet, "/calendar.ics", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Rent")
	assert.Contains(t, body, "SUMMARY:Standup")
}

func TestAgendaPage(t *testing.T) {
	f := newFixture(t, nil)
	createPlan(t, f, "ana", model.Plan{Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{
		{Label: "Open <account>", Date: "2024-03-10"},
	}})

	rec := f.do(t, http.MethodGet, "/agenda", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Today")
	assert.Contains(t, body, "step 1 of 1")
	assert.Contains(t, body, "Open &lt;account&gt;")

	root := f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusFound, root.Code)
	assert.Equal(t, "/agenda", root.Header().Get("Location"))
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "ana")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				lines <- data
			}
		}
		close(lines)
	}()

	next := func() agendaView {
		select {
		case data := <-lines:
			var v agendaView
			require.NoError(t, json.Unmarshal([]byte(data), &v))
			return v
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for stream event")
			return agendaView{}
		}
	}

	assert.Len(t, next().Events, 1)

	createPlan(t, f, "ana", model.Plan{Type: model.PlanReminder, Title: "Rent", StartDate: "2024-03-10", Frequency: model.FrequencyOnce})
	view := next()
	require.Len(t, view.Events, 2)
	assert.Equal(t, "Rent", view.Events[0].Title)
}
