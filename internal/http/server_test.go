package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"billtracker/internal/auth"
	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/middleware/ratelimit"
	"billtracker/internal/notify"
	"billtracker/internal/prefs"
	"billtracker/internal/remote/memory"
	"billtracker/internal/session"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Show(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a.Title)
	}
	return out
}

type testServer struct {
	*Server
	notifier *recordingNotifier
	sessions *session.Manager
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()

	store := memory.New()
	notifier := &recordingNotifier{}
	clock := func() time.Time { return testNow }
	m := metrics.New()

	sessions := session.NewManager(session.Deps{
		Bills:      store,
		Categories: store,
		Feed:       changefeed.NewBroker(),
		Prefs:      prefs.NewMemory(),
		Notifier:   func(string) notify.Notifier { return notifier },
		Logger:     log.Discard(),
		Metrics:    m,
		Clock:      clock,
	}, 16, time.Hour)
	t.Cleanup(sessions.Close)

	deps := Deps{
		Users:    store,
		Auth:     auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost),
		JWT:      auth.NewJWTManager("test-secret-key-that-is-long-enough", time.Hour),
		Sessions: sessions,
		Metrics:  m,
		Logger:   log.Discard(),
		Clock:    clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &testServer{Server: NewServer(":0", deps), notifier: notifier, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:4242"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Email: email, Password: "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[errorResponse](t, rec).Error.Code
}

func TestAuthLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "Ana@Example.com")

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Email: "ana@example.com", Password: "another one"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Email: "ana@example.com", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Email: "ana@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[sessionResponse](t, rec)
	assert.Equal(t, "ana@example.com", sess.User.Email)
	assert.Empty(t, sess.Token)
	assert.Equal(t, 1, len(ts.sessions.Active()))

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.sessions.Active())

	rec = ts.do(t, http.MethodGet, "/api/bills", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Email: "not-an-email", Password: "correct horse"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Email: "a@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"a@example.com","password":"correct horse","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/bills", "/api/categories", "/api/dashboard", "/api/notifications"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, ErrCodeUnauthorized, errorCode(t, rec), path)
	}

	rec := ts.do(t, http.MethodGet, "/api/bills", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBillLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{
		"name": "  Electric ", "amount": "85.5", "category": "utilities", "dueDate": "2026-10-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	electric := decode[core.Bill](t, rec)
	assert.Equal(t, "Electric", electric.Name)
	assert.Equal(t, "85.5", electric.Amount.String())
	assert.Equal(t, core.Monthly, electric.Frequency)

	rec = ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{
		"name": "Netflix", "amount": 15.99, "category": "streaming", "dueDate": "2026-10-05",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	netflix := decode[core.Bill](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/bills/"+netflix.ID+"/toggle-paid", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.Bill](t, rec).IsPaid)

	rec = ts.do(t, http.MethodGet, "/api/bills?status=unpaid", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[billListResponse](t, rec)
	require.Len(t, list.Bills, 1)
	assert.Equal(t, electric.ID, list.Bills[0].ID)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, []string{"all", "utilities", "streaming"}, list.Categories)

	rec = ts.do(t, http.MethodGet, "/api/bills?sort=amount", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[billListResponse](t, rec)
	require.Len(t, list.Bills, 2)
	assert.Equal(t, electric.ID, list.Bills[0].ID)

	rec = ts.do(t, http.MethodPut, "/api/bills/"+electric.ID, token, map[string]any{
		"name": "Electricity", "amount": "90", "category": "utilities", "dueDate": "2026-10-21",
		"isRecurring": true, "frequency": "quarterly",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[core.Bill](t, rec)
	assert.Equal(t, "Electricity", updated.Name)
	assert.Equal(t, core.Quarterly, updated.Frequency)

	rec = ts.do(t, http.MethodDelete, "/api/bills/"+electric.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/bills/"+electric.ID+"/toggle-paid", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBillHandlersLeaveMutationLoggingToStore(t *testing.T) {
	var buf bytes.Buffer
	ts := newTestServer(t, func(d *Deps) {
		d.Logger = log.New(log.Config{Output: &buf})
	})
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{
		"name": "Rent", "amount": "1200", "category": "rent", "dueDate": "2026-10-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, buf.String(), "HTTP request completed")
	assert.NotContains(t, buf.String(), "Bill changed")
	assert.NotContains(t, buf.String(), "Bill created")
}

func TestCreateBillValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{"name": " ", "amount": "abc", "dueDate": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[struct {
		Error struct {
			Code    string           `json:"code"`
			Details core.FieldErrors `json:"details"`
		} `json:"error"`
	}](t, rec)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Details.Name)
	assert.NotEmpty(t, resp.Error.Details.Amount)
	assert.NotEmpty(t, resp.Error.Details.DueDate)

	rec = ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{
		"name": "Gym", "amount": "10", "dueDate": "2026-10-20", "frequency": "weekly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidInput, errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/bills?sort=color", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoryRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/categories", token, categoryRequest{Name: "Gym Membership"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[core.CategoryOption](t, rec)
	assert.Equal(t, core.CategoryOption{Value: "gym membership", Label: "Gym Membership"}, added)

	for name, want := range map[string]int{
		"gym membership": http.StatusConflict,
		"Rent":           http.StatusConflict,
		"a":              http.StatusBadRequest,
		"food@home":      http.StatusBadRequest,
	} {
		rec = ts.do(t, http.MethodPost, "/api/categories", token, categoryRequest{Name: name})
		assert.Equal(t, want, rec.Code, name)
	}

	rec = ts.do(t, http.MethodGet, "/api/categories", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[categoryListResponse](t, rec)
	assert.Equal(t, []string{"gym membership"}, list.Custom)
	assert.Len(t, list.Categories, len(core.DefaultCategories())+1)

	rec = ts.do(t, http.MethodDelete, "/api/categories/gym%20membership", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/categories", token, nil)
	assert.Empty(t, decode[categoryListResponse](t, rec).Custom)
}

func TestEnableDesktopFiresDueTodayAlertOnce(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/bills", token, map[string]any{
		"name": "Rent", "amount": "1200", "category": "rent", "dueDate": "2026-10-17",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, ts.notifier.titles(), "no alerts before permission is granted")

	rec = ts.do(t, http.MethodPost, "/api/notifications/enable", token, enableRequest{Answer: "granted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, notify.PermissionGranted, decode[permissionResponse](t, rec).Permission)
	assert.Equal(t, []string{"Bill Tracker", "Bill Due Today: Rent"}, ts.notifier.titles())

	rec = ts.do(t, http.MethodPost, "/api/notifications/enable", token, enableRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.notifier.titles(), 2)

	rec = ts.do(t, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode[notify.Evaluation](t, rec)
	require.Len(t, ev.Upcoming, 1)
	require.NotNil(t, ev.Banner)
	assert.Equal(t, 1, ev.Banner.Total)
}

func TestEnableDesktopDenied(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/notifications/enable", token, enableRequest{Answer: "denied"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/notifications/permission", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notify.PermissionDenied, decode[permissionResponse](t, rec).Permission)

	rec = ts.do(t, http.MethodPut, "/api/notifications/permission", token, permissionRequest{Permission: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/notifications/permission", token, permissionRequest{Permission: "default"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnableDesktopDismissed(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodPost, "/api/notifications/enable", token, enableRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, notify.PermissionDefault, decode[permissionResponse](t, rec).Permission)
	assert.Empty(t, ts.notifier.titles())

	rec = ts.do(t, http.MethodPost, "/api/notifications/enable", token, enableRequest{Answer: "granted"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notify.PermissionGranted, decode[permissionResponse](t, rec).Permission)
}

func TestNotificationSettingsRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	rec := ts.do(t, http.MethodGet, "/api/notifications/settings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notify.DefaultSettings(), decode[notify.Settings](t, rec))

	rec = ts.do(t, http.MethodPut, "/api/notifications/settings", token, `{"daysBeforeDue": 400}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/notifications/settings", token, `{"daysBeforeDue": 7, "showDashboardAlerts": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/notifications/settings", token, nil)
	got := decode[notify.Settings](t, rec)
	assert.Equal(t, 7, got.DaysBeforeDue)
	assert.True(t, got.Enabled)
	assert.False(t, got.ShowDashboardAlerts)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "ana@example.com")

	for _, b := range []map[string]any{
		{"name": "Rent", "amount": "1000", "category": "rent", "dueDate": "2026-10-15"},
		{"name": "Phone", "amount": "40", "category": "utilities", "dueDate": "2026-10-19"},
	} {
		rec := ts.do(t, http.MethodPost, "/api/bills", token, b)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dashboardResponse](t, rec)
	assert.Equal(t, 2, resp.Summary.TotalCount)
	assert.Equal(t, "1040", resp.Summary.UnpaidAmount.String())
	require.NotNil(t, resp.Reminders)
	assert.Len(t, resp.Reminders.Overdue, 1)
	assert.Len(t, resp.Reminders.Upcoming, 1)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	ready := errors.New("db down")
	ts := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return ready }
	})

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = nil
	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `billtracker_http_requests_total{code="200",route="/healthz"}`)
}

func TestRateLimitAndSuspiciousRequests(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.Limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 0.001, Burst: 2})
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil).Code)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, ErrCodeRateLimited, errorCode(t, rec))

	ts = newTestServer(t)
	rec = ts.do(t, http.MethodGet, "/healthz?q="+url.QueryEscape("<script>alert(1)</script>"), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.FieldErrors{Name: "x"}, http.StatusBadRequest},
		{core.ErrInvalidFrequency, http.StatusBadRequest},
		{core.ErrCategoryTooShort, http.StatusBadRequest},
		{notify.ErrInvalidLookahead, http.StatusBadRequest},
		{core.ErrNotAuthenticated, http.StatusUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{notify.ErrPermissionDenied, http.StatusForbidden},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrCategoryExists, http.StatusConflict},
		{auth.ErrEmailExists, http.StatusConflict},
		{core.Remote("fetch bills", errors.New("connection refused")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := mapError(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
