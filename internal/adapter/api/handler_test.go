package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/adapter/backend/memory"
	authapp "github.com/trackfit/trackfit/internal/app/auth"
	"github.com/trackfit/trackfit/internal/app/messagebus"
	"github.com/trackfit/trackfit/internal/app/metricstore"
	"github.com/trackfit/trackfit/internal/app/session"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	bus := messagebus.New(logger)
	t.Cleanup(bus.Close)

	sessions := session.NewManager(db, bus, logger)
	sessions.Bind()
	service := authapp.NewService(db, bus, logger)

	return NewServer(
		Logger(logger),
		MetricBackend(db),
		AuthService(service),
		Sessions(sessions),
	)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func signUp(t *testing.T, s *Server, email string) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/auth/sign-up", "", map[string]any{
		"email":        email,
		"password":     "s3cret-pass",
		"display_name": "Tester",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign up: got %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[sessionResp](t, rec)
	if resp.AccessToken == "" {
		t.Fatal("sign up must return an access token")
	}
	return resp.AccessToken
}

func today(offset int) string {
	return time.Now().AddDate(0, 0, offset).Format(metric.DateLayout)
}

func addEntry(t *testing.T, s *Server, token, kind string, value float64, date string) metricstore.State {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/metrics/"+kind, token, map[string]any{
		"value": value,
		"date":  date,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("adding entry: got %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[metricstore.State](t, rec)
}

func TestSignUpThenRecordEntry(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	state := addEntry(t, s, token, "weight", 80.5, today(0))
	if len(state.Entries) != 1 || state.Entries[0].Value != 80.5 {
		t.Fatalf("unexpected state after add: %+v", state)
	}
	if !state.HasEntryToday {
		t.Fatal("a same-day entry must raise the warning flag")
	}

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: got %d, body %s", rec.Code, rec.Body.String())
	}
	state = decode[metricstore.State](t, rec)
	if len(state.Entries) != 1 || state.Loading || state.LastError != "" {
		t.Fatalf("unexpected snapshot: %+v", state)
	}
}

func TestAddRejectsOutOfRangeValue(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	tests := []struct {
		kind  string
		value float64
	}{
		{"weight", 500},
		{"weight", 12},
		{"distance", 0},
		{"distance", 999},
	}
	for _, tc := range tests {
		rec := doJSON(t, s, http.MethodPost, "/api/metrics/"+tc.kind, token, map[string]any{
			"value": tc.value,
			"date":  today(0),
		}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s=%g: got %d, want 400", tc.kind, tc.value, rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodPost, "/api/metrics/weight", token, map[string]any{
		"value": 500.0,
		"date":  today(0),
	}, nil)
	msg := decode[JsonErrorModel](t, rec)
	if msg.Message != "value must be between 30 and 300 kg" {
		t.Fatalf("unexpected message: %q", msg.Message)
	}
}

func TestAddRejectsMalformedDate(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	rec := doJSON(t, s, http.MethodPost, "/api/metrics/weight", token, map[string]any{
		"value": 80.0,
		"date":  "14/08/2026",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestSameDayDuplicateIsAllowed(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	addEntry(t, s, token, "weight", 80.0, today(0))
	state := addEntry(t, s, token, "weight", 80.5, today(0))

	if len(state.Entries) != 2 {
		t.Fatalf("duplicate day must be recorded, got %+v", state.Entries)
	}
	if !state.HasEntryToday {
		t.Fatal("warning flag must stay up")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")
	state := addEntry(t, s, token, "weight", 80.0, today(0))
	id := state.Entries[0].ID

	path := fmt.Sprintf("/api/metrics/weight/%d", id)

	rec := doJSON(t, s, http.MethodDelete, path, token, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed delete: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, path, token, nil, map[string]string{"X-Confirm": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed delete: got %d, body %s", rec.Code, rec.Body.String())
	}
	state = decode[metricstore.State](t, rec)
	if len(state.Entries) != 0 {
		t.Fatalf("entry must be gone, got %+v", state.Entries)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight", "", nil, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing header: got %d, want 422", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/metrics/weight", "not-a-token", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d, want 401", rec.Code)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/steps", token, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestChartWindows(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	for _, offset := range []int{0, -6, -10, -40} {
		addEntry(t, s, token, "weight", 80.0, today(offset))
	}

	tests := []struct {
		query      string
		wantWindow metricstore.Window
		wantPoints int
	}{
		{"?window=7d", metricstore.Window7d, 2},
		{"?window=30d", metricstore.Window30d, 3},
		{"?window=90d", metricstore.Window90d, 4},
		{"", metricstore.DefaultWindow, 3},
	}
	for _, tc := range tests {
		rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight/chart"+tc.query, token, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: got %d, body %s", tc.query, rec.Code, rec.Body.String())
		}
		resp := decode[chartResponse](t, rec)
		if resp.Window != tc.wantWindow {
			t.Fatalf("%q: got window %q, want %q", tc.query, resp.Window, tc.wantWindow)
		}
		if len(resp.Points) != tc.wantPoints {
			t.Fatalf("%q: got %d points, want %d", tc.query, len(resp.Points), tc.wantPoints)
		}
		for i := 1; i < len(resp.Points); i++ {
			if resp.Points[i-1].Date > resp.Points[i].Date {
				t.Fatalf("%q: points must be date-ascending, got %+v", tc.query, resp.Points)
			}
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight/chart?window=365d", token, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid window: got %d, want 400", rec.Code)
	}
}

func TestHistoryVariations(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	// oldest first, the list renders newest first
	addEntry(t, s, token, "weight", 80.2, today(-3))
	addEntry(t, s, token, "weight", 79.5, today(-2))
	addEntry(t, s, token, "weight", 79.5, today(-1))
	addEntry(t, s, token, "weight", 80.0, today(0))

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight/history", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[historyResponse](t, rec)
	if len(resp.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(resp.Rows))
	}

	wantDisplay := []string{"—", "-0.5 kg", "+0.0 kg", "+0.7 kg"}
	for i, want := range wantDisplay {
		if resp.Rows[i].Display != want {
			t.Fatalf("row %d: got display %q, want %q", i, resp.Rows[i].Display, want)
		}
	}
	if resp.Rows[0].Variation != nil {
		t.Fatal("first row must carry no variation")
	}
}

func TestWeightHistoryCapped(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	for i := 0; i < 12; i++ {
		addEntry(t, s, token, "weight", 80.0, today(-i))
		addEntry(t, s, token, "distance", 5.0, today(-i))
	}

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight/history", token, nil, nil)
	resp := decode[historyResponse](t, rec)
	if len(resp.Rows) != historyLimit {
		t.Fatalf("weight history must cap at %d rows, got %d", historyLimit, len(resp.Rows))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/metrics/distance/history", token, nil, nil)
	resp = decode[historyResponse](t, rec)
	if len(resp.Rows) != 12 {
		t.Fatalf("distance history must be unbounded, got %d rows", len(resp.Rows))
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	s := newTestServer(t)
	ada := signUp(t, s, "ada@example.com")
	eve := signUp(t, s, "eve@example.com")

	addEntry(t, s, ada, "weight", 80.0, today(0))

	rec := doJSON(t, s, http.MethodGet, "/api/metrics/weight", eve, nil, nil)
	state := decode[metricstore.State](t, rec)
	if len(state.Entries) != 0 {
		t.Fatalf("one user's entries must not leak to another, got %+v", state.Entries)
	}
}

func TestSignOut(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	rec := doJSON(t, s, http.MethodPost, "/api/auth/sign-out", token, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign out: got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/metrics/weight", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("dead token: got %d, want 401", rec.Code)
	}
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	token := signUp(t, s, "ada@example.com")

	rec := doJSON(t, s, http.MethodGet, "/api/auth/me", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}
	acc := decode[backend.Account](t, rec)
	if acc.Email != "ada@example.com" || acc.DisplayName != "Tester" {
		t.Fatalf("unexpected account: %+v", acc)
	}
}
