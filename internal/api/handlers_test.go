// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trailkeeper/internal/aggregate"
	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/ingest"
	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/location/simulator"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
	"github.com/tomtom215/trailkeeper/internal/view"
	ws "github.com/tomtom215/trailkeeper/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakeWriter struct {
	ready chan struct{}
}

func newFakeWriter(ready bool) *fakeWriter {
	w := &fakeWriter{ready: make(chan struct{})}
	if ready {
		close(w.ready)
	}
	return w
}

func (f *fakeWriter) Stats() ingest.WriterStats {
	return ingest.WriterStats{BatchesReceived: 3, BatchesWritten: 2, BatchesDropped: 1, BreakerState: "closed"}
}

func (f *fakeWriter) Ready() <-chan struct{} { return f.ready }

type testEnv struct {
	store    *store.LogStore
	dates    *aggregate.View
	platform *simulator.Platform
	adapter  *location.Adapter
	hub      *ws.Hub
	server   *httptest.Server
}

// setupTestEnv wires a handler against an in-memory store, a running
// aggregate view and a simulated platform.
func setupTestEnv(t *testing.T, status location.AuthorizationStatus) *testEnv {
	t.Helper()

	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dates := aggregate.New(s.FetchAll(), time.UTC, nil)
	go func() { _ = dates.Serve(ctx) }()
	<-dates.Ready()
	dateList := view.NewDateList(dates)
	t.Cleanup(dateList.Close)

	hub := ws.NewHub()
	go func() { _ = hub.RunWithContext(ctx) }()

	p := simulator.New(status)
	a := location.New(p, location.LaunchContext{}, location.Config{Options: location.DefaultOptions()})
	t.Cleanup(func() { _ = a.Close() })

	h := NewHandler(Dependencies{
		Location:    a,
		Store:       s,
		Dates:       dateList,
		Writer:      newFakeWriter(true),
		Hub:         hub,
		Engine:      feed.NewEngine(nil),
		TimeZone:    time.UTC,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitDisabled = true
	server := httptest.NewServer(NewRouter(h, NewMiddleware(cfg)).Setup())
	t.Cleanup(server.Close)

	return &testEnv{store: s, dates: dates, platform: p, adapter: a, hub: hub, server: server}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func doRequest(t *testing.T, method, url string) (int, envelope, http.Header) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return resp.StatusCode, env, resp.Header
}

func appendFix(t *testing.T, s *store.LogStore, ts time.Time) {
	t.Helper()
	if err := s.Append(context.Background(), []models.Fix{models.NewFix(35.68, 139.76, ts)}, ts); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestHealthLive(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)

	code, body, header := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/health/live")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !body.Success {
		t.Error("expected success envelope")
	}
	if header.Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}
	if header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on health routes")
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name   string
		writer WriterStatus
		want   int
	}{
		{"writer subscribed", newFakeWriter(true), http.StatusOK},
		{"writer pending", newFakeWriter(false), http.StatusServiceUnavailable},
		{"no writer", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready := make(chan struct{})
			close(ready)
			h := NewHandler(Dependencies{Writer: tt.writer, Dates: readyDates{ready}})

			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

type readyDates struct{ ready chan struct{} }

func (d readyDates) Rows() []models.DateAggregateEntry { return nil }
func (d readyDates) Ready() <-chan struct{}            { return d.ready }

func TestStatus(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	appendFix(t, env.store, time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC))

	code, body, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	var st StatusResponse
	if err := json.Unmarshal(body.Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.RecordCount != 1 {
		t.Errorf("expected record_count 1, got %d", st.RecordCount)
	}
	if st.Location == nil || st.Location.StateName != "stopped" {
		t.Errorf("expected stopped adapter, got %+v", st.Location)
	}
	if st.Writer == nil || st.Writer.BatchesDropped != 1 {
		t.Errorf("expected writer stats, got %+v", st.Writer)
	}
	if st.TimeZone != "UTC" {
		t.Errorf("expected UTC, got %s", st.TimeZone)
	}
}

func TestDates(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	appendFix(t, env.store, time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC))
	appendFix(t, env.store, time.Date(2020, 6, 2, 9, 0, 0, 0, time.UTC))
	appendFix(t, env.store, time.Date(2020, 6, 2, 10, 0, 0, 0, time.UTC))

	want := []models.DateAggregateEntry{{DateKey: "20200601", Count: 1}, {DateKey: "20200602", Count: 2}}
	deadline := time.Now().Add(5 * time.Second)
	for {
		code, body, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/dates")
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		var got []models.DateAggregateEntry
		if err := json.Unmarshal(body.Data, &got); err != nil {
			t.Fatalf("decode dates: %v", err)
		}
		if len(got) == 2 && got[0] == want[0] && got[1] == want[1] {
			if body.Meta == nil || body.Meta.Count == nil || *body.Meta.Count != 2 {
				t.Errorf("expected meta count 2, got %+v", body.Meta)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDates_NotReady(t *testing.T) {
	h := NewHandler(Dependencies{Dates: readyDates{make(chan struct{})}})
	rec := httptest.NewRecorder()
	h.Dates(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dates", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestDayLocations(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	written := time.Date(2020, 6, 3, 0, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{
		time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2020, 6, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2020, 6, 2, 0, 0, 0, 0, time.UTC),
	} {
		fixes := []models.Fix{models.NewFix(35.68, 139.76, ts)}
		if err := env.store.Append(context.Background(), fixes, written.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	code, body, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/days/20200601/locations")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var rows []models.LocationRow
	if err := json.Unmarshal(body.Data, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Write order wins over fix time.
	if !rows[0].Timestamp.Equal(time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected first written row first, got %v", rows[0].Timestamp)
	}
}

func TestDayLocations_BadDay(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)

	code, body, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/days/2020-06-01/locations")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body.Error == nil || body.Error.Code != ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %+v", body.Error)
	}
}

func TestLocationControls(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)

	steps := []struct {
		path  string
		state string
	}{
		{"/api/v1/location/start", "standard_tracking"},
		{"/api/v1/location/stop", "stopped"},
		{"/api/v1/location/significant/start", "significant_change_only"},
		{"/api/v1/location/significant/stop", "stopped"},
	}
	for _, step := range steps {
		code, body, _ := doRequest(t, http.MethodPost, env.server.URL+step.path)
		if code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", step.path, code)
		}
		var st location.Status
		if err := json.Unmarshal(body.Data, &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if st.StateName != step.state {
			t.Errorf("%s: expected %s, got %s", step.path, step.state, st.StateName)
		}
	}
}

func TestLocationStart_Denied(t *testing.T) {
	env := setupTestEnv(t, location.Denied)

	code, body, _ := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/location/start")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if body.Error == nil || body.Error.Code != ErrCodeForbidden {
		t.Errorf("expected FORBIDDEN, got %+v", body.Error)
	}
}

func TestLocationStart_ServicesDisabled(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	env.platform.SetServicesEnabled(false)

	code, _, _ := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/location/start")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestRouter_MethodAndRouteErrors(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)

	code, body, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/location/start")
	if code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", code)
	}
	if body.Success {
		t.Error("expected error envelope")
	}

	code, _, _ = doRequest(t, http.MethodGet, env.server.URL+"/api/v1/nothing")
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	doRequest(t, http.MethodGet, env.server.URL+"/api/v1/status")

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "trailkeeper_api_requests_total") {
		t.Error("expected api request counter in metrics output")
	}
}

func TestRateLimit(t *testing.T) {
	h := NewHandler(Dependencies{})
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitRequests = 2
	server := httptest.NewServer(NewRouter(h, NewMiddleware(cfg)).Setup())
	defer server.Close()

	var last int
	for i := 0; i < 3; i++ {
		last, _, _ = doRequest(t, http.MethodGet, server.URL+"/api/v1/status")
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 on third request, got %d", last)
	}
}

func TestWebSocket_Origin(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"missing origin", "", false},
		{"unknown origin", "http://evil.example", false},
		{"allowed origin", "http://localhost:3000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if resp != nil && resp.Body != nil {
				defer resp.Body.Close()
			}
			if tt.ok {
				if err != nil {
					t.Fatalf("expected connection, got %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatal("expected handshake to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403, got %v", resp)
			}
		})
	}
}

func TestWebSocket_SelectDay(t *testing.T) {
	env := setupTestEnv(t, location.AuthorizedAlways)
	appendFix(t, env.store, time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC))

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://localhost:3000"}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": ws.MessageTypeSelectDay, "data": "20200601"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != ws.MessageTypeLocationsInitial {
			continue
		}
		var initial ws.LocationsInitial
		if err := json.Unmarshal(msg.Data, &initial); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if initial.Day != "20200601" || len(initial.Rows) != 1 {
			t.Errorf("expected one row for 20200601, got %+v", initial)
		}
		return
	}
}
