// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
	"github.com/tomtom215/trailkeeper/internal/view"
)

// wireMessage is a decoded server frame.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// setupWebSocketServer serves clients backed by s through a running hub.
func setupWebSocketServer(t *testing.T, hub *Hub, s *store.LogStore) *httptest.Server {
	t.Helper()
	engine := feed.NewEngine(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		var list *view.LocationList
		if s != nil {
			list = view.NewLocationList(engine, s, time.UTC)
		}
		client := NewClient(hub, conn, list)
		hub.Register <- client
		client.Start()
	}))
	t.Cleanup(server.Close)
	return server
}

// dialWebSocket establishes a WebSocket connection to the test server
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func setupTestStore(t *testing.T) *store.LogStore {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	frame := map[string]interface{}{"type": msgType}
	if data != nil {
		frame["data"] = data
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) wireMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestClient_Constants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("Expected pingPeriod %v to be shorter than pongWait %v", pingPeriod, pongWait)
	}
	if maxMessageSize != 4096 {
		t.Errorf("Expected maxMessageSize 4096, got %d", maxMessageSize)
	}
}

func TestNewClient_AssignsIncreasingIDs(t *testing.T) {
	hub := NewHub()
	a := NewClient(hub, nil, nil)
	b := NewClient(hub, nil, nil)
	if b.ID() <= a.ID() {
		t.Errorf("expected increasing ids, got %d then %d", a.ID(), b.ID())
	}
	if cap(a.send) != sendBuffer {
		t.Errorf("expected buffer %d, got %d", sendBuffer, cap(a.send))
	}
}

func TestClient_PingPong(t *testing.T) {
	hub := runHub(t)
	server := setupWebSocketServer(t, hub, nil)
	conn := dialWebSocket(t, server)

	send(t, conn, MessageTypePing, nil)
	readUntil(t, conn, MessageTypePong)
}

func TestClient_UnknownTypeAnswersError(t *testing.T) {
	hub := runHub(t)
	server := setupWebSocketServer(t, hub, nil)
	conn := dialWebSocket(t, server)

	send(t, conn, "subscribe_everything", nil)
	msg := readUntil(t, conn, MessageTypeError)

	var data ErrorData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("decode error data: %v", err)
	}
	if !strings.Contains(data.Message, "subscribe_everything") {
		t.Errorf("expected message to name the type, got %q", data.Message)
	}
}

func TestClient_SelectDayWithoutList(t *testing.T) {
	hub := runHub(t)
	server := setupWebSocketServer(t, hub, nil)
	conn := dialWebSocket(t, server)

	send(t, conn, MessageTypeSelectDay, "20200601")
	readUntil(t, conn, MessageTypeError)
}

func TestClient_SelectDayStreamsChanges(t *testing.T) {
	hub := runHub(t)
	s := setupTestStore(t)
	server := setupWebSocketServer(t, hub, s)
	conn := dialWebSocket(t, server)

	morning := time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := s.Append(context.Background(), []models.Fix{models.NewFix(35.68, 139.76, morning)}, morning); err != nil {
		t.Fatalf("append: %v", err)
	}

	send(t, conn, MessageTypeSelectDay, "20200601")
	msg := readUntil(t, conn, MessageTypeLocationsInitial)

	var initial LocationsInitial
	if err := json.Unmarshal(msg.Data, &initial); err != nil {
		t.Fatalf("decode initial: %v", err)
	}
	if initial.Day != "20200601" || len(initial.Rows) != 1 {
		t.Fatalf("expected one row for 20200601, got %+v", initial)
	}

	// Rows sort by write time, so the later batch lands at the end even
	// though its fix is older. The next day is not part of the list.
	early := time.Date(2020, 6, 1, 7, 0, 0, 0, time.UTC)
	next := time.Date(2020, 6, 2, 7, 0, 0, 0, time.UTC)
	fixes := []models.Fix{models.NewFix(35.0, 139.0, next), models.NewFix(35.1, 139.1, early)}
	if err := s.Append(context.Background(), fixes, next); err != nil {
		t.Fatalf("append: %v", err)
	}

	msg = readUntil(t, conn, MessageTypeLocationsChanged)
	var changed LocationsChanged
	if err := json.Unmarshal(msg.Data, &changed); err != nil {
		t.Fatalf("decode change: %v", err)
	}
	if len(changed.Insertions) != 1 || changed.Insertions[0] != 1 {
		t.Fatalf("expected insertion at 1, got %v", changed.Insertions)
	}
	if len(changed.Inserted) != 1 || !changed.Inserted[0].Timestamp.Equal(early) {
		t.Errorf("expected inserted row at %v, got %+v", early, changed.Inserted)
	}
	if len(changed.Deletions) != 0 || len(changed.Modifications) != 0 {
		t.Errorf("expected insert-only diff, got %+v", changed)
	}
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	hub := runHub(t)
	server := setupWebSocketServer(t, hub, setupTestStore(t))
	conn := dialWebSocket(t, server)

	waitForClients(t, hub, 1)
	_ = conn.Close()
	waitForClients(t, hub, 0)
}

func TestUpdateMessage(t *testing.T) {
	rec := models.LocationRecord{ID: "a", Fix: models.NewFix(1, 1, time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC))}

	tests := []struct {
		name   string
		update view.LocationUpdate
		want   string
	}{
		{"initial", view.LocationUpdate{Day: "20200601", Change: feed.Change{Type: feed.ChangeInitial}}, MessageTypeLocationsInitial},
		{"update", view.LocationUpdate{Day: "20200601", Change: feed.Change{
			Type: feed.ChangeUpdate, Results: []models.LocationRecord{rec}, Insertions: []int{0},
		}}, MessageTypeLocationsChanged},
		{"error", view.LocationUpdate{Day: "20200601", Change: feed.Change{
			Type: feed.ChangeError, Err: feed.ErrObservationFailed,
		}}, MessageTypeSubscriptionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := updateMessage(tt.update)
			if msg.Type != tt.want {
				t.Errorf("expected %s, got %s", tt.want, msg.Type)
			}
			if _, err := MarshalMessage(msg); err != nil {
				t.Errorf("marshal: %v", err)
			}
		})
	}
}
