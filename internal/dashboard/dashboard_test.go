package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mschirtzinger/khata/internal/schema"
	ksync "github.com/mschirtzinger/khata/internal/sync"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and consumes the status message sent on connect.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcomeStatus(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server)
	saved := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	handler.SetLastSaved(saved, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, msg := dial(t, ctx, server)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStatus, msg.Type)
	}

	var status StatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if !status.Online || !status.Pending || !status.LastSaved.Equal(saved) {
		t.Errorf("Unexpected welcome status: %+v", status)
	}
	waitForClients(t, server, 1)
}

func TestWelcomeWriteFailureIsReported(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	errCh := make(chan error, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		_ = conn.CloseNow()
		errCh <- server.sendWelcome(conn)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err == nil {
		defer conn.CloseNow()
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Expected an error writing the welcome status to a closed connection")
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the welcome write")
	}
	if n := server.ClientCount(); n != 0 {
		t.Errorf("Expected no registered clients, got %d", n)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		dial(t, ctx, server)
	}
	waitForClients(t, server, numClients)
}

func TestMessageBroadcast(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, _ := dial(t, ctx, server)
	b, _ := dial(t, ctx, server)
	waitForClients(t, server, 2)

	msg, err := newMessage(MessageTypeConnectivity, ConnectivityData{Online: false})
	if err != nil {
		t.Fatal(err)
	}
	server.Broadcast(msg)

	for _, conn := range []*websocket.Conn{a, b} {
		got := readMessage(t, ctx, conn)
		if got.Type != MessageTypeConnectivity {
			t.Errorf("Expected message type %s, got %s", MessageTypeConnectivity, got.Type)
		}
	}
}

func TestHandlerSyncResult(t *testing.T) {
	completed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     ksync.Result
		wantNotify bool
		wantError  string
	}{
		{
			name:   "manual success",
			result: ksync.Result{Outcome: ksync.Success, Trigger: ksync.Manual, CompletedAt: completed},
		},
		{
			name:       "manual failure notifies",
			result:     ksync.Result{Outcome: ksync.AuthRequired, Trigger: ksync.Manual, Pending: true, RemoteErr: errors.New("sign in"), CompletedAt: completed},
			wantNotify: true,
			wantError:  "sign in",
		},
		{
			name:      "background failure is silent",
			result:    ksync.Result{Outcome: ksync.RemoteUnavailable, Trigger: ksync.Auto, Pending: true, RemoteErr: errors.New("503"), CompletedAt: completed},
			wantError: "503",
		},
		{
			name:   "offline is not a failure",
			result: ksync.Result{Outcome: ksync.LocalOnly, Trigger: ksync.Manual, Pending: true, CompletedAt: completed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t)
			handler := NewHandler(server)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, _ := dial(t, ctx, server)
			waitForClients(t, server, 1)

			handler.OnSyncResult(tt.result)

			msg := readMessage(t, ctx, conn)
			if msg.Type != MessageTypeSyncResult {
				t.Fatalf("Expected message type %s, got %s", MessageTypeSyncResult, msg.Type)
			}
			var data SyncResultData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				t.Fatalf("Failed to unmarshal sync result: %v", err)
			}
			if data.Notify != tt.wantNotify {
				t.Errorf("Notify = %v, want %v", data.Notify, tt.wantNotify)
			}
			if data.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", data.Error, tt.wantError)
			}
			if data.Outcome != tt.result.Outcome.String() || data.Message != tt.result.Message() {
				t.Errorf("Unexpected payload: %+v", data)
			}

			status := handler.Status()
			if status.Pending != tt.result.Pending {
				t.Errorf("Status.Pending = %v, want %v", status.Pending, tt.result.Pending)
			}
			if tt.result.Outcome == ksync.Success && !status.LastSaved.Equal(completed) {
				t.Errorf("Status.LastSaved = %v, want %v", status.LastSaved, completed)
			}
		})
	}
}

func TestHandlerSnapshotLoaded(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)
	waitForClients(t, server, 1)

	snap := schema.NewEmptySnapshot(time.Now())
	snap.SetName("Sharma General Store")
	snap.Customers = append(snap.Customers, schema.Customer{ID: 1, Name: "Asha"})

	handler.OnSnapshotLoaded(ksync.LoadResult{Source: ksync.SourceCache, Outcome: ksync.LocalOnly}, snap)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSnapshotLoaded {
		t.Fatalf("Expected message type %s, got %s", MessageTypeSnapshotLoaded, msg.Type)
	}
	var data SnapshotLoadedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal snapshot data: %v", err)
	}
	if data.Source != "cache" || data.Outcome != "local-only" || data.Customers != 1 || data.StoreName != "Sharma General Store" {
		t.Errorf("Unexpected payload: %+v", data)
	}
	if got := handler.Status().StoreName; got != "Sharma General Store" {
		t.Errorf("Status.StoreName = %q", got)
	}
}

func TestHandlerConnectivity(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)
	waitForClients(t, server, 1)

	handler.OnConnectivity(false)

	msg := readMessage(t, ctx, conn)
	var data ConnectivityData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal connectivity data: %v", err)
	}
	if msg.Type != MessageTypeConnectivity || data.Online {
		t.Errorf("Unexpected message: %s %+v", msg.Type, data)
	}
	if handler.Status().Online {
		t.Error("Status.Online should be false")
	}
}

func TestHTTPEndpoints(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server)
	handler.OnConnectivity(false)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var health map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", health["status"])
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var status StatusData
	err = json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Online {
		t.Error("Expected offline status")
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/missing")
	if err != nil {
		t.Fatalf("GET /missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
