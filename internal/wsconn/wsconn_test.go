package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startServer(t *testing.T, handler func(conn *websocket.Conn)) (url string, cleanup func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if handler != nil {
			handler(conn)
		}
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0
	return cfg
}

func TestConnect_TransitionsToConnected(t *testing.T) {
	url, cleanup := startServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer cleanup()

	client, err := New(testConfig(url))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var states []State
	client.OnStateChange(func(s State, err error) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("state transitions = %v, want [connecting connected]", states)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	client, err := New(testConfig("ws://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("Connect() = nil, want dial error")
	}
	if client.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", client.State())
	}
}

func TestSendJSON_DeliversValidJSON(t *testing.T) {
	var mu sync.Mutex
	var received []byte
	gotMsg := make(chan struct{})

	url, cleanup := startServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		mu.Lock()
		received = data
		mu.Unlock()
		close(gotMsg)
	})
	defer cleanup()

	client, err := New(testConfig(url))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sub := map[string]any{"method": "SUBSCRIBE", "params": []string{"ethusdc@bookTicker"}, "id": 1}
	if err := client.SendJSON(ctx, sub); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}

	select {
	case <-gotMsg:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received message")
	}

	mu.Lock()
	defer mu.Unlock()
	var parsed map[string]any
	if err := json.Unmarshal(received, &parsed); err != nil {
		t.Fatalf("received payload is not JSON: %v", err)
	}
	if parsed["method"] != "SUBSCRIBE" {
		t.Errorf("method = %v, want SUBSCRIBE", parsed["method"])
	}
}

func TestOnMessage_ReceivesEcho(t *testing.T) {
	url, cleanup := startServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	})
	defer cleanup()

	client, err := New(testConfig(url))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	echoed := make(chan []byte, 1)
	client.OnMessage(func(ctx context.Context, msg []byte) {
		echoed <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	want := []byte(`{"ping":1}`)
	if err := client.Send(ctx, want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-echoed:
		if string(got) != string(want) {
			t.Errorf("echoed = %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	url, cleanup := startServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	defer cleanup()

	client, err := New(testConfig(url))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.State() != StateClosed {
		t.Errorf("State() = %v, want closed", client.State())
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestReadLimit_TriggersReconnect(t *testing.T) {
	url, cleanup := startServer(t, func(conn *websocket.Conn) {
		large := make([]byte, 4096)
		for i := range large {
			large[i] = 'x'
		}
		conn.Write(context.Background(), websocket.MessageText, large)
		time.Sleep(100 * time.Millisecond)
	})
	defer cleanup()

	cfg := testConfig(url)
	cfg.MaxMessageSize = 64

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if state := client.State(); state == StateConnected {
		t.Errorf("State() = %v after oversized frame, want not connected", state)
	}
}
