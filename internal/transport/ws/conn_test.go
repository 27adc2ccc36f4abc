package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func wsURL(server *httptest.Server) string {
	return "ws" + server.URL[len("http"):] + "/ws"
}

func nextEvent(t *testing.T, conn *Conn) Event {
	t.Helper()
	select {
	case ev, ok := <-conn.Events():
		if !ok {
			t.Fatalf("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestDialSendReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, ok := nextEvent(t, conn).(Opened); !ok {
		t.Fatalf("expected Opened first")
	}

	conn.Send([]byte(`{"hello":"duel"}`))
	frame, ok := nextEvent(t, conn).(Frame)
	if !ok {
		t.Fatalf("expected echoed Frame")
	}
	if string(frame.Data) != `{"hello":"duel"}` {
		t.Fatalf("unexpected echo: %s", frame.Data)
	}
}

func TestLocalCloseEndsEventStream(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	nextEvent(t, conn) // Opened

	conn.Close()
	conn.Close() // idempotent

	closed, ok := nextEvent(t, conn).(Closed)
	if !ok {
		t.Fatalf("expected Closed after local close")
	}
	if closed.Err != nil {
		t.Fatalf("local close should not report an error, got %v", closed.Err)
	}
	if _, ok := <-conn.Events(); ok {
		t.Fatalf("events channel should close after Closed")
	}
}

func TestServerCloseReportsError(t *testing.T) {
	server := echoServer(t)

	conn, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	nextEvent(t, conn) // Opened

	server.CloseClientConnections()

	for {
		ev := nextEvent(t, conn)
		if closed, ok := ev.(Closed); ok {
			if closed.Err == nil {
				t.Fatalf("remote close should carry an error")
			}
			break
		}
	}
	server.Close()
}

func TestSendAfterCloseDoesNotBlock(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			conn.Send([]byte("late frame"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Send blocked on a closed connection")
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatalf("expected dial error for dead endpoint")
	}
}
