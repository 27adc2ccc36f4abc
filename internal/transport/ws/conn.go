// Package ws owns the raw duplex connection to the duel server. It knows
// nothing about the protocol beyond "a frame is a text message"; decoding
// belongs to the layers above.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a connection lifecycle notification delivered to the single
// consumer of Conn.Events.
type Event interface{ isEvent() }

// Opened is the first event on every connection.
type Opened struct{}

// Frame carries one raw inbound frame.
type Frame struct {
	Data []byte
}

// Closed is the last event on every connection. Err is nil only for a
// locally requested shutdown.
type Closed struct {
	Err error
}

func (Opened) isEvent() {}
func (Frame) isEvent()  {}
func (Closed) isEvent() {}

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 32
)

// Conn is a client-side websocket connection. A single reader goroutine
// feeds Events; a single writer goroutine drains Send. Both stop once the
// underlying socket dies, after which Events yields Closed and is closed.
type Conn struct {
	ws     *websocket.Conn
	events chan Event
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
	local     bool // set before closing locally, read by the read pump
	localMu   sync.Mutex
}

// Dial opens a websocket connection to url. The returned Conn has already
// queued an Opened event.
func Dial(ctx context.Context, url string) (*Conn, error) {
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:     socket,
		events: make(chan Event, sendQueueSize),
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
	c.events <- Opened{}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Events returns the lifecycle stream. It is closed after the final Closed
// event; ranging over it is the intended consumption pattern.
func (c *Conn) Events() <-chan Event { return c.events }

// Send enqueues a frame for transmission. It never blocks indefinitely: a
// frame offered to a dead connection is dropped, and the failure surfaces
// through the Closed event instead.
func (c *Conn) Send(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	}
}

// Close shuts the connection down. Idempotent and safe to call concurrently
// with inbound traffic; the events channel closes shortly after.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.localMu.Lock()
		c.local = true
		c.localMu.Unlock()
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}

func (c *Conn) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.localMu.Lock()
			local := c.local
			c.localMu.Unlock()
			if local {
				c.events <- Closed{}
			} else {
				c.events <- Closed{Err: err}
			}
			c.Close()
			return
		}
		c.events <- Frame{Data: data}
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				// The read pump observes the broken socket and reports Closed.
				c.Close()
				return
			}
		}
	}
}
