package server

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"triviaduel/internal/protocol"
)

// player is one connected client. A single writer goroutine drains send so
// concurrent match/matchmaker broadcasts never write to the socket directly.
type player struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	id    string
	name  string
	match *match

	closeOnce sync.Once
}

func newPlayer(conn *websocket.Conn) *player {
	return &player{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (p *player) writePump() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write to %s: %v", p.playerID(), err)
				return
			}
		}
	}
}

// deliver encodes and queues a frame. Frames to a slow or dead client are
// dropped; the read loop notices the broken socket and cleans up.
func (p *player) deliver(msg protocol.Message) {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		log.Printf("server: encode %T: %v", msg, err)
		return
	}
	select {
	case p.send <- data:
	case <-p.done:
	default:
		log.Printf("server: dropping %T for slow client %s", msg, p.playerID())
	}
}

func (p *player) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *player) setIdentity(id, name string) {
	p.mu.Lock()
	p.id = id
	p.name = name
	p.mu.Unlock()
}

func (p *player) playerID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *player) displayName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *player) setMatch(m *match) {
	p.mu.Lock()
	p.match = m
	p.mu.Unlock()
}

func (p *player) currentMatch() *match {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.match
}
