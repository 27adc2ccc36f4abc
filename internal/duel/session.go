package duel

import (
	"log"
	"time"

	"triviaduel/internal/protocol"
	"triviaduel/internal/transport/ws"
)

// session couples one live Transport to the engine: a read pump that decodes
// frames and forwards them to the engine inbox, and a heartbeat pump that
// pings the server and force-closes the connection on a missed pong. Pongs
// are consumed here and never reach the engine.
type session struct {
	c    *Client
	conn Transport
	gen  int

	pong chan struct{}
	done chan struct{}
}

func newSession(c *Client, conn Transport, gen int) *session {
	return &session{
		c:    c,
		conn: conn,
		gen:  gen,
		pong: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.done)
	for ev := range s.conn.Events() {
		switch ev := ev.(type) {
		case ws.Opened:
			s.c.post(evOpened{gen: s.gen})
			go s.heartbeat()
		case ws.Frame:
			msg, err := protocol.DecodeMessage(ev.Data)
			if err != nil {
				log.Printf("duel: dropping inbound frame: %v", err)
				continue
			}
			if _, ok := msg.(protocol.Pong); ok {
				select {
				case s.pong <- struct{}{}:
				default:
				}
				continue
			}
			s.c.post(evMessage{gen: s.gen, msg: msg})
		case ws.Closed:
			s.c.post(evClosed{gen: s.gen, err: ev.Err})
		}
	}
}

func (s *session) heartbeat() {
	ping, err := protocol.EncodeCommand(protocol.Ping{})
	if err != nil {
		log.Printf("duel: encode ping: %v", err)
		return
	}
	ticker := time.NewTicker(s.c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// Discard any pong left over from a previous round trip so it
			// cannot satisfy this ping.
			select {
			case <-s.pong:
			default:
			}
			s.conn.Send(ping)
			select {
			case <-s.pong:
			case <-time.After(s.c.cfg.PongTimeout):
				log.Printf("duel: pong timeout, closing connection")
				s.conn.Close()
				return
			case <-s.done:
				return
			}
		}
	}
}
