// Package server is a reference duel server speaking the same wire contract
// as the client engine. It exists so the engine can be exercised end-to-end,
// both in tests and via the serve command.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"triviaduel/internal/domain"
	"triviaduel/internal/protocol"
)

// PackRepository loads question packs (from cache/backing store).
type PackRepository interface {
	GetPack(ctx context.Context, packID string) (domain.QuestionPack, error)
}

// Config tunes duel pacing.
type Config struct {
	PackID            string
	QuestionsPerDuel  int
	QuestionTimeLimit int // whole seconds, per-question fallback
	ReadyTimeout      time.Duration
	RoundDelay        time.Duration
}

func (c Config) withDefaults() Config {
	if c.PackID == "" {
		c.PackID = "pack-1"
	}
	if c.QuestionsPerDuel <= 0 {
		c.QuestionsPerDuel = 5
	}
	if c.QuestionTimeLimit <= 0 {
		c.QuestionTimeLimit = 15
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 15 * time.Second
	}
	if c.RoundDelay < 0 {
		c.RoundDelay = 0
	}
	return c
}

// Server upgrades websocket connections and routes decoded commands to the
// matchmaker or the player's current match.
type Server struct {
	cfg      Config
	mm       *matchmaker
	upgrader websocket.Upgrader
}

func New(ctx context.Context, cfg Config, packs PackRepository) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg: cfg,
		mm:  newMatchmaker(ctx, cfg, packs),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and runs the connection's read loop.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: ws upgrade failed: %v", err)
		return
	}
	p := newPlayer(conn)
	go p.writePump()

	defer func() {
		if m := p.currentMatch(); m != nil {
			m.post(matchLeft{playerID: p.playerID()})
		} else if p.playerID() != "" {
			s.mm.post(mmDequeue{p: p})
		}
		p.close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			// Unknown or malformed frames are dropped, never fatal.
			log.Printf("server: dropping frame from %s: %v", p.playerID(), err)
			continue
		}
		s.dispatch(p, cmd)
	}
}

func (s *Server) dispatch(p *player, cmd protocol.Command) {
	switch cmd := cmd.(type) {
	case protocol.Ping:
		p.deliver(protocol.Pong{})
	case protocol.JoinQueue:
		if cmd.PlayerID == "" {
			p.deliver(protocol.ServerError{Message: "join_queue requires player_id"})
			return
		}
		if p.currentMatch() != nil {
			return
		}
		p.setIdentity(cmd.PlayerID, cmd.DisplayName)
		s.mm.post(mmEnqueue{p: p})
	case protocol.LeaveQueue:
		if p.currentMatch() != nil {
			return
		}
		s.mm.post(mmDequeue{p: p})
	case protocol.Ready:
		if m := p.currentMatch(); m != nil && m.id == cmd.MatchID {
			m.post(matchReady{playerID: p.playerID()})
		}
	case protocol.SubmitAnswer:
		if m := p.currentMatch(); m != nil {
			m.post(matchAnswer{
				playerID:   p.playerID(),
				questionID: cmd.QuestionID,
				index:      cmd.AnswerIndex,
			})
		}
	}
}
