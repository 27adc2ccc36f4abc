package server

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"triviaduel/internal/domain"
	"triviaduel/internal/protocol"
)

type mmEvent interface{ isMMEvent() }

type mmEnqueue struct{ p *player }
type mmDequeue struct{ p *player }

func (mmEnqueue) isMMEvent() {}
func (mmDequeue) isMMEvent() {}

// matchmaker pairs waiting players two at a time. It runs as a single
// goroutine owning the queue; handlers talk to it only through the inbox.
type matchmaker struct {
	cfg   Config
	packs PackRepository
	inbox chan mmEvent
	queue []*player
	rnd   *rand.Rand

	ctx context.Context
}

func newMatchmaker(ctx context.Context, cfg Config, packs PackRepository) *matchmaker {
	m := &matchmaker{
		cfg:   cfg,
		packs: packs,
		inbox: make(chan mmEvent, 64),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:   ctx,
	}
	go m.loop()
	return m
}

func (m *matchmaker) post(ev mmEvent) {
	select {
	case m.inbox <- ev:
	case <-m.ctx.Done():
	}
}

func (m *matchmaker) loop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.inbox:
			switch ev := ev.(type) {
			case mmEnqueue:
				m.enqueue(ev.p)
			case mmDequeue:
				m.remove(ev.p)
			}
		}
	}
}

func (m *matchmaker) enqueue(p *player) {
	for _, waiting := range m.queue {
		if waiting == p {
			return
		}
	}
	m.queue = append(m.queue, p)
	m.broadcastPositions()
	m.tryMatch()
}

func (m *matchmaker) remove(p *player) {
	for i, waiting := range m.queue {
		if waiting == p {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.broadcastPositions()
			return
		}
	}
}

// broadcastPositions keeps every waiting player's queued position current.
func (m *matchmaker) broadcastPositions() {
	for i, p := range m.queue {
		p.deliver(protocol.Queued{Position: i + 1})
	}
}

func (m *matchmaker) tryMatch() {
	for len(m.queue) >= 2 {
		p1, p2 := m.queue[0], m.queue[1]
		m.queue = m.queue[2:]
		m.startMatch(p1, p2)
	}
	m.broadcastPositions()
}

func (m *matchmaker) startMatch(p1, p2 *player) {
	questions, err := m.drawQuestions()
	if err != nil {
		log.Printf("server: cannot start match: %v", err)
		p1.deliver(protocol.ServerError{Message: "matchmaking failed, please rejoin the queue"})
		p2.deliver(protocol.ServerError{Message: "matchmaking failed, please rejoin the queue"})
		return
	}

	match := newMatch(m.ctx, uuid.NewString(), m.cfg, [2]*player{p1, p2}, questions)
	p1.setMatch(match)
	p2.setMatch(match)
	go match.run()

	p1.deliver(protocol.MatchFound{
		MatchID:      match.id,
		OpponentID:   p2.playerID(),
		OpponentName: p2.displayName(),
		PlayerID:     p1.playerID(),
	})
	p2.deliver(protocol.MatchFound{
		MatchID:      match.id,
		OpponentID:   p1.playerID(),
		OpponentName: p1.displayName(),
		PlayerID:     p2.playerID(),
	})
}

// drawQuestions loads the configured pack and samples questions for one duel.
func (m *matchmaker) drawQuestions() ([]domain.Question, error) {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	pack, err := m.packs.GetPack(ctx, m.cfg.PackID)
	if err != nil {
		return nil, err
	}
	if len(pack.Questions) == 0 {
		return nil, domain.ErrEmptyPack
	}

	picked := make([]domain.Question, len(pack.Questions))
	copy(picked, pack.Questions)
	m.rnd.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	if len(picked) > m.cfg.QuestionsPerDuel {
		picked = picked[:m.cfg.QuestionsPerDuel]
	}
	return picked, nil
}
