package server

import (
	"context"
	"time"

	"triviaduel/internal/domain"
	"triviaduel/internal/protocol"
)

type matchEvent interface{ isMatchEvent() }

type matchReady struct{ playerID string }
type matchAnswer struct {
	playerID   string
	questionID string
	index      int
}
type matchLeft struct{ playerID string }

func (matchReady) isMatchEvent()  {}
func (matchAnswer) isMatchEvent() {}
func (matchLeft) isMatchEvent()   {}

// match runs one duel between two players as a single goroutine. Player
// read loops post events into the inbox; the match owns all duel state.
type match struct {
	id        string
	cfg       Config
	players   [2]*player
	questions []domain.Question
	inbox     chan matchEvent
	ctx       context.Context
}

func newMatch(ctx context.Context, id string, cfg Config, players [2]*player, questions []domain.Question) *match {
	return &match{
		id:        id,
		cfg:       cfg,
		players:   players,
		questions: questions,
		inbox:     make(chan matchEvent, 16),
		ctx:       ctx,
	}
}

func (m *match) post(ev matchEvent) {
	select {
	case m.inbox <- ev:
	case <-m.ctx.Done():
	}
}

func (m *match) run() {
	defer func() {
		for _, p := range m.players {
			p.setMatch(nil)
		}
	}()

	if !m.awaitReady() {
		return
	}

	var scores [2]int
	for _, q := range m.questions {
		limit := q.TimeLimitSec
		if limit <= 0 {
			limit = m.cfg.QuestionTimeLimit
		}
		m.broadcast(protocol.Question{
			QuestionID:   q.ID,
			QuestionText: q.Prompt,
			Options:      q.Options,
			TimeLimit:    limit,
		})

		correct, timedOut, ok := m.collectAnswers(q, limit)
		if !ok {
			return
		}
		for i := range correct {
			if correct[i] != nil && *correct[i] {
				scores[i]++
			}
		}
		m.broadcast(protocol.RoundResult{
			MatchID:        m.id,
			Player1Correct: correct[0],
			Player2Correct: correct[1],
			CorrectAnswer:  q.CorrectIndex,
			TimedOut:       timedOut,
		})

		if !m.pause(m.cfg.RoundDelay) {
			return
		}
	}

	winner := ""
	if scores[0] > scores[1] {
		winner = m.players[0].playerID()
	} else if scores[1] > scores[0] {
		winner = m.players[1].playerID()
	}
	m.broadcast(protocol.DuelComplete{MatchID: m.id, WinnerID: winner})
}

// awaitReady blocks until both players acknowledge the match. A departure or
// a ready timeout cancels the duel.
func (m *match) awaitReady() bool {
	ready := [2]bool{}
	timeout := time.After(m.cfg.ReadyTimeout)
	for !(ready[0] && ready[1]) {
		select {
		case <-m.ctx.Done():
			return false
		case <-timeout:
			m.broadcast(protocol.OpponentLeft{MatchID: m.id, Reason: "opponent did not ready up"})
			return false
		case ev := <-m.inbox:
			switch ev := ev.(type) {
			case matchReady:
				if i := m.seat(ev.playerID); i >= 0 {
					ready[i] = true
				}
			case matchLeft:
				m.notifyLeft(ev.playerID, "disconnected")
				return false
			}
		}
	}
	return true
}

// collectAnswers gathers both answers for q or runs out the clock. ok is
// false when the duel ended early (departure or shutdown).
func (m *match) collectAnswers(q domain.Question, limitSec int) (correct [2]*bool, timedOut bool, ok bool) {
	deadline := time.NewTimer(time.Duration(limitSec) * time.Second)
	defer deadline.Stop()

	answered := 0
	for answered < 2 {
		select {
		case <-m.ctx.Done():
			return correct, false, false
		case <-deadline.C:
			return correct, true, true
		case ev := <-m.inbox:
			switch ev := ev.(type) {
			case matchAnswer:
				if ev.questionID != q.ID {
					continue // stale answer for an earlier question
				}
				i := m.seat(ev.playerID)
				if i < 0 || correct[i] != nil {
					continue
				}
				v := ev.index == q.CorrectIndex
				correct[i] = &v
				answered++
			case matchLeft:
				m.notifyLeft(ev.playerID, "disconnected")
				return correct, false, false
			}
		}
	}
	return correct, false, true
}

// pause waits between rounds while still reacting to departures.
func (m *match) pause(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-timer.C:
			return true
		case ev := <-m.inbox:
			if left, isLeft := ev.(matchLeft); isLeft {
				m.notifyLeft(left.playerID, "disconnected")
				return false
			}
		}
	}
}

func (m *match) seat(playerID string) int {
	for i, p := range m.players {
		if p.playerID() == playerID {
			return i
		}
	}
	return -1
}

func (m *match) notifyLeft(leftID, reason string) {
	for _, p := range m.players {
		if p.playerID() != leftID {
			p.deliver(protocol.OpponentLeft{MatchID: m.id, Reason: reason})
		}
	}
}

func (m *match) broadcast(msg protocol.Message) {
	for _, p := range m.players {
		p.deliver(msg)
	}
}
