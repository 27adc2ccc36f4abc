package duel

import (
	"time"

	"triviaduel/internal/domain"
)

// ConnectionStatus describes the health of the link to the duel server.
type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnReconnecting ConnectionStatus = "reconnecting"
	// ConnError is terminal: reconnect attempts are exhausted and only an
	// explicit Connect call leaves this state.
	ConnError ConnectionStatus = "error"
)

// DuelStatus tracks progress through a match.
type DuelStatus string

const (
	DuelNone              DuelStatus = ""
	DuelWaitingForPlayer  DuelStatus = "waiting_for_player"
	DuelInProgress        DuelStatus = "in_progress"
	DuelQuestionDisplayed DuelStatus = "question_displayed"
	DuelWaitingForAnswers DuelStatus = "waiting_for_answers"
	DuelRoundComplete     DuelStatus = "round_complete"
	DuelFinished          DuelStatus = "finished"
)

// Match identifies the pairing for the duration of a duel.
type Match struct {
	ID        string
	Player    domain.Identity
	Opponent  domain.Identity
	CreatedAt time.Time
}

// QuestionView is the client-side view of the current question. The correct
// option index is unknown until the round result arrives.
type QuestionView struct {
	ID        string
	Prompt    string
	Options   []string
	TimeLimit int
}

// RoundOutcome is the authoritative result of one round as reported by the
// server. A nil correctness flag means that participant never answered.
type RoundOutcome struct {
	Player1Correct *bool
	Player2Correct *bool
	CorrectAnswer  int
	TimedOut       bool
}

// State is the externally observable snapshot of the engine. Every
// transition produces a fresh value; nested pointers are never mutated after
// publication, so snapshots can be held and diffed freely.
type State struct {
	Connection ConnectionStatus
	User       domain.Identity

	InQueue       bool
	QueuePosition int
	QueueSince    time.Time
	IsSearching   bool

	Match         *Match
	Duel          DuelStatus
	Question      *QuestionView
	TimeRemaining int

	SelectedAnswer int // -1 when nothing selected
	HasAnswered    bool

	LastRound *RoundOutcome
	WinnerID  string

	Err string
}
