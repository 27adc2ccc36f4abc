package protocol

// Wire actions. One frame = one JSON envelope {"action": ..., "data": {...}}.
const (
	ActionJoinQueue    = "join_queue"
	ActionLeaveQueue   = "leave_queue"
	ActionReady        = "ready"
	ActionSubmitAnswer = "submit_answer"
	ActionPing         = "ping"

	ActionQueued       = "queued"
	ActionMatchFound   = "match_found"
	ActionQuestion     = "question"
	ActionRoundResult  = "round_result"
	ActionDuelComplete = "duel_complete"
	ActionOpponentLeft = "opponent_left"
	ActionError        = "error"
	ActionPong         = "pong"
)

// Message is a server-to-client frame payload.
type Message interface{ isMessage() }

// Command is a client-to-server frame payload.
type Command interface{ isCommand() }

// Queued reports the client's position in the matchmaking queue.
type Queued struct {
	Position int `json:"position"`
}

// MatchFound pairs the client with an opponent. PlayerID echoes the
// recipient's own id so the client can tell which seat it holds.
type MatchFound struct {
	MatchID      string `json:"match_id"`
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
	PlayerID     string `json:"player_id"`
}

// Question delivers one question of the duel. The correct option index is
// deliberately absent; it arrives with the RoundResult.
type Question struct {
	QuestionID   string   `json:"question_id"`
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
	TimeLimit    int      `json:"time_limit"`
}

// RoundResult is the authoritative per-round outcome. Correctness flags are
// nil for a participant who never answered.
type RoundResult struct {
	MatchID        string `json:"match_id"`
	Player1Correct *bool  `json:"player1_correct"`
	Player2Correct *bool  `json:"player2_correct"`
	CorrectAnswer  int    `json:"correct_answer"`
	TimedOut       bool   `json:"timed_out"`
}

// DuelComplete ends the match. WinnerID is empty on a draw.
type DuelComplete struct {
	MatchID  string `json:"match_id"`
	WinnerID string `json:"winner_id,omitempty"`
}

// OpponentLeft ends the match because the peer went away.
type OpponentLeft struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}

// ServerError carries a recoverable, user-displayable error message.
type ServerError struct {
	Message string `json:"message"`
}

// Pong answers a Ping. Handled by the heartbeat layer, never by the engine.
type Pong struct{}

func (Queued) isMessage()       {}
func (MatchFound) isMessage()   {}
func (Question) isMessage()     {}
func (RoundResult) isMessage()  {}
func (DuelComplete) isMessage() {}
func (OpponentLeft) isMessage() {}
func (ServerError) isMessage()  {}
func (Pong) isMessage()         {}

// JoinQueue enters matchmaking under the given identity.
type JoinQueue struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// LeaveQueue withdraws from matchmaking.
type LeaveQueue struct {
	PlayerID string `json:"player_id"`
}

// Ready acknowledges a MatchFound; the duel starts once both sides are ready.
type Ready struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
}

// SubmitAnswer locks in an option for the current question.
type SubmitAnswer struct {
	PlayerID    string `json:"player_id"`
	QuestionID  string `json:"question_id"`
	AnswerIndex int    `json:"answer_index"`
}

// Ping probes connection liveness.
type Ping struct{}

func (JoinQueue) isCommand()    {}
func (LeaveQueue) isCommand()   {}
func (Ready) isCommand()        {}
func (SubmitAnswer) isCommand() {}
func (Ping) isCommand()         {}
