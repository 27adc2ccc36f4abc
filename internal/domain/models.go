package domain

// Identity names a player for the lifetime of a connection.
type Identity struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

// Question models an MCQ question with exactly one correct option.
// CorrectIndex is server-side knowledge; it never rides along with the
// question frame sent to clients, only with the round result.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	TimeLimitSec int      `json:"timeLimitSec"` // defaults to the server-wide limit if zero
}

// QuestionPack is a bank of questions a duel draws from.
type QuestionPack struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}
