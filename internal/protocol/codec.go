package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction marks a frame whose discriminator maps to no variant.
	// Callers log and drop these; they are never fatal.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformedPayload marks a known action whose payload failed to parse.
	ErrMalformedPayload = errors.New("malformed payload")
)

type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage parses a server-to-client frame.
func DecodeMessage(raw []byte) (Message, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Action {
	case ActionQueued:
		return decodePayload[Queued](env)
	case ActionMatchFound:
		return decodePayload[MatchFound](env)
	case ActionQuestion:
		return decodePayload[Question](env)
	case ActionRoundResult:
		return decodePayload[RoundResult](env)
	case ActionDuelComplete:
		return decodePayload[DuelComplete](env)
	case ActionOpponentLeft:
		return decodePayload[OpponentLeft](env)
	case ActionError:
		return decodePayload[ServerError](env)
	case ActionPong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

// DecodeCommand parses a client-to-server frame.
func DecodeCommand(raw []byte) (Command, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Action {
	case ActionJoinQueue:
		return decodePayload[JoinQueue](env)
	case ActionLeaveQueue:
		return decodePayload[LeaveQueue](env)
	case ActionReady:
		return decodePayload[Ready](env)
	case ActionSubmitAnswer:
		return decodePayload[SubmitAnswer](env)
	case ActionPing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

// EncodeCommand serializes a client-to-server frame. It is total for every
// Command variant declared in this package.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.(type) {
	case JoinQueue:
		return encode(ActionJoinQueue, cmd)
	case LeaveQueue:
		return encode(ActionLeaveQueue, cmd)
	case Ready:
		return encode(ActionReady, cmd)
	case SubmitAnswer:
		return encode(ActionSubmitAnswer, cmd)
	case Ping:
		return encode(ActionPing, nil)
	default:
		return nil, fmt.Errorf("protocol: cannot encode command %T", cmd)
	}
}

// EncodeMessage serializes a server-to-client frame.
func EncodeMessage(msg Message) ([]byte, error) {
	switch msg.(type) {
	case Queued:
		return encode(ActionQueued, msg)
	case MatchFound:
		return encode(ActionMatchFound, msg)
	case Question:
		return encode(ActionQuestion, msg)
	case RoundResult:
		return encode(ActionRoundResult, msg)
	case DuelComplete:
		return encode(ActionDuelComplete, msg)
	case OpponentLeft:
		return encode(ActionOpponentLeft, msg)
	case ServerError:
		return encode(ActionError, msg)
	case Pong:
		return encode(ActionPong, nil)
	default:
		return nil, fmt.Errorf("protocol: cannot encode message %T", msg)
	}
}

func parseEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Action == "" {
		return env, fmt.Errorf("%w: missing action", ErrMalformedPayload)
	}
	return env, nil
}

func decodePayload[T any](env envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%w: %s without data", ErrMalformedPayload, env.Action)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Action, err)
	}
	return payload, nil
}

func encode(action string, payload any) ([]byte, error) {
	env := envelope{Action: action}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}
