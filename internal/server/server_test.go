package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"triviaduel/internal/domain"
	"triviaduel/internal/infra/memory"
	"triviaduel/internal/protocol"
)

func testPack() map[string]domain.QuestionPack {
	return map[string]domain.QuestionPack{
		"pack-1": {
			ID: "pack-1",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
				{ID: "q2", Prompt: "Capital of Japan?", Options: []string{"Osaka", "Kyoto", "Tokyo"}, CorrectIndex: 2},
			},
		},
	}
}

func correctIndexFor(t *testing.T, questionID string) int {
	t.Helper()
	for _, q := range testPack()["pack-1"].Questions {
		if q.ID == questionID {
			return q.CorrectIndex
		}
	}
	t.Fatalf("unknown question %q", questionID)
	return -1
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	packs := memory.NewPackRepository(memory.NewStaticPackLoader(testPack()), time.Minute)
	duelServer := New(ctx, Config{
		PackID:            "pack-1",
		QuestionsPerDuel:  2,
		QuestionTimeLimit: 10,
		ReadyTimeout:      5 * time.Second,
		RoundDelay:        10 * time.Millisecond,
	}, packs)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", duelServer.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server, "ws" + server.URL[len("http"):] + "/ws"
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCmd(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	raw, err := protocol.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode %T: %v", cmd, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write %T: %v", cmd, err)
	}
}

func messageAction(msg protocol.Message) string {
	switch msg.(type) {
	case protocol.Queued:
		return protocol.ActionQueued
	case protocol.MatchFound:
		return protocol.ActionMatchFound
	case protocol.Question:
		return protocol.ActionQuestion
	case protocol.RoundResult:
		return protocol.ActionRoundResult
	case protocol.DuelComplete:
		return protocol.ActionDuelComplete
	case protocol.OpponentLeft:
		return protocol.ActionOpponentLeft
	case protocol.ServerError:
		return protocol.ActionError
	case protocol.Pong:
		return protocol.ActionPong
	}
	return ""
}

// await reads frames until one with the wanted action arrives, skipping
// everything else (queue updates, pongs).
func await(t *testing.T, conn *websocket.Conn, action string) protocol.Message {
	t.Helper()
	for i := 0; i < 20; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", action, err)
		}
		msg, err := protocol.DecodeMessage(raw)
		if err != nil {
			t.Fatalf("decode waiting for %s: %v", action, err)
		}
		if messageAction(msg) == action {
			return msg
		}
	}
	t.Fatalf("gave up waiting for %s", action)
	return nil
}

func TestPingPong(t *testing.T) {
	_, url := newTestServer(t)
	conn := dialClient(t, url)

	sendCmd(t, conn, protocol.Ping{})
	await(t, conn, protocol.ActionPong)
}

func TestQueuePosition(t *testing.T) {
	_, url := newTestServer(t)
	conn := dialClient(t, url)

	sendCmd(t, conn, protocol.JoinQueue{PlayerID: "p1", DisplayName: "Ann"})
	queued := await(t, conn, protocol.ActionQueued).(protocol.Queued)
	if queued.Position != 1 {
		t.Fatalf("expected position 1, got %d", queued.Position)
	}

	sendCmd(t, conn, protocol.LeaveQueue{PlayerID: "p1"})
	sendCmd(t, conn, protocol.JoinQueue{PlayerID: "p1", DisplayName: "Ann"})
	queued = await(t, conn, protocol.ActionQueued).(protocol.Queued)
	if queued.Position != 1 {
		t.Fatalf("expected position 1 after rejoin, got %d", queued.Position)
	}
}

func TestFullDuel(t *testing.T) {
	_, url := newTestServer(t)
	c1 := dialClient(t, url)
	c2 := dialClient(t, url)

	sendCmd(t, c1, protocol.JoinQueue{PlayerID: "p1", DisplayName: "Ann"})
	await(t, c1, protocol.ActionQueued)
	sendCmd(t, c2, protocol.JoinQueue{PlayerID: "p2", DisplayName: "Bo"})

	mf1 := await(t, c1, protocol.ActionMatchFound).(protocol.MatchFound)
	mf2 := await(t, c2, protocol.ActionMatchFound).(protocol.MatchFound)
	if mf1.MatchID != mf2.MatchID {
		t.Fatalf("match ids differ: %q vs %q", mf1.MatchID, mf2.MatchID)
	}
	if mf1.OpponentID != "p2" || mf2.OpponentID != "p1" {
		t.Fatalf("wrong opponents: %+v / %+v", mf1, mf2)
	}
	if mf1.PlayerID != "p1" || mf2.PlayerID != "p2" {
		t.Fatalf("player id echo wrong: %+v / %+v", mf1, mf2)
	}

	sendCmd(t, c1, protocol.Ready{MatchID: mf1.MatchID, PlayerID: "p1"})
	sendCmd(t, c2, protocol.Ready{MatchID: mf2.MatchID, PlayerID: "p2"})

	for round := 0; round < 2; round++ {
		q1 := await(t, c1, protocol.ActionQuestion).(protocol.Question)
		q2 := await(t, c2, protocol.ActionQuestion).(protocol.Question)
		if q1.QuestionID != q2.QuestionID {
			t.Fatalf("players got different questions: %q vs %q", q1.QuestionID, q2.QuestionID)
		}
		if q1.TimeLimit != 10 || len(q1.Options) == 0 {
			t.Fatalf("unexpected question payload: %+v", q1)
		}

		correct := correctIndexFor(t, q1.QuestionID)
		// p1 answers correctly, p2 misses.
		sendCmd(t, c1, protocol.SubmitAnswer{PlayerID: "p1", QuestionID: q1.QuestionID, AnswerIndex: correct})
		sendCmd(t, c2, protocol.SubmitAnswer{PlayerID: "p2", QuestionID: q2.QuestionID, AnswerIndex: (correct + 1) % len(q1.Options)})

		rr := await(t, c1, protocol.ActionRoundResult).(protocol.RoundResult)
		await(t, c2, protocol.ActionRoundResult)
		if rr.MatchID != mf1.MatchID {
			t.Fatalf("round result for wrong match: %+v", rr)
		}
		if rr.Player1Correct == nil || !*rr.Player1Correct {
			t.Fatalf("expected player1 correct: %+v", rr)
		}
		if rr.Player2Correct == nil || *rr.Player2Correct {
			t.Fatalf("expected player2 wrong: %+v", rr)
		}
		if rr.CorrectAnswer != correct {
			t.Fatalf("correct answer mismatch: got %d want %d", rr.CorrectAnswer, correct)
		}
		if rr.TimedOut {
			t.Fatalf("round should not have timed out")
		}
	}

	dc1 := await(t, c1, protocol.ActionDuelComplete).(protocol.DuelComplete)
	dc2 := await(t, c2, protocol.ActionDuelComplete).(protocol.DuelComplete)
	if dc1.WinnerID != "p1" || dc2.WinnerID != "p1" {
		t.Fatalf("expected p1 to win: %+v / %+v", dc1, dc2)
	}
}

func TestOpponentLeftMidMatch(t *testing.T) {
	_, url := newTestServer(t)
	c1 := dialClient(t, url)
	c2 := dialClient(t, url)

	sendCmd(t, c1, protocol.JoinQueue{PlayerID: "p1", DisplayName: "Ann"})
	await(t, c1, protocol.ActionQueued)
	sendCmd(t, c2, protocol.JoinQueue{PlayerID: "p2", DisplayName: "Bo"})

	mf1 := await(t, c1, protocol.ActionMatchFound).(protocol.MatchFound)
	mf2 := await(t, c2, protocol.ActionMatchFound).(protocol.MatchFound)
	sendCmd(t, c1, protocol.Ready{MatchID: mf1.MatchID, PlayerID: "p1"})
	sendCmd(t, c2, protocol.Ready{MatchID: mf2.MatchID, PlayerID: "p2"})

	await(t, c1, protocol.ActionQuestion)
	c2.Close()

	left := await(t, c1, protocol.ActionOpponentLeft).(protocol.OpponentLeft)
	if left.MatchID != mf1.MatchID {
		t.Fatalf("opponent_left for wrong match: %+v", left)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	_, url := newTestServer(t)
	conn := dialClient(t, url)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"foo","data":{}}`))

	// Connection survives; ping still answered.
	sendCmd(t, conn, protocol.Ping{})
	await(t, conn, protocol.ActionPong)
}

func TestJoinQueueRequiresIdentity(t *testing.T) {
	_, url := newTestServer(t)
	conn := dialClient(t, url)

	sendCmd(t, conn, protocol.JoinQueue{})
	msg := await(t, conn, protocol.ActionError).(protocol.ServerError)
	if msg.Message == "" {
		t.Fatalf("expected an error message")
	}
}
