// Package duel implements the client-side duel engine: a single event loop
// that linearizes transport events, decoded server messages, countdown ticks
// and caller commands, and publishes immutable State snapshots to
// subscribers. Commands are fire-and-forget; invalid ones are no-ops.
package duel

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"triviaduel/internal/domain"
	"triviaduel/internal/protocol"
)

const inboxSize = 128

// event is the closed union the run loop consumes.
type event interface{ isEvent() }

type (
	cmdConnect      struct{}
	cmdDisconnect   struct{}
	cmdSetUser      struct{ user domain.Identity }
	cmdJoinQueue    struct{}
	cmdLeaveQueue   struct{}
	cmdSubmitAnswer struct{ index int }
	cmdClearError   struct{}
	cmdClearRound   struct{}

	evDialed struct {
		gen  int
		conn Transport
		err  error
	}
	evOpened  struct{ gen int }
	evClosed  struct {
		gen int
		err error
	}
	evMessage struct {
		gen int
		msg protocol.Message
	}
	evTick         struct{ epoch int }
	evRedial       struct{ drop int }
	evGraceExpired struct{ drop int }
	evSettle       struct{ matchID string }
)

func (cmdConnect) isEvent()      {}
func (cmdDisconnect) isEvent()   {}
func (cmdSetUser) isEvent()      {}
func (cmdJoinQueue) isEvent()    {}
func (cmdLeaveQueue) isEvent()   {}
func (cmdSubmitAnswer) isEvent() {}
func (cmdClearError) isEvent()   {}
func (cmdClearRound) isEvent()   {}
func (evDialed) isEvent()        {}
func (evOpened) isEvent()        {}
func (evClosed) isEvent()        {}
func (evMessage) isEvent()       {}
func (evTick) isEvent()          {}
func (evRedial) isEvent()        {}
func (evGraceExpired) isEvent()  {}
func (evSettle) isEvent()        {}

// Client is the engine plus its command facade. One instance per process,
// owned by the composition root.
type Client struct {
	cfg   Config
	inbox chan event

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	subscribers map[chan State]struct{}
	latest      State

	// Everything below is owned by the run loop and must not be touched
	// from any other goroutine.
	rnd        *rand.Rand
	now        func() time.Time
	conn       Transport
	gen        int // connection generation; stale session events are dropped
	dropGen    int // outage generation; stale redial/grace timers are dropped
	attempts   int
	explicit   bool // user asked for the disconnect, suppress reconnect
	rejoin     bool // re-send join_queue once the next connection opens
	tickEpoch  int
	cancelTick context.CancelFunc

	user          domain.Identity
	connStatus    ConnectionStatus
	inQueue       bool
	queuePos      int
	queueSince    time.Time
	searching     bool
	match         *Match
	duel          DuelStatus
	question      *QuestionView
	timeRemaining int
	selected      int
	hasAnswered   bool
	lastRound     *RoundOutcome
	winnerID      string
	errMsg        string
}

// NewClient creates the engine and starts its run loop. Call Close to tear
// it down.
func NewClient(cfg Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:         cfg.withDefaults(),
		inbox:       make(chan event, inboxSize),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[chan State]struct{}),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
		connStatus:  ConnDisconnected,
		selected:    -1,
	}
	c.latest = c.snapshot()
	go c.run()
	return c
}

// Close disconnects and stops the run loop. The client is unusable after.
func (c *Client) Close() {
	c.Disconnect()
	c.cancel()
}

// Connect opens the connection to the duel server. No-op while a connection
// attempt is already underway or established.
func (c *Client) Connect() { c.post(cmdConnect{}) }

// Disconnect closes the connection without triggering reconnection.
func (c *Client) Disconnect() { c.post(cmdDisconnect{}) }

// SetUser fixes the local identity. Ignored while queued or in a match.
func (c *Client) SetUser(user domain.Identity) { c.post(cmdSetUser{user: user}) }

// JoinQueue enters matchmaking. Requires a connection and an identity.
func (c *Client) JoinQueue() { c.post(cmdJoinQueue{}) }

// LeaveQueue withdraws from matchmaking. No-op when not queued.
func (c *Client) LeaveQueue() { c.post(cmdLeaveQueue{}) }

// SubmitAnswer locks in an option for the current question. Only the first
// accepted submission per question is transmitted; everything else is a
// no-op.
func (c *Client) SubmitAnswer(index int) { c.post(cmdSubmitAnswer{index: index}) }

// ClearError clears the transient error message.
func (c *Client) ClearError() { c.post(cmdClearError{}) }

// ClearLastRoundResult clears the stored round outcome and winner.
func (c *Client) ClearLastRoundResult() { c.post(cmdClearRound{}) }

// Subscribe registers a snapshot receiver. The current snapshot is delivered
// immediately, then every subsequent one with latest-value semantics: a slow
// reader sees the newest state, not a backlog. The caller must invoke the
// returned cancel function to avoid leaks.
func (c *Client) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	// Deliver under the lock so a concurrent publish cannot slip a newer
	// snapshot in ahead of this one. The channel is fresh and buffered, so
	// the send cannot block.
	ch <- c.latest
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// post enqueues an event without ever blocking the caller.
func (c *Client) post(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.ctx.Done():
	default:
		log.Printf("duel: inbox full, dropping %T", ev)
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.ctx.Done():
			c.stopTick()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			return
		case ev := <-c.inbox:
			if c.handle(ev) {
				c.publish()
			}
		}
	}
}

func (c *Client) handle(ev event) bool {
	switch ev := ev.(type) {
	case cmdConnect:
		return c.handleConnect()
	case cmdDisconnect:
		return c.handleDisconnect()
	case cmdSetUser:
		if c.inQueue || c.match != nil {
			return false
		}
		c.user = ev.user
		return true
	case cmdJoinQueue:
		return c.handleJoinQueue()
	case cmdLeaveQueue:
		return c.handleLeaveQueue()
	case cmdSubmitAnswer:
		return c.handleSubmitAnswer(ev.index)
	case cmdClearError:
		if c.errMsg == "" {
			return false
		}
		c.errMsg = ""
		return true
	case cmdClearRound:
		if c.lastRound == nil && c.winnerID == "" {
			return false
		}
		c.lastRound = nil
		c.winnerID = ""
		return true
	case evDialed:
		return c.handleDialed(ev)
	case evOpened:
		return c.handleOpened(ev)
	case evClosed:
		return c.handleClosed(ev)
	case evMessage:
		if ev.gen != c.gen {
			return false
		}
		return c.handleMessage(ev.msg)
	case evTick:
		return c.handleTick(ev)
	case evRedial:
		if c.explicit || ev.drop != c.dropGen || c.connStatus != ConnReconnecting {
			return false
		}
		c.startDial()
		return false
	case evGraceExpired:
		return c.handleGraceExpired(ev)
	case evSettle:
		return c.handleSettle(ev)
	default:
		return false
	}
}

func (c *Client) handleConnect() bool {
	switch c.connStatus {
	case ConnConnecting, ConnConnected, ConnReconnecting:
		return false
	}
	c.explicit = false
	c.attempts = 0
	c.errMsg = ""
	c.connStatus = ConnConnecting
	c.startDial()
	return true
}

func (c *Client) handleDisconnect() bool {
	if c.connStatus == ConnDisconnected {
		return false
	}
	c.explicit = true
	// Shutdown order: question timer first, then the transport; closing the
	// transport stops the session's heartbeat pump.
	c.stopTick()
	c.gen++ // orphan in-flight dials and session events
	c.dropGen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.resetToIdle()
	c.connStatus = ConnDisconnected
	c.errMsg = ""
	c.lastRound = nil
	c.winnerID = ""
	return true
}

func (c *Client) handleJoinQueue() bool {
	if c.connStatus != ConnConnected || c.inQueue || c.match != nil || c.user.PlayerID == "" {
		return false
	}
	c.send(protocol.JoinQueue{PlayerID: c.user.PlayerID, DisplayName: c.user.DisplayName})
	c.inQueue = true
	c.searching = true
	c.queuePos = 0
	c.queueSince = c.now()
	return true
}

func (c *Client) handleLeaveQueue() bool {
	if !c.inQueue {
		return false
	}
	c.send(protocol.LeaveQueue{PlayerID: c.user.PlayerID})
	c.inQueue = false
	c.searching = false
	c.queuePos = 0
	c.rejoin = false
	return true
}

func (c *Client) handleSubmitAnswer(index int) bool {
	if c.duel != DuelQuestionDisplayed && c.duel != DuelWaitingForAnswers {
		return false
	}
	if c.hasAnswered || c.question == nil || c.match == nil {
		return false
	}
	if index < 0 || index >= len(c.question.Options) {
		return false
	}
	c.selected = index
	c.hasAnswered = true
	c.duel = DuelWaitingForAnswers
	c.send(protocol.SubmitAnswer{
		PlayerID:    c.user.PlayerID,
		QuestionID:  c.question.ID,
		AnswerIndex: index,
	})
	return true
}

func (c *Client) startDial() {
	c.gen++
	gen := c.gen
	go func() {
		conn, err := c.cfg.Dial(c.ctx, c.cfg.ServerURL)
		c.post(evDialed{gen: gen, conn: conn, err: err})
	}()
}

func (c *Client) handleDialed(ev evDialed) bool {
	if ev.gen != c.gen {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return false
	}
	if ev.err != nil {
		c.connectionLost(ev.err)
		return true
	}
	c.conn = ev.conn
	s := newSession(c, ev.conn, ev.gen)
	go s.run()
	return false
}

func (c *Client) handleOpened(ev evOpened) bool {
	if ev.gen != c.gen {
		return false
	}
	c.connStatus = ConnConnected
	c.attempts = 0
	c.errMsg = ""
	if c.rejoin && c.user.PlayerID != "" {
		// Queue membership survived the outage; reclaim it exactly once.
		c.rejoin = false
		c.send(protocol.JoinQueue{PlayerID: c.user.PlayerID, DisplayName: c.user.DisplayName})
		c.inQueue = true
		c.searching = true
	}
	return true
}

func (c *Client) handleClosed(ev evClosed) bool {
	if ev.gen != c.gen {
		return false
	}
	c.conn = nil
	if c.explicit {
		return false
	}
	c.connectionLost(ev.err)
	return true
}

// connectionLost drives the reconnect policy: exponential backoff with full
// jitter, a grace period on queue/match state, and a terminal Error status
// once attempts are exhausted.
func (c *Client) connectionLost(err error) {
	c.stopTick()
	if c.connStatus == ConnConnected || c.connStatus == ConnConnecting {
		// Start of a new outage.
		c.dropGen++
		if c.inQueue {
			c.rejoin = true
		}
		if c.inQueue || c.match != nil {
			drop := c.dropGen
			time.AfterFunc(c.cfg.GracePeriod, func() {
				c.post(evGraceExpired{drop: drop})
			})
		}
	}
	if err != nil {
		log.Printf("duel: connection lost: %v", err)
	}
	if c.attempts >= c.cfg.ReconnectMaxAttempts {
		c.connStatus = ConnError
		c.errMsg = "connection lost; reconnect attempts exhausted"
		c.rejoin = false
		c.resetToIdle()
		return
	}
	c.attempts++
	c.connStatus = ConnReconnecting
	drop := c.dropGen
	delay := backoffDelay(c.attempts, c.cfg.ReconnectBase, c.cfg.ReconnectCap, c.rnd)
	time.AfterFunc(delay, func() {
		c.post(evRedial{drop: drop})
	})
}

func (c *Client) handleGraceExpired(ev evGraceExpired) bool {
	if ev.drop != c.dropGen || c.connStatus == ConnConnected {
		return false
	}
	// The outage outlived the grace period: queue membership and match
	// state are gone as far as the server is concerned.
	c.rejoin = false
	c.resetToIdle()
	return true
}

func (c *Client) handleMessage(msg protocol.Message) bool {
	switch msg := msg.(type) {
	case protocol.Queued:
		if !c.inQueue {
			return false
		}
		c.queuePos = msg.Position
		return true
	case protocol.MatchFound:
		return c.handleMatchFound(msg)
	case protocol.Question:
		return c.handleQuestion(msg)
	case protocol.RoundResult:
		return c.handleRoundResult(msg)
	case protocol.DuelComplete:
		return c.handleDuelComplete(msg)
	case protocol.OpponentLeft:
		return c.handleOpponentLeft(msg)
	case protocol.ServerError:
		c.errMsg = msg.Message
		return true
	default:
		return false
	}
}

func (c *Client) handleMatchFound(msg protocol.MatchFound) bool {
	if c.match != nil {
		log.Printf("duel: match_found %q while match %q active, dropping", msg.MatchID, c.match.ID)
		return false
	}
	c.inQueue = false
	c.searching = false
	c.queuePos = 0
	c.lastRound = nil
	c.winnerID = ""
	c.match = &Match{
		ID:        msg.MatchID,
		Player:    c.user,
		Opponent:  domain.Identity{PlayerID: msg.OpponentID, DisplayName: msg.OpponentName},
		CreatedAt: c.now(),
	}
	c.duel = DuelWaitingForPlayer
	c.send(protocol.Ready{MatchID: msg.MatchID, PlayerID: c.user.PlayerID})
	return true
}

func (c *Client) handleQuestion(msg protocol.Question) bool {
	if c.match == nil {
		log.Printf("duel: question %q with no active match, dropping", msg.QuestionID)
		return false
	}
	if c.duel == DuelFinished {
		log.Printf("duel: question %q after duel finished, dropping", msg.QuestionID)
		return false
	}
	options := make([]string, len(msg.Options))
	copy(options, msg.Options)
	c.question = &QuestionView{
		ID:        msg.QuestionID,
		Prompt:    msg.QuestionText,
		Options:   options,
		TimeLimit: msg.TimeLimit,
	}
	c.duel = DuelQuestionDisplayed
	c.timeRemaining = msg.TimeLimit
	c.selected = -1
	c.hasAnswered = false
	c.startTick()
	return true
}

func (c *Client) handleRoundResult(msg protocol.RoundResult) bool {
	if c.match == nil || msg.MatchID != c.match.ID {
		log.Printf("duel: round_result for match %q, dropping", msg.MatchID)
		return false
	}
	if c.duel == DuelFinished {
		// Result straggling in after duel_complete.
		return false
	}
	c.stopTick()
	c.duel = DuelRoundComplete
	c.lastRound = &RoundOutcome{
		Player1Correct: msg.Player1Correct,
		Player2Correct: msg.Player2Correct,
		CorrectAnswer:  msg.CorrectAnswer,
		TimedOut:       msg.TimedOut,
	}
	c.question = nil
	c.timeRemaining = 0
	c.selected = -1
	c.hasAnswered = false
	return true
}

func (c *Client) handleDuelComplete(msg protocol.DuelComplete) bool {
	if c.match == nil || msg.MatchID != c.match.ID {
		log.Printf("duel: duel_complete for match %q, dropping", msg.MatchID)
		return false
	}
	c.stopTick()
	c.duel = DuelFinished
	c.winnerID = msg.WinnerID
	c.question = nil
	c.timeRemaining = 0
	c.scheduleSettle(c.match.ID)
	return true
}

func (c *Client) handleOpponentLeft(msg protocol.OpponentLeft) bool {
	if c.match == nil || msg.MatchID != c.match.ID {
		return false
	}
	c.stopTick()
	c.duel = DuelFinished
	c.errMsg = "opponent left the duel"
	if msg.Reason != "" {
		c.errMsg = "opponent left the duel: " + msg.Reason
	}
	c.question = nil
	c.timeRemaining = 0
	c.scheduleSettle(c.match.ID)
	return true
}

// scheduleSettle keeps the finished match visible for the configured hold so
// observers get a settling read before the engine returns to idle.
func (c *Client) scheduleSettle(matchID string) {
	time.AfterFunc(c.cfg.ResultHold, func() {
		c.post(evSettle{matchID: matchID})
	})
}

func (c *Client) handleSettle(ev evSettle) bool {
	if c.match == nil || c.match.ID != ev.matchID || c.duel != DuelFinished {
		return false
	}
	c.match = nil
	c.duel = DuelNone
	return true
}

func (c *Client) handleTick(ev evTick) bool {
	if ev.epoch != c.tickEpoch || c.question == nil {
		return false
	}
	c.timeRemaining--
	if c.timeRemaining > 0 {
		return true
	}
	c.timeRemaining = 0
	c.stopTick()
	if !c.hasAnswered && c.duel == DuelQuestionDisplayed {
		// Local timeout. No outcome is fabricated; the authoritative
		// round_result comes from the server.
		c.duel = DuelWaitingForAnswers
	}
	return true
}

// startTick runs a countdown goroutine stamped with a fresh epoch; ticks
// from older epochs are ignored, so a new question implicitly cancels any
// prior countdown.
func (c *Client) startTick() {
	c.stopTick()
	c.tickEpoch++
	epoch := c.tickEpoch
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelTick = cancel
	interval := c.cfg.TickInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.post(evTick{epoch: epoch})
			}
		}
	}()
}

func (c *Client) stopTick() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

// resetToIdle clears queue and match state but leaves connection status,
// identity, error and last result alone.
func (c *Client) resetToIdle() {
	c.stopTick()
	c.inQueue = false
	c.searching = false
	c.queuePos = 0
	c.queueSince = time.Time{}
	c.match = nil
	c.duel = DuelNone
	c.question = nil
	c.timeRemaining = 0
	c.selected = -1
	c.hasAnswered = false
}

func (c *Client) send(cmd protocol.Command) {
	if c.conn == nil {
		return
	}
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		log.Printf("duel: encode %T: %v", cmd, err)
		return
	}
	c.conn.Send(data)
}

func (c *Client) snapshot() State {
	return State{
		Connection:     c.connStatus,
		User:           c.user,
		InQueue:        c.inQueue,
		QueuePosition:  c.queuePos,
		QueueSince:     c.queueSince,
		IsSearching:    c.searching,
		Match:          c.match,
		Duel:           c.duel,
		Question:       c.question,
		TimeRemaining:  c.timeRemaining,
		SelectedAnswer: c.selected,
		HasAnswered:    c.hasAnswered,
		LastRound:      c.lastRound,
		WinnerID:       c.winnerID,
		Err:            c.errMsg,
	}
}

func (c *Client) publish() {
	st := c.snapshot()
	c.mu.Lock()
	c.latest = st
	for ch := range c.subscribers {
		select {
		case ch <- st:
		default:
			// Drop the stale snapshot so a slow reader always gets the
			// newest one without blocking the loop.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
	c.mu.Unlock()
}
