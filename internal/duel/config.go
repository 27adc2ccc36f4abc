package duel

import (
	"context"
	"time"

	"triviaduel/internal/transport/ws"
)

// Transport is the duplex connection the engine speaks through. Satisfied by
// *ws.Conn; tests substitute a scripted fake.
type Transport interface {
	Events() <-chan ws.Event
	Send(data []byte)
	Close()
}

// DialFunc opens a new Transport. Each reconnect attempt dials afresh.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// Config tunes the engine. Zero values fall back to the defaults below.
type Config struct {
	ServerURL string

	PingInterval         time.Duration
	PongTimeout          time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectMaxAttempts int
	// GracePeriod bounds how long queue/match state survives a dropped
	// connection before the engine gives it up.
	GracePeriod time.Duration
	// TickInterval is one countdown step of the question timer.
	TickInterval time.Duration
	// ResultHold keeps a finished match visible before resetting to idle.
	ResultHold time.Duration

	Dial DialFunc
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 5 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectCap <= 0 {
		c.ReconnectCap = 30 * time.Second
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 5
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ResultHold <= 0 {
		c.ResultHold = 3 * time.Second
	}
	if c.Dial == nil {
		c.Dial = func(ctx context.Context, url string) (Transport, error) {
			return ws.Dial(ctx, url)
		}
	}
	return c
}
