// Package notify streams newly appended events to long-lived subscribers by
// polling the store for ids above a per-connection cursor.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github-webhook-pulse/internal/model"
)

// Default cadences for a streaming session.
const (
	DefaultPollInterval      = 1 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultMaxLifetime       = 5 * time.Minute
)

// Poller is the slice of the store a session reads from.
type Poller interface {
	EventsAfter(ctx context.Context, lastSeenID int64) ([]model.Event, error)
}

// Sink receives the session's output. A returned error terminates the session
// (broken transport); it never affects the store or other sessions.
type Sink interface {
	NewEvent(ev model.Event) error
	Heartbeat(ts time.Time) error
}

// Config bundles the session cadences. Zero values fall back to the defaults.
type Config struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxLifetime       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = DefaultMaxLifetime
	}
	return c
}

// Session is one subscriber's connection to the event feed. It polls the
// store, emits every new event in ascending id order, advances its cursor,
// and emits a heartbeat on the slower cadence when no events were delivered
// since the previous heartbeat.
type Session struct {
	poller     Poller
	clock      Clock
	cfg        Config
	logger     *slog.Logger
	lastSeenID int64
}

// NewSession creates a session resuming after lastSeenID (0 replays the whole
// retained log, up to the store's window cap per poll).
func NewSession(poller Poller, lastSeenID int64, cfg Config, clock Clock, logger *slog.Logger) *Session {
	if clock == nil {
		clock = RealClock()
	}
	return &Session{
		poller:     poller,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		lastSeenID: lastSeenID,
	}
}

// LastSeenID returns the session's current cursor.
func (s *Session) LastSeenID() int64 {
	return s.lastSeenID
}

// Run drives the session until the lifetime elapses, ctx is canceled, or the
// sink or store fails. The lifetime and cancellation cases return nil: a
// session ending is not an error. Cancellation is checked on every iteration.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MaxLifetime)
	defer cancel()

	poll := s.clock.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	// Drain once before the first tick so a reconnecting subscriber catches
	// up immediately instead of after a full poll interval.
	delivered, err := s.drain(ctx, sink)
	if err != nil {
		// The lifetime elapsing or the subscriber disconnecting mid-poll
		// surfaces as a context error from the store or sink; that is still
		// a clean end, not a failure.
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.Chan():
			n, err := s.drain(ctx, sink)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			delivered = delivered || n
		case <-heartbeat.Chan():
			if !delivered {
				if err := sink.Heartbeat(s.clock.Now()); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
			delivered = false
		}
	}
}

// drain emits every event past the cursor and advances it per event, so a
// mid-batch transport failure does not cause redelivery on reconnect.
func (s *Session) drain(ctx context.Context, sink Sink) (bool, error) {
	events, err := s.poller.EventsAfter(ctx, s.lastSeenID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to poll for new events", "last_seen_id", s.lastSeenID, "error", err)
		}
		return false, err
	}
	for _, ev := range events {
		if err := sink.NewEvent(ev); err != nil {
			return false, err
		}
		s.lastSeenID = ev.ID
	}
	return len(events) > 0, nil
}
