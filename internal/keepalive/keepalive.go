// Package keepalive periodically sends empty heartbeat posts for live
// sessions so the upstream ingestion endpoint keeps their caption
// connections warm between captions.
package keepalive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/livecap/livecap/internal/session"
	"github.com/livecap/livecap/pkg/caption"
)

// Sentinel errors for lifecycle misuse.
var (
	ErrAlreadyStarted = errors.New("keepalive: already started")
	ErrNotStarted     = errors.New("keepalive: not started")
)

// Iterator enumerates live sessions. *session.Store satisfies it.
type Iterator interface {
	Range(fn func(*session.Session) bool)
}

// Heartbeater is the sender capability keepalive needs. *caption.Sender
// satisfies it.
type Heartbeater interface {
	Heartbeat(ctx context.Context) (caption.SendResult, error)
}

// Config holds keepalive settings.
type Config struct {
	Interval   time.Duration // default 10m
	MaxIdleAge time.Duration // skip sessions idle longer than this; default 2h
	Logger     *slog.Logger
	Now        func() time.Time // injectable for testing
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.MaxIdleAge <= 0 {
		c.MaxIdleAge = session.DefaultTTL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Keepalive runs a dedicated goroutine that heartbeats eligible sessions.
// It never refreshes session activity: a page that stopped sending captions
// still ages toward TTL eviction.
type Keepalive struct {
	cfg      Config
	sessions Iterator

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Keepalive over the given session iterator.
func New(cfg Config, sessions Iterator) (*Keepalive, error) {
	if sessions == nil {
		return nil, errors.New("keepalive: nil session iterator")
	}
	return &Keepalive{cfg: cfg.withDefaults(), sessions: sessions}, nil
}

// Start begins the ticker loop. Returns ErrAlreadyStarted if called twice.
func (k *Keepalive) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, k.cancel = context.WithCancel(ctx)
	go k.run(ctx)
	return nil
}

// Stop halts the loop. Returns ErrNotStarted if not running.
func (k *Keepalive) Stop(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel == nil {
		return ErrNotStarted
	}

	k.cancel()
	k.cancel = nil
	return nil
}

func (k *Keepalive) run(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

type heartbeatTarget struct {
	id string
	hb Heartbeater
}

// tick heartbeats every session that has been active recently enough.
// Eligible senders are snapshotted under the store lock first; the
// heartbeat I/O runs after Range returns, so a stalled upstream never
// blocks Touch, Create, or the sweep.
func (k *Keepalive) tick(ctx context.Context) {
	now := k.cfg.Now()

	var targets []heartbeatTarget
	k.sessions.Range(func(sess *session.Session) bool {
		// Sessions past MaxIdleAge are left for the TTL sweep.
		if now.Sub(sess.LastActivityAt) > k.cfg.MaxIdleAge {
			return true
		}
		if hb, ok := sess.Sender.(Heartbeater); ok {
			targets = append(targets, heartbeatTarget{id: sess.ID, hb: hb})
		}
		return true
	})

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := t.hb.Heartbeat(ctx); err != nil {
			k.cfg.Logger.Warn("keepalive heartbeat failed",
				"session", t.id,
				"error", err)
		}
	}
}
