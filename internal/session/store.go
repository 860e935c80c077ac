package session

import (
	"log/slog"
	"sync"
	"time"
)

// EndReason tells the OnSessionEnd hook why a session was torn down.
type EndReason string

// Teardown reasons.
const (
	ReasonTTL    EndReason = "ttl"
	ReasonManual EndReason = "manual"
)

// Defaults applied by the relay.sessions module when neither YAML nor
// environment supplies a value.
const (
	DefaultTTL             = 2 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// Config configures a Store. All fields are fixed at construction time.
type Config struct {
	// TTL is the allowed inactivity before a session is evicted.
	// Zero falls back to DefaultTTL.
	TTL time.Duration

	// CleanupInterval is the time between sweep passes. Zero or negative
	// disables the background sweep entirely: the store still works, and
	// Sweep can be driven manually (tests and embedders use this).
	CleanupInterval time.Duration

	// OnSessionEnd, if set, is invoked (best-effort, outside the store
	// lock) for every torn-down session with the teardown reason.
	OnSessionEnd func(*Session, EndReason)

	// Logger for sweep diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Now is injectable for deterministic testing. Defaults to time.Now.
	Now func() time.Time
}

// Store is the single authoritative in-memory registry of sessions, keyed by
// the derived session ID. All methods are safe for concurrent use. The
// background sweep runs on its own goroutine and never blocks foreground
// operations beyond the map lock; sender teardown happens outside the lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl      time.Duration
	interval time.Duration
	onEnd    func(*Session, EndReason)
	logger   *slog.Logger
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a Store and, when the cleanup interval is positive,
// starts its background sweep goroutine. The goroutine never keeps the
// process alive on its own and is cancelled by StopCleanup.
func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      cfg.TTL,
		interval: cfg.CleanupInterval,
		onEnd:    cfg.OnSessionEnd,
		logger:   cfg.Logger,
		now:      cfg.Now,
		stop:     make(chan struct{}),
	}

	if s.interval > 0 {
		go s.sweepLoop()
	}
	return s
}

// CreateParams are the fields supplied at registration.
type CreateParams struct {
	APIKey    string
	StreamKey string
	Domain    string
	Token     string
	Sender    Sender

	// Sequence and SyncOffset default to zero.
	Sequence   int64
	SyncOffset int64
}

// Create derives the session ID from the composite key, constructs a new
// session stamped "now", stores it, and returns it. It always inserts —
// a prior session under the same ID is overwritten (and its Done channel
// closed). Callers wanting idempotent registration check Has first.
func (s *Store) Create(p CreateParams) *Session {
	now := s.now()
	sess := &Session{
		ID:             DeriveKey(p.APIKey, p.StreamKey, p.Domain),
		APIKey:         p.APIKey,
		StreamKey:      p.StreamKey,
		Domain:         p.Domain,
		Token:          p.Token,
		Sequence:       p.Sequence,
		SyncOffset:     p.SyncOffset,
		StartedAt:      now.UnixMilli(),
		CreatedAt:      now,
		LastActivityAt: now,
		Sender:         p.Sender,
		done:           make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.sessions[sess.ID]; ok {
		prev.closeDone()
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get returns the session for the given ID, or nil if none exists.
// It does not mark activity.
func (s *Store) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Has reports whether a session exists for the given ID.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// GetByDomain returns all sessions registered for the given origin domain.
// The result is empty (never nil-vs-error) when nothing matches; order is
// unspecified.
func (s *Store) GetByDomain(domain string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Session
	for _, sess := range s.sessions {
		if sess.Domain == domain {
			matched = append(matched, sess)
		}
	}
	return matched
}

// All returns a snapshot of every live session.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Range calls fn for each live session; returning false stops iteration.
// The lock is held for the whole traversal — keep fn fast and never call
// back into the store from it.
func (s *Store) Range(fn func(*Session) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if !fn(sess) {
			return
		}
	}
}

// Touch updates the session's LastActivityAt to now. It is a no-op when the
// session does not exist.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = s.now()
	}
}

// SetSequence mirrors the sender's sequence number into the session record.
// No-op when the session does not exist.
func (s *Store) SetSequence(id string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.Sequence = seq
	}
}

// SetSyncOffset stores a new clock-correction offset (milliseconds).
// No-op when the session does not exist.
func (s *Store) SetSyncOffset(id string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.SyncOffset = offset
	}
}

// RecordSend bumps the session's caption counters. A successful send also
// counts as activity and refreshes LastActivityAt.
func (s *Store) RecordSend(id string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if failed {
		sess.CaptionsFailed++
		return
	}
	sess.CaptionsSent++
	sess.LastActivityAt = s.now()
}

// Remove deletes the session, closes its Done channel, and returns it, or
// returns nil when no session exists for the ID (a second Remove on the same
// ID is a harmless no-op). Remove deliberately does NOT call Sender.End —
// explicit teardown leaves that to the caller, while TTL eviction performs it
// inline in the sweep. The OnSessionEnd hook fires with ReasonManual.
func (s *Store) Remove(id string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.closeDone()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if s.onEnd != nil {
		s.onEnd(sess, ReasonManual)
	}
	return sess
}

// Size returns the current number of live sessions.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StopCleanup cancels the background sweep. Idempotent: safe to call
// multiple times, and safe on a store that never started a sweep.
func (s *Store) StopCleanup() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Sweep runs one eviction pass and returns the number of sessions evicted.
// Sessions whose LastActivityAt is strictly older than now−TTL are removed
// and their senders ended; everything at or after the cutoff is untouched.
// Exported so that embedders running with the background sweep disabled can
// drive eviction themselves.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			sess.closeDone()
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	// Hook and teardown run outside the lock: End may do network I/O.
	for _, sess := range expired {
		if s.onEnd != nil {
			s.onEnd(sess, ReasonTTL)
		}
		s.bestEffortEnd(sess)
	}

	if len(expired) > 0 {
		s.logger.Info("evicted idle sessions", "count", len(expired))
	}
	return len(expired)
}

// bestEffortEnd tears down a session's sender, logging and discarding any
// failure. Swallowing the error here is deliberate: one broken sender must
// never abort a sweep pass or block reclamation of the others.
func (s *Store) bestEffortEnd(sess *Session) {
	if sess.Sender == nil {
		return
	}
	if err := sess.Sender.End(); err != nil {
		s.logger.Warn("sender teardown failed", "session_id", sess.ID, "error", err)
	}
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
