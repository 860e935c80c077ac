// Package session implements the in-memory session store at the heart of the
// caption relay: a registry mapping deterministic composite keys to live
// session state, with TTL-based background eviction of idle sessions.
package session

import (
	"sync"
	"time"
)

// Sender is the teardown surface of the caption sender a session wraps.
// The session references the sender but does not own it; the store
// guarantees End is called at most once per session lifetime.
type Sender interface {
	End() error
}

// Session is the unit of state the store owns, one per composite key.
// ID, APIKey, StreamKey, Domain, Token, StartedAt, and CreatedAt are
// immutable after creation. The remaining fields are mutated only through
// store methods (SetSequence, SetSyncOffset, RecordSend, Touch) so that the
// store's lock covers every write.
type Session struct {
	// ID is the 16-hex-character key derived from (APIKey, StreamKey, Domain).
	ID string

	APIKey    string
	StreamKey string
	Domain    string

	// Token is the signed credential issued at registration.
	Token string

	// Sequence mirrors the sender's next outbound sequence number.
	Sequence int64

	// SyncOffset is the clock-correction value in milliseconds
	// (positive means the upstream server clock is ahead).
	SyncOffset int64

	// StartedAt is the creation instant in epoch milliseconds. Relative
	// caption times are resolved against it.
	StartedAt int64

	CreatedAt      time.Time
	LastActivityAt time.Time

	// CaptionsSent and CaptionsFailed are informational counters.
	CaptionsSent   int64
	CaptionsFailed int64

	// Sender transmits captions upstream for this session.
	Sender Sender

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel that is closed exactly once when the session is
// removed from the store, whether explicitly or by TTL eviction. In-flight
// work holding a session reference can select on it to learn of teardown.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closeDone() {
	s.closeOnce.Do(func() { close(s.done) })
}
