package caption

import "errors"

// Sentinel errors for sender operations.
var (
	// ErrNotStarted is returned when sending before Start.
	ErrNotStarted = errors.New("caption: sender not started")

	// ErrNoStreamKey is returned by Start when neither a stream key nor a
	// full ingestion URL is configured.
	ErrNoStreamKey = errors.New("caption: stream key or ingestion URL required")

	// ErrEmptyText is returned for captions with no text.
	ErrEmptyText = errors.New("caption: caption text is required")

	// ErrNoCaptions is returned when a batch send has nothing to send.
	ErrNoCaptions = errors.New("caption: no captions to send")
)
