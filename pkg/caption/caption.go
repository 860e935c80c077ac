// Package caption is a client for YouTube's live caption ingestion endpoint.
// A Sender posts text/plain caption blocks to
// http://upload.youtube.com/closedcaption?cid=<streamKey>&seq=N, tracking the
// outbound sequence number and an optional NTP-style clock sync offset.
package caption

import "time"

// DefaultBaseURL is the production ingestion endpoint.
const DefaultBaseURL = "http://upload.youtube.com/closedcaption"

// Defaults for the optional region/cue tag.
const (
	DefaultRegion = "reg1"
	DefaultCue    = "cue1"
)

// Caption is a single caption line. A zero At means the timestamp is
// auto-generated at send time (batched captions are spaced 100 ms apart).
type Caption struct {
	Text string
	At   time.Time
}

// SendResult describes the outcome of one POST to the ingestion endpoint.
type SendResult struct {
	// Sequence is the sequence number the request was sent under.
	Sequence int64

	// Count is the number of captions in the batch (zero for heartbeats).
	Count int

	StatusCode int
	Response   string

	// ServerTimestamp is the trimmed response body — the upstream server's
	// clock reading — or empty when the body was empty.
	ServerTimestamp string
}

// OK reports whether the upstream answered with a 2xx status.
func (r SendResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// SyncResult describes one NTP-style clock synchronization round.
type SyncResult struct {
	// SyncOffset is the computed clock correction in milliseconds
	// (positive = server clock ahead of local).
	SyncOffset int64

	// RoundTripTime is the heartbeat round trip in milliseconds.
	RoundTripTime int64

	ServerTimestamp string
	StatusCode      int
}
