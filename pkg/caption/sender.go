package caption

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Config configures a Sender.
type Config struct {
	// StreamKey is the YouTube stream key (the cid query parameter).
	StreamKey string

	// IngestionURL, when set, is used verbatim and overrides
	// StreamKey + BaseURL.
	IngestionURL string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Region/Cue tag appended to each timestamp line when UseRegion is set.
	Region    string
	Cue       string
	UseRegion bool

	// Sequence is the starting sequence number (resuming a stream).
	Sequence int64

	// HTTPClient defaults to a client with a 30 s timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Sender posts captions to the ingestion endpoint. It serializes its
// requests internally — the per-stream sequence number makes concurrent
// posts meaningless. Safe for concurrent use.
type Sender struct {
	mu sync.Mutex

	cfg     Config
	url     string
	started bool

	seq           int64
	syncOffset    int64
	useSyncOffset bool

	queue []Caption

	client *http.Client
	logger *slog.Logger
	now    func() time.Time // injectable for testing
}

// New creates a Sender. Start must be called before sending.
func New(cfg Config) *Sender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Cue == "" {
		cfg.Cue = DefaultCue
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sender{
		cfg:    cfg,
		seq:    cfg.Sequence,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Start resolves the ingestion URL and marks the sender ready.
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.cfg.IngestionURL != "":
		s.url = s.cfg.IngestionURL
	case s.cfg.StreamKey != "":
		s.url = s.cfg.BaseURL + "?cid=" + url.QueryEscape(s.cfg.StreamKey)
	default:
		return ErrNoStreamKey
	}

	s.started = true
	s.logger.Debug("caption sender started", "url", s.url)
	return nil
}

// End stops the sender and drops any queued captions. Idempotent.
func (s *Sender) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = false
	s.queue = nil
	s.logger.Debug("caption sender stopped", "sequence", s.seq)
	return nil
}

// Started reports whether Start has been called (and End has not).
func (s *Sender) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Send transmits a single caption. A zero at uses the current (sync-corrected)
// time. On a 2xx response the sequence number advances.
func (s *Sender) Send(ctx context.Context, text string, at time.Time) (SendResult, error) {
	if text == "" {
		return SendResult{}, ErrEmptyText
	}
	return s.SendBatch(ctx, []Caption{{Text: text, At: at}})
}

// SendBatch transmits several captions in one request. Captions without a
// timestamp are spaced 100 ms apart starting from the current corrected time.
func (s *Sender) SendBatch(ctx context.Context, captions []Caption) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return SendResult{}, ErrNotStarted
	}
	if len(captions) == 0 {
		return SendResult{}, ErrNoCaptions
	}
	for _, c := range captions {
		if c.Text == "" {
			return SendResult{}, ErrEmptyText
		}
	}

	var lines []string
	base := s.correctedNow()
	for i, c := range captions {
		at := c.At
		if at.IsZero() {
			at = base.Add(time.Duration(i) * 100 * time.Millisecond)
		}
		lines = append(lines, s.captionBlock(FormatTimestamp(at), c.Text))
	}
	body := strings.Join(lines, "\n") + "\n"

	result, err := s.post(ctx, body)
	if err != nil {
		return SendResult{}, err
	}
	result.Count = len(captions)

	if result.OK() {
		s.seq++
		s.logger.Debug("caption batch sent", "sequence", result.Sequence, "count", result.Count)
	} else {
		s.logger.Debug("caption batch rejected", "sequence", result.Sequence, "status", result.StatusCode)
	}
	return result, nil
}

// Heartbeat posts an empty body to verify the connection. Heartbeats never
// advance the sequence number; the response body carries the server's clock.
func (s *Sender) Heartbeat(ctx context.Context) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeatLocked(ctx)
}

func (s *Sender) heartbeatLocked(ctx context.Context) (SendResult, error) {
	if !s.started {
		return SendResult{}, ErrNotStarted
	}
	return s.post(ctx, "")
}

// Sync measures the clock offset against the upstream server: one heartbeat
// round trip, midpoint estimate against the server timestamp. On success the
// offset is stored and applied to auto-generated timestamps from then on.
func (s *Sender) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t1 := s.now()
	result, err := s.heartbeatLocked(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	t2 := s.now()
	rtt := t2.Sub(t1).Milliseconds()

	if result.ServerTimestamp == "" {
		s.logger.Debug("no server timestamp in heartbeat response, sync offset unchanged")
		return SyncResult{
			SyncOffset:    s.syncOffset,
			RoundTripTime: rtt,
			StatusCode:    result.StatusCode,
		}, nil
	}

	serverAt, err := ParseTimestamp(result.ServerTimestamp)
	if err != nil {
		return SyncResult{}, err
	}

	localEstimate := t1.UnixMilli() + rtt/2
	s.syncOffset = serverAt.UnixMilli() - localEstimate
	s.useSyncOffset = true

	s.logger.Debug("clock synced", "offset_ms", s.syncOffset, "rtt_ms", rtt)
	return SyncResult{
		SyncOffset:      s.syncOffset,
		RoundTripTime:   rtt,
		ServerTimestamp: result.ServerTimestamp,
		StatusCode:      result.StatusCode,
	}, nil
}

// Enqueue appends a caption to the send queue and returns the queue length.
func (s *Sender) Enqueue(text string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return 0, ErrNotStarted
	}
	if text == "" {
		return 0, ErrEmptyText
	}
	s.queue = append(s.queue, Caption{Text: text, At: at})
	return len(s.queue), nil
}

// Flush sends and clears the queued captions.
func (s *Sender) Flush(ctx context.Context) (SendResult, error) {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	return s.SendBatch(ctx, queued)
}

// Queue returns a copy of the pending caption queue.
func (s *Sender) Queue() []Caption {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Caption, len(s.queue))
	copy(out, s.queue)
	return out
}

// ClearQueue drops all queued captions and returns how many were dropped.
func (s *Sender) ClearQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	s.queue = nil
	return n
}

// Sequence returns the next outbound sequence number.
func (s *Sender) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SetSequence overrides the sequence number (e.g. resuming a stream).
func (s *Sender) SetSequence(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = seq
}

// SyncOffset returns the current clock correction in milliseconds.
func (s *Sender) SyncOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncOffset
}

// SetSyncOffset restores a previously computed offset and enables its
// application to auto-generated timestamps.
func (s *Sender) SetSyncOffset(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncOffset = offset
	s.useSyncOffset = true
}

// correctedNow is the current time with the sync offset applied once enabled.
// Callers hold s.mu.
func (s *Sender) correctedNow() time.Time {
	now := s.now()
	if s.useSyncOffset {
		now = now.Add(time.Duration(s.syncOffset) * time.Millisecond)
	}
	return now
}

// captionBlock renders one "timestamp\ntext" block, with the optional
// region/cue tag on the timestamp line.
func (s *Sender) captionBlock(ts, text string) string {
	if s.cfg.UseRegion {
		return ts + " region:" + s.cfg.Region + "#" + s.cfg.Cue + "\n" + text
	}
	return ts + "\n" + text
}

// post performs one POST with the current sequence number appended.
// Callers hold s.mu.
func (s *Sender) post(ctx context.Context, body string) (SendResult, error) {
	sep := "?"
	if strings.Contains(s.url, "?") {
		sep = "&"
	}
	target := s.url + sep + "seq=" + strconv.FormatInt(s.seq, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("caption: building request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("caption: post failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("caption: reading response: %w", err)
	}

	return SendResult{
		Sequence:        s.seq,
		StatusCode:      resp.StatusCode,
		Response:        string(raw),
		ServerTimestamp: strings.TrimSpace(string(raw)),
	}, nil
}
