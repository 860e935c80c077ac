package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/livecap/livecap/internal/keys"
	"github.com/livecap/livecap/internal/session"
	"github.com/livecap/livecap/internal/token"
	"github.com/livecap/livecap/pkg/caption"
)

// fakeKeyStore is an in-memory keys.Store for handler tests.
type fakeKeyStore struct {
	mu      sync.Mutex
	records map[string]keys.Key
	nextID  int64
}

func newFakeKeyStore(valid ...string) *fakeKeyStore {
	s := &fakeKeyStore{records: make(map[string]keys.Key)}
	for _, k := range valid {
		s.nextID++
		s.records[k] = keys.Key{ID: s.nextID, Key: k, Owner: "test", CreatedAt: time.Now(), Active: true}
	}
	return s
}

func (s *fakeKeyStore) Validate(_ context.Context, key string) (keys.Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return keys.Validation{Reason: keys.ReasonUnknown}, nil
	}
	if !rec.Active {
		return keys.Validation{Reason: keys.ReasonRevoked}, nil
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return keys.Validation{Reason: keys.ReasonExpired}, nil
	}
	return keys.Validation{Valid: true, Owner: rec.Owner}, nil
}

func (s *fakeKeyStore) List(context.Context) ([]keys.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]keys.Key, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeKeyStore) Get(_ context.Context, key string) (keys.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return keys.Key{}, keys.ErrNotFound
	}
	return rec, nil
}

func (s *fakeKeyStore) Create(_ context.Context, params keys.CreateParams) (keys.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := params.Key
	if value == "" {
		value = "generated-key"
	}
	if _, ok := s.records[value]; ok {
		return keys.Key{}, keys.ErrDuplicate
	}
	s.nextID++
	rec := keys.Key{
		ID:        s.nextID,
		Key:       value,
		Owner:     params.Owner,
		CreatedAt: time.Now(),
		ExpiresAt: params.ExpiresAt,
		Active:    true,
	}
	s.records[value] = rec
	return rec, nil
}

func (s *fakeKeyStore) Update(_ context.Context, key string, params keys.UpdateParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return keys.ErrNotFound
	}
	if params.Owner != nil {
		rec.Owner = *params.Owner
	}
	if params.ClearExpiry {
		rec.ExpiresAt = nil
	} else if params.ExpiresAt != nil {
		rec.ExpiresAt = params.ExpiresAt
	}
	s.records[key] = rec
	return nil
}

func (s *fakeKeyStore) Revoke(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return keys.ErrNotFound
	}
	rec.Active = false
	s.records[key] = rec
	return nil
}

func (s *fakeKeyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return keys.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *fakeKeyStore) PruneExpired(context.Context) (int, error) {
	return 0, nil
}

// fakeUpstream is a Sender that records batches instead of posting them.
type fakeUpstream struct {
	mu       sync.Mutex
	started  bool
	ended    bool
	seq      int64
	batches  [][]caption.Caption
	sendErr  error
	status   int
	serverTS string
}

func (f *fakeUpstream) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeUpstream) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	return nil
}

func (f *fakeUpstream) SendBatch(_ context.Context, captions []caption.Caption) (caption.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return caption.SendResult{}, f.sendErr
	}

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}

	res := caption.SendResult{
		Sequence:        f.seq,
		Count:           len(captions),
		StatusCode:      status,
		ServerTimestamp: f.serverTS,
	}
	f.batches = append(f.batches, captions)
	if status >= 200 && status < 300 {
		f.seq++
	}
	return res, nil
}

func (f *fakeUpstream) Heartbeat(context.Context) (caption.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return caption.SendResult{Sequence: f.seq, StatusCode: http.StatusOK, ServerTimestamp: f.serverTS}, nil
}

func (f *fakeUpstream) Sequence() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

func (f *fakeUpstream) lastBatch() []caption.Caption {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

// testGateway bundles a gateway wired with fakes and an httptest server.
type testGateway struct {
	gw       *Gateway
	srv      *httptest.Server
	sessions *session.Store
	keys     *fakeKeyStore
	upstream *fakeUpstream
}

type testGatewayOpts struct {
	adminKey  string
	validKeys []string
}

func newTestGateway(t interface {
	Helper()
	Cleanup(func())
}, opts testGatewayOpts) *testGateway {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewStore(session.Config{Logger: logger, CleanupInterval: -1})
	t.Cleanup(sessions.StopCleanup)

	upstream := &fakeUpstream{}
	keyStore := newFakeKeyStore(opts.validKeys...)

	gw := &Gateway{
		config: Config{
			Bind:     ":0",
			AdminKey: opts.adminKey,
		},
		logger:    logger,
		metrics:   newMetrics(),
		signer:    token.NewSigner("test-secret"),
		sessions:  sessions,
		keys:      keyStore,
		startedAt: time.Now(),
		senderFor: func(string, int64) Sender { return upstream },
	}
	gw.metrics.trackSessions(sessions)

	srv := httptest.NewServer(gw.buildRouter())
	t.Cleanup(srv.Close)

	return &testGateway{gw: gw, srv: srv, sessions: sessions, keys: keyStore, upstream: upstream}
}
