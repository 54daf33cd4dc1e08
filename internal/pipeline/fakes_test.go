package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voice-diary-go/internal/extractor"
	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/transcription"
	"voice-diary-go/internal/types"
)

type transcriberFunc func(ctx context.Context, asset recorder.Asset) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, asset recorder.Asset) (string, error) {
	return f(ctx, asset)
}

type summarizerFunc func(ctx context.Context, raw string) string

func (f summarizerFunc) Summarize(ctx context.Context, raw string) string { return f(ctx, raw) }

type recommenderFunc func(ctx context.Context, text string) types.Recommendation

func (f recommenderFunc) Recommend(ctx context.Context, text string) types.Recommendation {
	return f(ctx, text)
}

type keywordsFunc func(ctx context.Context, text string) types.Keywords

func (f keywordsFunc) Extract(ctx context.Context, text string) types.Keywords { return f(ctx, text) }

// countingSummarizer wraps the real summarizer and counts invocations.
type countingSummarizer struct {
	inner *extractor.Summarizer
	calls atomic.Int32
}

func (c *countingSummarizer) Summarize(ctx context.Context, raw string) string {
	c.calls.Add(1)
	return c.inner.Summarize(ctx, raw)
}

// failingStore rejects every save while fail is set.
type failingStore struct {
	store.Store
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *failingStore) Save(ctx context.Context, rec types.DiaryRecord) (types.DiaryRecord, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return types.DiaryRecord{}, context.DeadlineExceeded
	}
	return f.Store.Save(ctx, rec)
}

func newMemStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", logger.Discard())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mockConfig wires the deterministic mock adapters used by the demo mode.
func mockConfig(t *testing.T) Config {
	log := logger.Discard()
	chat := extractor.MockCompleter{}
	return Config{
		Transcriber:    transcription.Mock{},
		Summarizer:     extractor.NewSummarizer(chat, log),
		Recommender:    extractor.NewRecommender(chat, log),
		Keywords:       extractor.NewKeywordExtractor(chat, log),
		Store:          newMemStore(t),
		AdapterTimeout: 5 * time.Second,
		Logger:         log,
	}
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// record drives a session through Start, one audio chunk and Stop.
func record(t *testing.T, s *Session) (types.DiaryRecord, error) {
	t.Helper()
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Status().State; got != Recording {
		t.Fatalf("state after Start = %s", got)
	}
	if _, err := s.AppendAudio(strings.NewReader("fake-audio")); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}
	return s.Stop(ctx)
}
