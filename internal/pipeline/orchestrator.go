// Package pipeline drives one diary recording from microphone to saved record.
//
// The session walks Idle -> Recording -> Transcribing -> Summarizing ->
// Enriching -> Idle. Transcription, summarization and the enrichment adapters
// degrade to placeholders instead of failing; only permission denial and
// persistence failure end a run in Idle(error).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/transcription"
	"voice-diary-go/internal/types"
)

// Summarizer rewrites a raw transcript into diary prose. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, raw string) string
}

// Recommender classifies emotion and suggests songs. It never fails.
type Recommender interface {
	Recommend(ctx context.Context, text string) types.Recommendation
}

// KeywordExtractor buckets keywords into who/where/what. It never fails.
type KeywordExtractor interface {
	Extract(ctx context.Context, text string) types.Keywords
}

// DefaultAdapterTimeout bounds each external call when none is configured.
const DefaultAdapterTimeout = 40 * time.Second

// Config wires the orchestrator.
type Config struct {
	Transcriber    transcription.Transcriber
	Summarizer     Summarizer
	Recommender    Recommender
	Keywords       KeywordExtractor
	Store          store.Store
	AdapterTimeout time.Duration
	Logger         *logger.Logger
}

// Orchestrator owns the shared, stateless collaborators of every session.
type Orchestrator struct {
	transcriber transcription.Transcriber
	summarizer  Summarizer
	recommender Recommender
	keywords    KeywordExtractor
	store       store.Store
	timeout     time.Duration
	log         *logger.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transcriber == nil || cfg.Summarizer == nil || cfg.Recommender == nil || cfg.Keywords == nil {
		return nil, fmt.Errorf("pipeline: all adapters are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New()
	}
	return &Orchestrator{
		transcriber: cfg.Transcriber,
		summarizer:  cfg.Summarizer,
		recommender: cfg.Recommender,
		keywords:    cfg.Keywords,
		store:       cfg.Store,
		timeout:     cfg.AdapterTimeout,
		log:         cfg.Logger.Component("pipeline"),
	}, nil
}

// Store exposes the record store used by the sessions.
func (o *Orchestrator) Store() store.Store {
	return o.store
}

// NewSession creates the session of one diary screen. rec may be nil for
// sessions that only load and manually save.
func (o *Orchestrator) NewSession(userID, date string, rec recorder.Recorder) *Session {
	return &Session{
		UserID: userID,
		Date:   date,
		o:      o,
		rec:    rec,
		log:    o.log.WithField("doc_id", types.DocID(userID, date)),
		draft:  emptyDraft(userID, date),
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

// transcribe returns the recognized text, or FailedText and false when the
// speech service failed. Precondition and cancellation errors are returned.
func (o *Orchestrator) transcribe(ctx context.Context, asset recorder.Asset) (string, bool, error) {
	tctx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := o.transcriber.Transcribe(tctx, asset)
	switch {
	case err == nil:
		o.log.WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("chars", len([]rune(text))).Info("transcription done")
		return text, true, nil
	case errors.Is(err, transcription.ErrRecordingActive):
		return "", false, err
	case ctx.Err() != nil:
		return "", false, ctx.Err()
	}
	o.log.WithError(err).Warn("transcription failed, using placeholder")
	return transcription.FailedText, false, nil
}

func (o *Orchestrator) summarize(ctx context.Context, raw string) string {
	sctx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.summarizer.Summarize(sctx, raw)
}

func emptyDraft(userID, date string) types.DiaryRecord {
	return types.DiaryRecord{
		UserID:   userID,
		Date:     date,
		Songs:    []string{},
		Keywords: types.EmptyKeywords(),
	}
}
