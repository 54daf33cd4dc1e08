// Package app wires configuration into the diary pipeline's collaborators.
// Both binaries build their dependencies here.
package app

import (
	"context"
	"fmt"

	"voice-diary-go/internal/auth"
	"voice-diary-go/internal/config"
	"voice-diary-go/internal/extractor"
	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/pipeline"
	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/sessionlock"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/transcription"
)

// App is the assembled service.
type App struct {
	Config       config.Config
	Log          *logger.Logger
	Store        *store.SQLiteStore
	Orchestrator *pipeline.Orchestrator
	Registry     *pipeline.Registry
	Issuer       *auth.Issuer

	closers []func() error
}

// Build opens the store and constructs the adapters. USE_MOCK_TRANSCRIBE and
// USE_MOCK_LLM swap the external services for canned responses.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.New()
	}
	a := &App{Config: cfg, Log: log}

	st, err := store.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	transcriber, err := newTranscriber(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	chat, err := newCompleter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator, err = pipeline.New(pipeline.Config{
		Transcriber:    transcriber,
		Summarizer:     extractor.NewSummarizer(chat, log),
		Recommender:    extractor.NewRecommender(chat, log),
		Keywords:       extractor.NewKeywordExtractor(chat, log),
		Store:          st,
		AdapterTimeout: cfg.AdapterTimeout(),
		Logger:         log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = pipeline.NewRegistry(a.Orchestrator, locker, cfg.SessionLockTTL(), func(granted bool) recorder.Recorder {
		return recorder.NewFileRecorder(cfg.AudioDir, granted)
	})

	if cfg.JWTSecret != "" {
		a.Issuer, err = auth.NewIssuer(cfg.JWTSecret, auth.DefaultTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	log.WithField("mock_transcribe", cfg.UseMockTranscribe).
		WithField("mock_llm", cfg.UseMockLLM).
		WithField("redis", cfg.RedisAddr != "").
		Info("diary pipeline ready")
	return a, nil
}

// Close releases the store and the lock backend.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func newTranscriber(cfg config.Config, log *logger.Logger) (transcription.Transcriber, error) {
	if cfg.UseMockTranscribe {
		return transcription.Mock{}, nil
	}
	if cfg.ClovaAPIURL == "" || cfg.ClovaAPIKey == "" {
		return nil, fmt.Errorf("speech service not configured: set CLOVA_API_URL and CLOVA_API_KEY")
	}
	return transcription.NewClovaClient(cfg.ClovaAPIURL, cfg.ClovaAPIKey,
		transcription.WithLanguage(cfg.SpeechLanguage),
		transcription.WithTimeout(cfg.AdapterTimeout()),
		transcription.WithLogger(log),
	), nil
}

func newCompleter(cfg config.Config) (extractor.Completer, error) {
	if cfg.UseMockLLM {
		return extractor.MockCompleter{}, nil
	}
	return extractor.NewChatClient(extractor.ChatConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.AdapterTimeout(),
	})
}

func (a *App) newLocker(ctx context.Context) (sessionlock.Locker, error) {
	if a.Config.RedisAddr == "" {
		return sessionlock.NewMemoryLocker(), nil
	}
	rl, err := sessionlock.NewRedisLocker(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rl.Close)
	return rl, nil
}
