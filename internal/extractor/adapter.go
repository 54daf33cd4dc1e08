package extractor

import (
	"context"
	"fmt"

	"voice-diary-go/internal/logger"
)

// Adapter is the shared shape of the best-effort enrichment calls:
// build prompt -> chat completion -> parse -> fallback on any failure.
// Run never returns an error and never panics into the caller.
type Adapter[T any] struct {
	Task     string
	chat     Completer
	build    func(text string) ChatRequest
	parse    func(content string) (T, error)
	fallback func() T
	log      *logger.Logger
}

func newAdapter[T any](task string, chat Completer, log *logger.Logger,
	build func(string) ChatRequest, parse func(string) (T, error), fallback func() T) *Adapter[T] {
	if log == nil {
		log = logger.New()
	}
	return &Adapter[T]{
		Task:     task,
		chat:     chat,
		build:    build,
		parse:    parse,
		fallback: fallback,
		log:      log.Component("extractor-" + task),
	}
}

// Run performs the call and returns either the parsed result or the fallback.
func (a *Adapter[T]) Run(ctx context.Context, text string) (out T) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithError(fmt.Errorf("panic: %v", r)).Error("adapter panicked, using fallback")
			out = a.fallback()
		}
	}()

	req := a.build(text)
	req.Task = a.Task

	content, err := a.chat.Complete(ctx, req)
	if err != nil {
		a.log.WithError(err).Warn("llm request failed, using fallback")
		return a.fallback()
	}
	a.log.WithField("content_len", len(content)).Debug("llm raw:\n" + content)

	parsed, err := a.parse(content)
	if err != nil {
		a.log.WithError(err).Warn("unparseable llm output, using fallback")
		return a.fallback()
	}
	return parsed
}
