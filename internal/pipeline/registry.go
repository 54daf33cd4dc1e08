package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/sessionlock"
	"voice-diary-go/internal/types"
)

var (
	// ErrSessionBusy means another run for the same (user, date) is in flight.
	ErrSessionBusy = errors.New("diary session busy")
	// ErrNoSession means no recording was started for the (user, date).
	ErrNoSession = errors.New("no recording session")
	// ErrSessionExpired ends a recording whose session lock ran out before
	// another recording for the same (user, date) started.
	ErrSessionExpired = errors.New("recording session expired")
)

// RecorderFactory builds the recorder of a new session from the client's
// reported microphone permission.
type RecorderFactory func(granted bool) recorder.Recorder

// Registry tracks live recording sessions for the HTTP API and guards each
// (user, date) with a session lock.
type Registry struct {
	o           *Orchestrator
	locker      sessionlock.Locker
	ttl         time.Duration
	newRecorder RecorderFactory

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession is a registered session and the lock token it holds.
type liveSession struct {
	s     *Session
	token string
}

func NewRegistry(o *Orchestrator, locker sessionlock.Locker, ttl time.Duration, newRecorder RecorderFactory) *Registry {
	if locker == nil {
		locker = sessionlock.NewMemoryLocker()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Registry{
		o:           o,
		locker:      locker,
		ttl:         ttl,
		newRecorder: newRecorder,
		sessions:    map[string]*liveSession{},
	}
}

// Begin starts a recording for (user, date). A session still registered
// after its lock expired is cancelled and its microphone released first.
func (r *Registry) Begin(ctx context.Context, userID, date string, granted bool) (*Session, error) {
	key := types.DocID(userID, date)
	token, ok, err := r.locker.Acquire(ctx, key, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("session lock: %w", err)
	}
	if !ok {
		return nil, ErrSessionBusy
	}

	if stale := r.lookup(key); stale != nil {
		r.o.log.WithField("doc_id", key).Warn("session lock expired, cancelling previous recording")
		stale.s.Cancel(ErrSessionExpired)
		r.end(key, stale)
	}

	s := r.o.NewSession(userID, date, r.newRecorder(granted))
	if err := s.Start(ctx); err != nil {
		r.release(context.WithoutCancel(ctx), key, token)
		return s, err
	}

	r.mu.Lock()
	r.sessions[key] = &liveSession{s: s, token: token}
	r.mu.Unlock()
	return s, nil
}

// Get returns the live session for (user, date).
func (r *Registry) Get(userID, date string) (*Session, bool) {
	if e := r.lookup(types.DocID(userID, date)); e != nil {
		return e.s, true
	}
	return nil, false
}

// Append streams audio into the live recording.
func (r *Registry) Append(userID, date string, body io.Reader) (int64, error) {
	s, ok := r.Get(userID, date)
	if !ok {
		return 0, ErrNoSession
	}
	return s.AppendAudio(body)
}

// Finish stops the recording, runs the pipeline and frees the (user, date).
// The returned session reports the final status.
func (r *Registry) Finish(ctx context.Context, userID, date string) (types.DiaryRecord, *Session, error) {
	key := types.DocID(userID, date)
	e := r.lookup(key)
	if e == nil {
		return types.DiaryRecord{}, nil, ErrNoSession
	}
	defer r.end(key, e)
	rec, err := e.s.Stop(ctx)
	return rec, e.s, err
}

// ManualSave runs the manual-save path unless a recording holds the (user, date).
func (r *Registry) ManualSave(ctx context.Context, userID, date, text string) (types.DiaryRecord, *Session, error) {
	key := types.DocID(userID, date)
	token, ok, err := r.locker.Acquire(ctx, key, r.ttl)
	if err != nil {
		return types.DiaryRecord{}, nil, fmt.Errorf("session lock: %w", err)
	}
	if !ok {
		return types.DiaryRecord{}, nil, ErrSessionBusy
	}
	defer r.release(context.WithoutCancel(ctx), key, token)

	s := r.o.NewSession(userID, date, nil)
	rec, err := s.ManualSave(ctx, text)
	return rec, s, err
}

// Cancel drops a live recording without processing it.
func (r *Registry) Cancel(ctx context.Context, userID, date string) error {
	key := types.DocID(userID, date)
	e := r.lookup(key)
	if e == nil {
		return ErrNoSession
	}
	e.s.Cancel(context.Canceled)
	r.end(key, e)
	return nil
}

func (r *Registry) lookup(key string) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

// end unregisters e and releases its lock. Both are no-ops once a newer
// session owns the key.
func (r *Registry) end(key string, e *liveSession) {
	r.mu.Lock()
	if r.sessions[key] == e {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	r.release(context.Background(), key, e.token)
}

func (r *Registry) release(ctx context.Context, key, token string) {
	if err := r.locker.Release(ctx, key, token); err != nil {
		r.o.log.WithError(err).Warn("release session lock")
	}
}
