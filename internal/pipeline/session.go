package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/types"
)

var (
	// ErrNoRecorder means the session was created without a recorder.
	ErrNoRecorder = errors.New("session has no recorder")
	// ErrStagePanic wraps a panic recovered from a pipeline stage.
	ErrStagePanic = errors.New("pipeline stage panicked")
)

// Session is the recording state of one (user, date) diary screen. Operations
// are serialized; Status and Draft may be read while a run is in progress.
type Session struct {
	UserID string
	Date   string

	o   *Orchestrator
	rec recorder.Recorder
	log *logrus.Entry

	// op serializes Start/Stop/ManualSave/Load
	op sync.Mutex

	mu     sync.RWMutex
	status Status
	draft  types.DiaryRecord
	handle *recorder.Handle
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Draft returns the working record: the loaded document, the last enrichment
// result, or the record retained after a failed save.
func (s *Session) Draft() types.DiaryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

// Load fetches the saved record on screen entry. A missing record is not an
// error: found is false and the draft stays empty.
func (s *Session) Load(ctx context.Context) (rec types.DiaryRecord, found bool, err error) {
	s.op.Lock()
	defer s.op.Unlock()

	rec, err = s.o.store.Fetch(ctx, s.UserID, s.Date)
	if errors.Is(err, store.ErrNotFound) {
		return emptyDraft(s.UserID, s.Date), false, nil
	}
	if err != nil {
		s.log.WithError(err).Warn("load failed")
		return types.DiaryRecord{}, false, err
	}
	s.setDraft(rec)
	return rec, true, nil
}

// Start acquires the microphone. Permission denial is a hard failure that
// leaves the session in Idle(error) without a handle.
func (s *Session) Start(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.rec == nil {
		return ErrNoRecorder
	}
	if _, err := s.apply(Event{Kind: EventStart}); err != nil {
		return err
	}

	h, err := s.rec.Start(ctx)
	if err != nil {
		if errors.Is(err, recorder.ErrPermissionDenied) {
			s.apply(Event{Kind: EventPermissionDenied, Err: err})
			s.log.Warn("microphone permission denied")
			return err
		}
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	s.log.WithField("handle", h.ID).Info("recording started")
	return nil
}

// AppendAudio copies audio bytes into the live recording.
func (s *Session) AppendAudio(r io.Reader) (int64, error) {
	s.mu.RLock()
	h, state := s.handle, s.status.State
	s.mu.RUnlock()
	if state != Recording || h == nil {
		return 0, recorder.ErrNotRecording
	}
	return io.Copy(h, r)
}

// Stop finishes the recording and runs transcription, summarization,
// enrichment and persistence. Stop while Idle is a no-op returning the draft.
func (s *Session) Stop(ctx context.Context) (rec types.DiaryRecord, err error) {
	s.op.Lock()
	defer s.op.Unlock()

	if s.Status().State == Idle {
		return s.Draft(), nil
	}
	if _, err := s.apply(Event{Kind: EventStop}); err != nil {
		return s.Draft(), err
	}

	defer s.releaseHandle()
	defer s.recoverStage(&rec, &err)

	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	asset, err := s.rec.Stop(ctx, h)
	if err != nil {
		return s.abort(err)
	}
	s.takeHandle()
	defer func() {
		if derr := s.rec.Discard(asset); derr != nil {
			s.log.WithError(derr).Warn("discard audio asset")
		}
	}()
	if err := ctx.Err(); err != nil {
		return s.abort(err)
	}

	text, ok, err := s.o.transcribe(ctx, asset)
	if err != nil {
		return s.abort(err)
	}
	if _, err := s.apply(Event{Kind: EventTranscribed}); err != nil {
		return s.abort(err)
	}
	if err := ctx.Err(); err != nil {
		return s.abort(err)
	}

	// placeholder narrative skips the summarizer but keeps the Summarizing step
	narrative := text
	if ok {
		narrative = s.o.summarize(ctx, text)
	}
	if _, err := s.apply(Event{Kind: EventSummarized}); err != nil {
		return s.abort(err)
	}
	return s.enrichAndSave(ctx, narrative)
}

// Cancel abandons a recording without processing it. The session moves to
// Idle(cause) and its microphone handle is released. An idle session is left
// as it is.
func (s *Session) Cancel(cause error) {
	s.op.Lock()
	defer s.op.Unlock()

	if cause == nil {
		cause = context.Canceled
	}
	if s.Status().State != Idle {
		s.fail(cause)
	}
	s.releaseHandle()
}

// ManualSave enriches and saves user-edited text, bypassing the recorder.
// It is also the retry path after a failed save.
func (s *Session) ManualSave(ctx context.Context, text string) (rec types.DiaryRecord, err error) {
	s.op.Lock()
	defer s.op.Unlock()

	if _, err := s.apply(Event{Kind: EventManualSave}); err != nil {
		return s.Draft(), err
	}
	defer s.recoverStage(&rec, &err)
	return s.enrichAndSave(ctx, text)
}

func (s *Session) enrichAndSave(ctx context.Context, text string) (types.DiaryRecord, error) {
	if err := ctx.Err(); err != nil {
		return s.abort(err)
	}

	emotion, keywords := s.o.enrich(ctx, text)
	if err := ctx.Err(); err != nil {
		return s.abort(err)
	}

	draft := types.DiaryRecord{
		UserID:   s.UserID,
		Date:     s.Date,
		Text:     text,
		Emotion:  emotion.Emotion,
		Songs:    emotion.Songs,
		Keywords: keywords,
	}
	if _, err := s.apply(Event{Kind: EventEnriched}); err != nil {
		return s.abort(err)
	}
	s.setDraft(draft)

	saved, err := s.o.store.Save(ctx, draft)
	if err != nil {
		if !errors.Is(err, store.ErrPersistenceFailed) {
			err = fmt.Errorf("%w: %v", store.ErrPersistenceFailed, err)
		}
		s.apply(Event{Kind: EventSaveFailed, Err: err})
		s.log.WithError(err).Error("diary save failed, draft retained")
		return draft, err
	}

	s.apply(Event{Kind: EventSaved})
	s.setDraft(saved)
	s.log.WithFields(logrus.Fields{
		"emotion": saved.Emotion,
		"songs":   len(saved.Songs),
	}).Info("diary saved")
	return saved, nil
}

// apply feeds one event through Transition and stores the new status.
func (s *Session) apply(ev Event) (Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effect, err := Transition(s.status, ev)
	if err != nil {
		s.log.WithError(err).Debug("rejected event")
		return EffectNone, err
	}
	s.log.WithFields(logrus.Fields{
		"event": ev.Kind.String(),
		"from":  s.status.State.String(),
		"to":    next.State.String(),
	}).Debug("transition")
	s.status = next
	return effect, nil
}

// fail moves the session to Idle(error) and releases the microphone.
func (s *Session) fail(err error) {
	if effect, terr := s.apply(Event{Kind: EventFailed, Err: err}); terr == nil && effect == EffectReleaseMic {
		s.releaseHandle()
	}
	s.log.WithError(err).Error("pipeline aborted")
}

func (s *Session) abort(err error) (types.DiaryRecord, error) {
	s.fail(err)
	return s.Draft(), err
}

func (s *Session) recoverStage(rec *types.DiaryRecord, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		*rec, *err = s.abort(*err)
	}
}

func (s *Session) takeHandle() *recorder.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = nil
	return h
}

// releaseHandle discards a still-held microphone handle. Safe on every exit path.
func (s *Session) releaseHandle() {
	h := s.takeHandle()
	if h == nil || s.rec == nil {
		return
	}
	if err := s.rec.Release(h); err != nil {
		s.log.WithError(err).Warn("release microphone")
	}
}

func (s *Session) setDraft(rec types.DiaryRecord) {
	s.mu.Lock()
	s.draft = rec
	s.mu.Unlock()
}
