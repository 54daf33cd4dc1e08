package pipeline

import (
	"errors"
	"fmt"

	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/store"
)

// State is the phase of a recording session.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
	Summarizing
	Enriching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Summarizing:
		return "summarizing"
	case Enriching:
		return "enriching"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// User-visible notices attached to Idle(error).
const (
	NoticePermissionDenied = "마이크 권한이 필요합니다. 설정에서 권한을 허용해주세요."
	NoticeSaveFailed       = "일기 저장에 실패했습니다. 다시 저장해주세요."
	NoticeFailed           = "일기 처리 중 오류가 발생했습니다."
)

// Status is the observable session state. Err is set only in Idle(error).
type Status struct {
	State  State
	Err    error
	Notice string
}

// Failed reports whether the session is in Idle(error).
func (s Status) Failed() bool {
	return s.State == Idle && s.Err != nil
}

// EventKind enumerates the inputs of the state machine.
type EventKind int

const (
	EventStart EventKind = iota
	EventPermissionDenied
	EventStop
	EventTranscribed
	EventSummarized
	EventManualSave
	EventEnriched
	EventSaved
	EventSaveFailed
	EventFailed
)

var eventNames = [...]string{
	"start", "permission_denied", "stop", "transcribed", "summarized",
	"manual_save", "enriched", "saved", "save_failed", "failed",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one input. Err carries the cause for failure events.
type Event struct {
	Kind EventKind
	Err  error
}

// Effect is the side effect the orchestrator performs after a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectAcquireMic
	EffectTranscribe
	EffectSummarize
	EffectEnrich
	EffectPersist
	EffectReleaseMic
)

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition is the pure recording state machine. On error the returned
// status equals the input.
func Transition(cur Status, ev Event) (Status, Effect, error) {
	switch {
	case cur.State == Idle && ev.Kind == EventStart:
		return Status{State: Recording}, EffectAcquireMic, nil

	case cur.State == Recording && ev.Kind == EventPermissionDenied:
		err := ev.Err
		if err == nil || !errors.Is(err, recorder.ErrPermissionDenied) {
			err = recorder.ErrPermissionDenied
		}
		return Status{State: Idle, Err: err, Notice: NoticePermissionDenied}, EffectNone, nil

	case cur.State == Idle && ev.Kind == EventStop:
		return cur, EffectNone, nil

	case cur.State == Recording && ev.Kind == EventStop:
		return Status{State: Transcribing}, EffectTranscribe, nil

	case cur.State == Transcribing && ev.Kind == EventTranscribed:
		return Status{State: Summarizing}, EffectSummarize, nil

	case cur.State == Summarizing && ev.Kind == EventSummarized:
		return Status{State: Enriching}, EffectEnrich, nil

	case cur.State == Idle && ev.Kind == EventManualSave:
		return Status{State: Enriching}, EffectEnrich, nil

	case cur.State == Enriching && ev.Kind == EventEnriched:
		return Status{State: Enriching}, EffectPersist, nil

	case cur.State == Enriching && ev.Kind == EventSaved:
		return Status{State: Idle}, EffectNone, nil

	case cur.State == Enriching && ev.Kind == EventSaveFailed:
		err := ev.Err
		if err == nil {
			err = store.ErrPersistenceFailed
		}
		return Status{State: Idle, Err: err, Notice: NoticeSaveFailed}, EffectNone, nil

	case cur.State != Idle && ev.Kind == EventFailed:
		err := ev.Err
		if err == nil {
			err = errors.New("pipeline failed")
		}
		return Status{State: Idle, Err: err, Notice: NoticeFailed}, EffectReleaseMic, nil
	}

	return cur, EffectNone, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, cur.State)
}
