// Package transcription turns a finished audio recording into text.
package transcription

import (
	"context"
	"errors"

	"voice-diary-go/internal/recorder"
)

var (
	// ErrTranscriptionFailed covers transport, auth and malformed-response
	// failures of the speech service. Callers decide what to do; nothing is retried.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrRecordingActive means the asset was not stopped and flushed yet.
	ErrRecordingActive = errors.New("recording not finalized")
)

// FailedText stands in for the narrative when speech recognition failed.
const FailedText = "(음성 인식 실패)"

// Transcriber converts a finalized audio asset into recognized text. An empty
// string is a valid result.
type Transcriber interface {
	Transcribe(ctx context.Context, asset recorder.Asset) (string, error)
}

// Mock returns a fixed transcript. Enabled with USE_MOCK_TRANSCRIBE=true.
type Mock struct {
	Text string
	Err  error
}

// DefaultMockText is used when Mock.Text is empty.
const DefaultMockText = "오늘 아침에 친구랑 학교 앞 카페에서 시험공부 했어. 점심은 엄마가 싸준 도시락 먹었고."

func (m Mock) Transcribe(ctx context.Context, asset recorder.Asset) (string, error) {
	if !asset.Finalized {
		return "", ErrRecordingActive
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Text == "" {
		return DefaultMockText, nil
	}
	return m.Text, nil
}
