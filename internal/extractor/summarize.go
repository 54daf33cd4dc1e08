package extractor

import (
	"context"
	"fmt"
	"strings"

	"voice-diary-go/internal/logger"
)

const (
	// SummaryFailedText replaces the narrative when summarization fails.
	SummaryFailedText = "(요약 실패)"
	// NoContentText is returned for blank input without calling the model.
	NoContentText = "(내용 없음)"
)

const summarizeSystemPrompt = `당신은 사용자가 작성한 하루의 일과를 일기로 요약해주는 비서입니다. 반드시 1인칭 시점 서술형으로 "오늘 누구와 어디에서 무엇을 했다."와 같은 과거형 문장으로 작성해주세요. 사용자가 구어체로 작성해도 서술형 문어체로 변환해주고, 일기처럼 하루를 정리하듯이 요약해주세요.`

// Summarizer rewrites a raw transcript into first-person, past-tense diary prose.
type Summarizer struct {
	adapter *Adapter[string]
}

func NewSummarizer(chat Completer, log *logger.Logger) *Summarizer {
	return &Summarizer{adapter: newAdapter("summarize", chat, log, buildSummarizeRequest, parseSummary, func() string {
		return SummaryFailedText
	})}
}

// Summarize returns the narrative, or a sentinel on blank input or failure.
func (s *Summarizer) Summarize(ctx context.Context, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return NoContentText
	}
	return s.adapter.Run(ctx, raw)
}

func buildSummarizeRequest(text string) ChatRequest {
	return ChatRequest{
		Messages: []Message{
			System(summarizeSystemPrompt),
			User("다음 일기를 요약해줘:\n" + text),
		},
		Temperature: 0.7,
		MaxTokens:   300,
	}
}

func parseSummary(content string) (string, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return "", fmt.Errorf("empty summary")
	}
	return s, nil
}
