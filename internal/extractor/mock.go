package extractor

import (
	"context"
	"fmt"
)

// MockCompleter returns canned completions per task. Enabled with USE_MOCK_LLM=true.
type MockCompleter struct {
	Responses map[string]string
	Err       error
}

var defaultMockResponses = map[string]string{
	"summarize": "오늘 친구와 학교 앞 카페에서 시험공부를 했다. 점심에는 엄마가 싸준 도시락을 먹었다.",
	"recommend": "감정: 😊 행복\n추천:\n1. [아이유 - 좋은 날]\n2. [볼빨간사춘기 - 여행]\n3. [10CM - 봄이 좋냐??]",
	"keywords":  `{"who": ["친구", "엄마"], "where": ["카페", "학교"], "what": ["시험공부", "점심식사"]}`,
}

func (m MockCompleter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if s, ok := m.Responses[req.Task]; ok {
		return s, nil
	}
	if s, ok := defaultMockResponses[req.Task]; ok {
		return s, nil
	}
	return "", fmt.Errorf("mock llm: no response for task %q", req.Task)
}
