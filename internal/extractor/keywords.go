package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/types"
)

// MaxKeywordsPerCategory caps every keyword bucket.
const MaxKeywordsPerCategory = 5

const keywordsSystemPrompt = "당신은 일기 내용을 분석해 핵심 키워드를 분류해주는 도우미입니다. 반드시 JSON 객체만 출력하세요."

const keywordsPrompt = `아래 일기 내용을 기반으로 다음 세 가지 항목에 해당하는 고유 키워드를 JSON 형식으로 추출해주세요:

- "who": 사람 이름 또는 지칭 (예: 친구, 엄마, 지수)
- "where": 장소 또는 위치명 (예: 카페, 집, 학교)
- "what": 주요 활동 또는 사건 (예: 공부, 운동, 여행)

다음 규칙을 따르세요:
- 각 카테고리별로 **중복 없이 최대 5개**까지만 추출합니다.
- 같은 단어가 여러 번 나와도 한 번만 추출하세요.
- 너무 일반적인 단어(예: 오늘, 나, 있다)는 제외하고 **핵심적인 키워드만** 남기세요.

JSON 형식 예시:
{"who": ["지수", "엄마"], "where": ["학교", "카페"], "what": ["시험공부", "점심식사"]}

일기 내용:
"""
%s
"""`

// KeywordExtractor buckets diary keywords into who/where/what.
type KeywordExtractor struct {
	adapter *Adapter[types.Keywords]
}

func NewKeywordExtractor(chat Completer, log *logger.Logger) *KeywordExtractor {
	return &KeywordExtractor{adapter: newAdapter("keywords", chat, log, buildKeywordsRequest, ParseKeywords, types.EmptyKeywords)}
}

// Extract never fails: errors and malformed payloads degrade to empty buckets.
func (k *KeywordExtractor) Extract(ctx context.Context, text string) types.Keywords {
	return k.adapter.Run(ctx, text)
}

func buildKeywordsRequest(text string) ChatRequest {
	return ChatRequest{
		Messages: []Message{
			System(keywordsSystemPrompt),
			User(fmt.Sprintf(keywordsPrompt, text)),
		},
		Temperature: 0.5,
		MaxTokens:   300,
		JSON:        true,
	}
}

// ParseKeywords treats the model output as untrusted: it must contain a JSON
// object with at least one of the three categories, each an array of strings.
// The result is deduplicated case-insensitively and capped per category.
func ParseKeywords(content string) (types.Keywords, error) {
	raw := extractJSON(content)
	if raw == "" {
		return types.Keywords{}, fmt.Errorf("no JSON object in keyword output")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return types.Keywords{}, fmt.Errorf("decode keyword object: %w", err)
	}

	out := types.EmptyKeywords()
	found := 0
	for name, dst := range map[string]*[]string{"who": &out.Who, "where": &out.Where, "what": &out.What} {
		msg, ok := fields[name]
		if !ok || string(msg) == "null" {
			continue
		}
		var words []string
		if err := json.Unmarshal(msg, &words); err != nil {
			return types.Keywords{}, fmt.Errorf("decode %q: %w", name, err)
		}
		*dst = NormalizeKeywords(words)
		found++
	}
	if found == 0 {
		return types.Keywords{}, fmt.Errorf("keyword object has no who/where/what")
	}
	return out, nil
}

// NormalizeKeywords trims, drops blanks, removes case-insensitive duplicates
// (first spelling wins) and caps the list.
func NormalizeKeywords(words []string) []string {
	out := make([]string, 0, MaxKeywordsPerCategory)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
		if len(out) == MaxKeywordsPerCategory {
			break
		}
	}
	return out
}
