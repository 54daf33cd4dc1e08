package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/types"
)

const (
	// NeutralEmotion is used whenever no emotion glyph can be determined.
	NeutralEmotion = "🎵"
	// MaxSongs is the number of recommendations kept.
	MaxSongs = 3
)

const recommendPrompt = `
다음 일기 내용을 읽고 감정을 분석한 후, 감정을 이모티콘과 함께 한 줄로 출력하고, 감정과 일기 내용에 어울리는 한국 노래 3곡을 추천해주세요.

형식 예시:
감정: 😊 행복
추천:
1. [가수 - 곡명]
2. ...
3. ...

일기:
%s
`

var ordinalLine = regexp.MustCompile(`^\d+\.\s*`)

// Recommender classifies the diary's emotion and suggests matching songs.
type Recommender struct {
	adapter *Adapter[types.Recommendation]
}

func NewRecommender(chat Completer, log *logger.Logger) *Recommender {
	return &Recommender{adapter: newAdapter("recommend", chat, log, buildRecommendRequest, ParseRecommendation, NeutralRecommendation)}
}

// Recommend never fails: errors degrade to NeutralRecommendation.
func (r *Recommender) Recommend(ctx context.Context, text string) types.Recommendation {
	return r.adapter.Run(ctx, text)
}

// NeutralRecommendation is the degraded result.
func NeutralRecommendation() types.Recommendation {
	return types.Recommendation{Emotion: NeutralEmotion, Songs: []string{}}
}

func buildRecommendRequest(text string) ChatRequest {
	return ChatRequest{
		Messages:    []Message{User(fmt.Sprintf(recommendPrompt, text))},
		Temperature: 0.7,
		MaxTokens:   300,
	}
}

// ParseRecommendation reads the "감정:" line and the numbered song lines.
// Lines without a leading ordinal marker are ignored.
func ParseRecommendation(content string) (types.Recommendation, error) {
	if strings.TrimSpace(content) == "" {
		return types.Recommendation{}, fmt.Errorf("empty recommendation")
	}

	out := types.Recommendation{Emotion: EmotionGlyph(content), Songs: []string{}}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !ordinalLine.MatchString(line) {
			continue
		}
		song := strings.TrimSpace(ordinalLine.ReplaceAllString(line, ""))
		if song == "" {
			continue
		}
		out.Songs = append(out.Songs, song)
		if len(out.Songs) == MaxSongs {
			break
		}
	}
	return out, nil
}

// EmotionGlyph returns the first emoji that follows the "감정" label, or
// NeutralEmotion. Emoji detection is a code-point range approximation.
func EmotionGlyph(content string) string {
	for _, line := range strings.Split(content, "\n") {
		idx := strings.Index(line, "감정")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("감정"):]
		colon := strings.IndexAny(rest, ":：")
		if colon < 0 {
			continue
		}
		if g := firstEmoji(rest[colon+1:]); g != "" {
			return g
		}
	}
	return NeutralEmotion
}

func firstEmoji(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if !isEmoji(r) {
			continue
		}
		glyph := string(r)
		// keep a trailing variation selector or skin-tone modifier
		if i+1 < len(runes) && (runes[i+1] == 0xFE0F || (runes[i+1] >= 0x1F3FB && runes[i+1] <= 0x1F3FF)) {
			glyph += string(runes[i+1])
		}
		return glyph
	}
	return ""
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF, // symbols & pictographs
		r >= 0x1F600 && r <= 0x1F64F, // emoticons
		r >= 0x1F680 && r <= 0x1F6FF, // transport & map
		r >= 0x1F900 && r <= 0x1F9FF, // supplemental symbols
		r >= 0x1FA70 && r <= 0x1FAFF,
		r >= 0x2600 && r <= 0x27BF, // misc symbols, dingbats
		r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}
