package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used as part of a diary's identity.
const DateLayout = "2006-01-02"

// MonthLayout is the prefix used by list and ranking queries.
const MonthLayout = "2006-01"

// --------------------------------------------
// Keyword buckets extracted from diary text
// --------------------------------------------
type Keywords struct {
	Who   []string `json:"who"`
	Where []string `json:"where"`
	What  []string `json:"what"`
}

// EmptyKeywords returns the all-empty structure with non-nil slices so it
// encodes as [] rather than null.
func EmptyKeywords() Keywords {
	return Keywords{Who: []string{}, Where: []string{}, What: []string{}}
}

// IsEmpty reports whether no category holds a keyword.
func (k Keywords) IsEmpty() bool {
	return len(k.Who) == 0 && len(k.Where) == 0 && len(k.What) == 0
}

// --------------------------------------------
// Emotion + song recommendation
// --------------------------------------------
type Recommendation struct {
	Emotion string   `json:"emotion"`
	Songs   []string `json:"songs"`
}

// --------------------------------------------
// DiaryRecord is the persisted per-day document
// --------------------------------------------
type DiaryRecord struct {
	UserID    string    `json:"userId"`
	Date      string    `json:"date"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion"`
	Songs     []string  `json:"songs"`
	Keywords  Keywords  `json:"keywords"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocID returns the composite document id "<userId>_<date>".
func DocID(userID, date string) string {
	return userID + "_" + date
}

// DocID returns the record's composite document id.
func (r DiaryRecord) DocID() string {
	return DocID(r.UserID, r.Date)
}

// Validate checks the identity fields.
func (r DiaryRecord) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("diary record: empty user id")
	}
	if _, err := ParseDate(r.Date); err != nil {
		return fmt.Errorf("diary record: %w", err)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseMonth parses a YYYY-MM month key.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return t, nil
}
