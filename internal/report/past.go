package report

import (
	"time"

	"voice-diary-go/internal/types"
)

// PastEntry is one "past today" slot. Record is nil when nothing was written.
type PastEntry struct {
	Label  string             `json:"label"`
	Date   string             `json:"date"`
	Record *types.DiaryRecord `json:"record"`
}

// PastDates returns the dates shown next to today's diary: the same day last
// year, last month and last week. Out-of-range days roll over like time.Date.
func PastDates(today time.Time) []PastEntry {
	y, m, d := today.Date()
	loc := today.Location()
	return []PastEntry{
		{Label: "작년 오늘", Date: time.Date(y-1, m, d, 0, 0, 0, 0, loc).Format(types.DateLayout)},
		{Label: "지난달 오늘", Date: time.Date(y, m-1, d, 0, 0, 0, 0, loc).Format(types.DateLayout)},
		{Label: "지난주 오늘", Date: time.Date(y, m, d-7, 0, 0, 0, 0, loc).Format(types.DateLayout)},
	}
}

// PastEntries fills PastDates from the user's records.
func PastEntries(records []types.DiaryRecord, today time.Time) []PastEntry {
	byDate := make(map[string]types.DiaryRecord, len(records))
	for _, r := range records {
		byDate[r.Date] = r
	}
	entries := PastDates(today)
	for i := range entries {
		if r, ok := byDate[entries[i].Date]; ok {
			entries[i].Record = &r
		}
	}
	return entries
}
