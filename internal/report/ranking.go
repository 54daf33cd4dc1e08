// Package report builds the monthly keyword ranking, the "past today" view
// and spreadsheet export/import of diary records.
package report

import (
	"sort"
	"strings"

	"voice-diary-go/internal/types"
)

// TopN is the number of keywords kept per category.
const TopN = 5

// RankedKeyword is one keyword and the number of diary days it appeared on.
type RankedKeyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Ranking is the per-category top keywords of one month.
type Ranking struct {
	Month string          `json:"month"`
	Who   []RankedKeyword `json:"who"`
	Where []RankedKeyword `json:"where"`
	What  []RankedKeyword `json:"what"`
}

// KeywordRanking counts keywords over the records dated within month
// (YYYY-MM). Each date is counted once. Ties keep first-seen order.
func KeywordRanking(records []types.DiaryRecord, month string) Ranking {
	sorted := make([]types.DiaryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	who, where, what := newCounter(), newCounter(), newCounter()
	seen := map[string]bool{}
	for _, r := range sorted {
		if !strings.HasPrefix(r.Date, month) || seen[r.Date] {
			continue
		}
		seen[r.Date] = true
		who.add(r.Keywords.Who)
		where.add(r.Keywords.Where)
		what.add(r.Keywords.What)
	}

	return Ranking{
		Month: month,
		Who:   who.top(TopN),
		Where: where.top(TopN),
		What:  what.top(TopN),
	}
}

type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}}
}

func (c *counter) add(words []string) {
	for _, w := range words {
		if _, ok := c.counts[w]; !ok {
			c.order = append(c.order, w)
		}
		c.counts[w]++
	}
}

func (c *counter) top(n int) []RankedKeyword {
	out := make([]RankedKeyword, 0, len(c.order))
	for _, w := range c.order {
		out = append(out, RankedKeyword{Word: w, Count: c.counts[w]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
