package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/types"
)

const (
	diarySheet   = "Diaries"
	rankingSheet = "Ranking"

	// songs contain "-" and sometimes commas, so they get their own separator
	songSeparator    = " | "
	keywordSeparator = ", "
)

var diaryHeader = []any{"Date", "Text", "Emotion", "Songs", "Who", "Where", "What", "UpdatedAt"}

// WriteWorkbook writes the month's diaries and keyword ranking as xlsx.
func WriteWorkbook(w io.Writer, records []types.DiaryRecord, ranking Ranking) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", diarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(diarySheet, "A1", &diaryHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Format(time.RFC3339)
		}
		row := []any{
			r.Date,
			r.Text,
			r.Emotion,
			strings.Join(r.Songs, songSeparator),
			strings.Join(r.Keywords.Who, keywordSeparator),
			strings.Join(r.Keywords.Where, keywordSeparator),
			strings.Join(r.Keywords.What, keywordSeparator),
			updated,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(diarySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(rankingSheet); err != nil {
		return fmt.Errorf("add ranking sheet: %w", err)
	}
	header := []any{"Month", "Category", "Rank", "Keyword", "Count"}
	if err := f.SetSheetRow(rankingSheet, "A1", &header); err != nil {
		return fmt.Errorf("write ranking header: %w", err)
	}
	rowNum := 2
	for _, cat := range []struct {
		name  string
		items []RankedKeyword
	}{
		{"who", ranking.Who},
		{"where", ranking.Where},
		{"what", ranking.What},
	} {
		for i, k := range cat.items {
			row := []any{ranking.Month, cat.name, i + 1, k.Word, k.Count}
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := f.SetSheetRow(rankingSheet, cell, &row); err != nil {
				return fmt.Errorf("write ranking row: %w", err)
			}
			rowNum++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// LoadWorkbook reads diary rows from the first sheet of an xlsx file. Columns
// are found by header heuristics (English or Korean names); rows without a
// valid date are skipped.
func LoadWorkbook(path, userID string, log *logger.Logger) ([]types.DiaryRecord, error) {
	if log == nil {
		log = logger.New()
	}
	entry := log.Component("report.import").WithField("path", path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		entry.WithError(err).Error("open failed")
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.date == -1 {
		return nil, fmt.Errorf("no date column in header %v", rows[0])
	}
	entry.WithField("columns", fmt.Sprintf("%+v", cols)).Debug("detected columns")

	var out []types.DiaryRecord
	skipped := 0
	for _, r := range rows[1:] {
		date := strings.TrimSpace(cell(r, cols.date))
		if _, err := types.ParseDate(date); err != nil {
			skipped++
			continue
		}
		out = append(out, types.DiaryRecord{
			UserID:  userID,
			Date:    date,
			Text:    cell(r, cols.text),
			Emotion: strings.TrimSpace(cell(r, cols.emotion)),
			Songs:   splitList(cell(r, cols.songs), "|"),
			Keywords: types.Keywords{
				Who:   splitList(cell(r, cols.who), ","),
				Where: splitList(cell(r, cols.where), ","),
				What:  splitList(cell(r, cols.what), ","),
			},
		})
	}
	entry.WithField("rows", len(out)).WithField("skipped", skipped).Info("workbook loaded")
	return out, nil
}

type columns struct {
	date, text, emotion, songs, who, where, what int
}

func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1, -1}
	set := func(idx *int, i int) {
		if *idx == -1 {
			*idx = i
		}
	}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "updatedat" || strings.Contains(l, "updated"):
			// ignored on import
		case strings.Contains(l, "date") || strings.Contains(l, "날짜"):
			set(&c.date, i)
		case strings.Contains(l, "text") || strings.Contains(l, "내용") || strings.Contains(l, "일기"):
			set(&c.text, i)
		case strings.Contains(l, "emotion") || strings.Contains(l, "감정"):
			set(&c.emotion, i)
		case strings.Contains(l, "song") || strings.Contains(l, "노래") || strings.Contains(l, "추천"):
			set(&c.songs, i)
		case l == "who" || strings.Contains(l, "누구") || strings.Contains(l, "사람"):
			set(&c.who, i)
		case l == "where" || strings.Contains(l, "어디") || strings.Contains(l, "장소"):
			set(&c.where, i)
		case l == "what" || strings.Contains(l, "무엇") || strings.Contains(l, "활동"):
			set(&c.what, i)
		}
	}
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func splitList(s, sep string) []string {
	out := []string{}
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
