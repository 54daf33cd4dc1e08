package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(user, date string) types.DiaryRecord {
	return types.DiaryRecord{
		UserID:  user,
		Date:    date,
		Text:    "오늘 친구와 카페에서 공부했다.",
		Emotion: "😊",
		Songs:   []string{"아이유 - 좋은 날"},
		Keywords: types.Keywords{
			Who:   []string{"친구"},
			Where: []string{"카페"},
			What:  []string{"공부"},
		},
	}
}

func TestSaveFetchRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	saved, err := s.Save(ctx, sampleRecord("u1", "2025-06-01"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v", saved.UpdatedAt)
	}

	got, err := s.Fetch(ctx, "u1", "2025-06-01")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Errorf("Fetch = %+v\nwant    %+v", got, saved)
	}
}

func TestSaveKeepsUserIDVerbatim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"alice ", " alice", "alice"} {
		saved, err := s.Save(ctx, sampleRecord(user, "2025-06-01"))
		if err != nil {
			t.Fatalf("Save(%q): %v", user, err)
		}
		if saved.UserID != user {
			t.Errorf("saved UserID = %q, want %q", saved.UserID, user)
		}
		got, err := s.Fetch(ctx, user, "2025-06-01")
		if err != nil {
			t.Fatalf("Fetch(%q): %v", user, err)
		}
		if got.UserID != user {
			t.Errorf("fetched UserID = %q, want %q", got.UserID, user)
		}
	}

	list, err := s.ListByUser(ctx, "alice ", "")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "alice " {
		t.Errorf("ListByUser(\"alice \") = %+v", list)
	}
	if n, err := s.DeleteAll(ctx, "alice ", "2025-06-01"); err != nil || n != 1 {
		t.Errorf("DeleteAll = %d, %v", n, err)
	}
	if _, err := s.Fetch(ctx, "alice", "2025-06-01"); err != nil {
		t.Errorf("unpadded id must be unaffected: %v", err)
	}
}

func TestSaveIsIdempotentUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("u1", "2025-06-01")
	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}

	rec.Text = "수정된 일기"
	rec.Songs = nil
	if _, err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, err := s.ListByUser(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("records = %d, want exactly 1", len(list))
	}
	if list[0].Text != "수정된 일기" {
		t.Errorf("Text = %q, last write should win", list[0].Text)
	}
	if list[0].Songs == nil || len(list[0].Songs) != 0 {
		t.Errorf("Songs = %#v, want replaced with empty", list[0].Songs)
	}
}

func TestFetchMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Fetch(context.Background(), "u1", "2025-06-02")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, ErrPersistenceFailed) {
		t.Error("absence must not be a persistence failure")
	}
}

func TestDeleteAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []types.DiaryRecord{
		sampleRecord("u1", "2025-06-01"),
		sampleRecord("u1", "2025-06-02"),
		sampleRecord("u2", "2025-06-01"),
	} {
		if _, err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	n, err := s.DeleteAll(ctx, "u1", "2025-06-01")
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := s.Fetch(ctx, "u1", "2025-06-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record should be gone, err = %v", err)
	}
	if _, err := s.Fetch(ctx, "u2", "2025-06-01"); err != nil {
		t.Errorf("other user's record should remain: %v", err)
	}

	n, err = s.DeleteAll(ctx, "u1", "2025-06-01")
	if err != nil || n != 0 {
		t.Errorf("second DeleteAll = %d, %v", n, err)
	}
}

func TestListByUserMonthPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"2025-06-15", "2025-05-31", "2025-06-01", "2024-06-01"} {
		if _, err := s.Save(ctx, sampleRecord("u1", d)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	s.Save(ctx, sampleRecord("u2", "2025-06-10"))

	list, err := s.ListByUser(ctx, "u1", "2025-06")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	var dates []string
	for _, r := range list {
		dates = append(dates, r.Date)
	}
	if want := []string{"2025-06-01", "2025-06-15"}; !reflect.DeepEqual(dates, want) {
		t.Errorf("dates = %v, want %v", dates, want)
	}

	empty, err := s.ListByUser(ctx, "nobody", "")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListByUser(nobody) = %#v, %v", empty, err)
	}
}

func TestSaveRejectsInvalidIdentity(t *testing.T) {
	s := openTestStore(t)
	for _, rec := range []types.DiaryRecord{
		sampleRecord("", "2025-06-01"),
		sampleRecord("u1", "06/01/2025"),
	} {
		if _, err := s.Save(context.Background(), rec); !errors.Is(err, ErrPersistenceFailed) {
			t.Errorf("Save(%q, %q) err = %v", rec.UserID, rec.Date, err)
		}
	}
}

func TestClosedStoreFails(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "diary.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if _, err := s.Save(context.Background(), sampleRecord("u1", "2025-06-01")); !errors.Is(err, ErrPersistenceFailed) {
		t.Errorf("Save err = %v, want ErrPersistenceFailed", err)
	}
	if _, err := s.Fetch(context.Background(), "u1", "2025-06-01"); !errors.Is(err, ErrPersistenceFailed) {
		t.Errorf("Fetch err = %v, want ErrPersistenceFailed", err)
	}
}
