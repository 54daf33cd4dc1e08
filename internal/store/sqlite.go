package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS diaries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	date       TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diaries_user_date ON diaries(user_id, date);
`

// SQLiteStore keeps diary documents in a single sqlite table.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
// The connection is verified with a bounded exponential backoff before the
// schema is applied.
func Open(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.New()
	}
	log = log.Component("store")

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: create db dir: %v", ErrPersistenceFailed, err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrPersistenceFailed, err)
	}
	// one connection: sqlite serializes writers and :memory: is per-connection
	db.SetMaxOpenConns(1)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	ping := func() error {
		err := db.PingContext(ctx)
		if err != nil {
			log.WithError(err).Warn("database not ready, retrying")
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrPersistenceFailed, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistenceFailed, err)
	}

	log.WithField("path", path).Info("diary store ready")
	return &SQLiteStore{db: db, log: log, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec types.DiaryRecord) (types.DiaryRecord, error) {
	if err := rec.Validate(); err != nil {
		return types.DiaryRecord{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	rec = normalize(rec)
	rec.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return types.DiaryRecord{}, fmt.Errorf("%w: encode record: %v", ErrPersistenceFailed, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diaries (id, user_id, date, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			date = excluded.date,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, rec.DocID(), rec.UserID, rec.Date, string(data), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.log.WithError(err).WithField("doc_id", rec.DocID()).Error("save failed")
		return types.DiaryRecord{}, fmt.Errorf("%w: upsert %s: %v", ErrPersistenceFailed, rec.DocID(), err)
	}
	return rec, nil
}

func (s *SQLiteStore) Fetch(ctx context.Context, userID, date string) (types.DiaryRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM diaries WHERE id = ?`, types.DocID(userID, date)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DiaryRecord{}, ErrNotFound
	}
	if err != nil {
		return types.DiaryRecord{}, fmt.Errorf("%w: fetch: %v", ErrPersistenceFailed, err)
	}
	return decode(data)
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, userID, date string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diaries WHERE user_id = ? AND date = ?`, userID, date)
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %v", ErrPersistenceFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %v", ErrPersistenceFailed, err)
	}
	s.log.WithField("user_id", userID).WithField("date", date).WithField("deleted", n).Info("diary records deleted")
	return n, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID, datePrefix string) ([]types.DiaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM diaries
		WHERE user_id = ? AND substr(date, 1, ?) = ?
		ORDER BY date ASC
	`, userID, len(datePrefix), datePrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrPersistenceFailed, err)
	}
	defer rows.Close()

	records := []types.DiaryRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrPersistenceFailed, err)
		}
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrPersistenceFailed, err)
	}
	return records, nil
}

func decode(data string) (types.DiaryRecord, error) {
	var rec types.DiaryRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return types.DiaryRecord{}, fmt.Errorf("%w: decode record: %v", ErrPersistenceFailed, err)
	}
	return normalize(rec), nil
}

// normalize replaces nil slices so documents always carry [] rather than null.
// The identity fields are stored exactly as given.
func normalize(rec types.DiaryRecord) types.DiaryRecord {
	if rec.Songs == nil {
		rec.Songs = []string{}
	}
	if rec.Keywords.Who == nil {
		rec.Keywords.Who = []string{}
	}
	if rec.Keywords.Where == nil {
		rec.Keywords.Where = []string{}
	}
	if rec.Keywords.What == nil {
		rec.Keywords.What = []string{}
	}
	return rec
}
