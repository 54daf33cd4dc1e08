// Package store persists diary records as one JSON document per (user, date).
package store

import (
	"context"
	"errors"

	"voice-diary-go/internal/types"
)

var (
	// ErrNotFound is returned by Fetch when no record exists. It is not a failure.
	ErrNotFound = errors.New("diary record not found")
	// ErrPersistenceFailed wraps every storage-layer error.
	ErrPersistenceFailed = errors.New("persistence failed")
)

// Store is the diary record collection keyed by "<userId>_<date>".
type Store interface {
	// Save upserts the whole record and returns it with UpdatedAt stamped.
	Save(ctx context.Context, rec types.DiaryRecord) (types.DiaryRecord, error)
	Fetch(ctx context.Context, userID, date string) (types.DiaryRecord, error)
	// DeleteAll removes every record matching the user and date fields.
	DeleteAll(ctx context.Context, userID, date string) (int64, error)
	// ListByUser returns the user's records whose date starts with datePrefix,
	// ordered by date. An empty prefix lists everything.
	ListByUser(ctx context.Context, userID, datePrefix string) ([]types.DiaryRecord, error)
	Close() error
}
