// Package recorder is the audio capture boundary of the diary pipeline.
//
// A Recorder hands out at most one live Handle at a time. Audio written to the
// handle is flushed and closed by Stop, which returns a finalized Asset that
// can be passed to a transcriber. Release discards a handle without producing
// an asset and is safe to call on any exit path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrPermissionDenied means the microphone permission was not granted.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrBusy means the recorder already has a live handle.
	ErrBusy = errors.New("recorder already in use")
	// ErrNotRecording means the handle was stopped or released.
	ErrNotRecording = errors.New("no active recording")
)

// Recorder is the platform recording capability.
type Recorder interface {
	RequestPermission(ctx context.Context) error
	Start(ctx context.Context) (*Handle, error)
	Stop(ctx context.Context, h *Handle) (Asset, error)
	Release(h *Handle) error
	Discard(a Asset) error
}

// Asset is a finished recording.
type Asset struct {
	ID   string
	Path string
	Size int64
	// Finalized is set once the underlying file is flushed and closed.
	Finalized bool
}

// Handle is a live recording. Audio bytes are written to it.
type Handle struct {
	ID   string
	path string

	mu   sync.Mutex
	f    *os.File
	size int64
}

// Write appends audio bytes to the recording.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return 0, ErrNotRecording
	}
	n, err := h.f.Write(p)
	h.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (h *Handle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return ErrNotRecording
	}
	if err := h.f.Sync(); err != nil {
		h.f.Close()
		h.f = nil
		return fmt.Errorf("flush recording: %w", err)
	}
	err := h.f.Close()
	h.f = nil
	return err
}

// FileRecorder buffers uploaded audio into temp files under Dir.
type FileRecorder struct {
	Dir       string
	Ext       string
	permitted bool

	mu   sync.Mutex
	live *Handle
}

// NewFileRecorder returns a recorder writing under dir. granted is the
// microphone permission reported by the client device.
func NewFileRecorder(dir string, granted bool) *FileRecorder {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileRecorder{Dir: dir, Ext: ".m4a", permitted: granted}
}

func (r *FileRecorder) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.permitted {
		return ErrPermissionDenied
	}
	return nil
}

func (r *FileRecorder) Start(ctx context.Context) (*Handle, error) {
	if err := r.RequestPermission(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != nil {
		return nil, ErrBusy
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	id := uuid.New().String()
	path := filepath.Join(r.Dir, "diary-"+id+r.Ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	h := &Handle{ID: id, path: path, f: f}
	r.live = h
	return h, nil
}

func (r *FileRecorder) Stop(ctx context.Context, h *Handle) (Asset, error) {
	if h == nil {
		return Asset{}, ErrNotRecording
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != h {
		return Asset{}, ErrNotRecording
	}
	r.live = nil

	if err := h.close(); err != nil {
		os.Remove(h.path)
		return Asset{}, fmt.Errorf("stop recording: %w", err)
	}
	return Asset{ID: h.ID, Path: h.path, Size: h.Size(), Finalized: true}, nil
}

func (r *FileRecorder) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	r.mu.Lock()
	if r.live == h {
		r.live = nil
	}
	r.mu.Unlock()

	_ = h.close()
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release recording: %w", err)
	}
	return nil
}

func (r *FileRecorder) Discard(a Asset) error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard asset: %w", err)
	}
	return nil
}

// Active reports whether a handle is live.
func (r *FileRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live != nil
}
