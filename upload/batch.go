package upload

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/concurrency"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// File is one payload of a batch.
type File struct {
	Name string
	Data io.ReaderAt
	Size int64
}

func (f File) key() string {
	return fmt.Sprintf("%s-%d", f.Name, f.Size)
}

// Status is the state of one file in a batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// FileState is a snapshot of one file's upload.
type FileState struct {
	File     File
	Status   Status
	Progress storagetypes.UploadProgress
	Response *storagetypes.UploadResponse
	Err      error
}

// BatchOptions configures a Batch.
type BatchOptions struct {
	// Options apply to every file. OnProgress is replaced by the batch.
	Options Options

	// Concurrency bounds how many files upload at once. Zero uses the
	// default of 4; negative values upload one file at a time.
	Concurrency int

	OnStart    func(File)
	OnProgress func(File, storagetypes.UploadProgress)
	OnComplete func(File, *storagetypes.UploadResponse)
	OnError    func(File, error)
}

// Batch uploads files and tracks the state of each. A failing file is
// recorded and reported to OnError; it does not stop the others.
type Batch struct {
	uploader *Uploader
	opts     BatchOptions

	mu     sync.RWMutex
	states map[string]*FileState
	order  []string
}

// NewBatch creates a Batch uploading with uploader.
func NewBatch(uploader *Uploader, opts BatchOptions) *Batch {
	return &Batch{
		uploader: uploader,
		opts:     opts,
		states:   make(map[string]*FileState),
	}
}

// Upload uploads a single file. Its failure is returned as well as recorded.
func (b *Batch) Upload(ctx context.Context, f File) (*storagetypes.UploadResponse, error) {
	b.track(f, StatusUploading)
	return b.run(ctx, f)
}

// UploadMultiple uploads files with at most BatchOptions.Concurrency in
// flight. The response of files[i] is at index i, nil when that file failed.
// The returned error is only set when ctx ends before every file started.
func (b *Batch) UploadMultiple(ctx context.Context, files []File) ([]*storagetypes.UploadResponse, error) {
	for _, f := range files {
		b.track(f, StatusPending)
	}

	tasks := make([]concurrency.Task[*storagetypes.UploadResponse], len(files))
	for i, f := range files {
		tasks[i] = func(ctx context.Context) (*storagetypes.UploadResponse, error) {
			b.update(f, func(s *FileState) { s.Status = StatusUploading })
			resp, _ := b.run(ctx, f)
			return resp, nil
		}
	}

	limit := b.opts.Concurrency
	if limit == 0 {
		limit = storagetypes.DefaultConcurrency
	}
	return concurrency.Execute(ctx, tasks, limit)
}

// States returns a snapshot of every tracked file, in the order first added.
func (b *Batch) States() []FileState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make([]FileState, 0, len(b.order))
	for _, key := range b.order {
		states = append(states, *b.states[key])
	}
	return states
}

// IsUploading reports whether any file is currently uploading.
func (b *Batch) IsUploading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.ContainsFunc(b.order, func(key string) bool {
		return b.states[key].Status == StatusUploading
	})
}

// Reset forgets every tracked file.
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = make(map[string]*FileState)
	b.order = nil
}

func (b *Batch) run(ctx context.Context, f File) (*storagetypes.UploadResponse, error) {
	if b.opts.OnStart != nil {
		b.opts.OnStart(f)
	}

	opts := b.opts.Options
	opts.OnProgress = func(p storagetypes.UploadProgress) {
		b.update(f, func(s *FileState) { s.Progress = p })
		if b.opts.OnProgress != nil {
			b.opts.OnProgress(f, p)
		}
	}

	resp, err := b.uploader.Upload(ctx, f.Name, f.Data, f.Size, opts)
	if err != nil {
		b.update(f, func(s *FileState) {
			s.Status = StatusError
			s.Err = err
		})
		if b.opts.OnError != nil {
			b.opts.OnError(f, err)
		}
		return nil, err
	}

	b.update(f, func(s *FileState) {
		s.Status = StatusSuccess
		s.Response = resp
		s.Progress = storagetypes.NewProgress(f.Size, f.Size)
	})
	if b.opts.OnComplete != nil {
		b.opts.OnComplete(f, resp)
	}
	return resp, nil
}

func (b *Batch) track(f File, status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := f.key()
	if _, ok := b.states[key]; !ok {
		b.order = append(b.order, key)
	}
	b.states[key] = &FileState{
		File:     f,
		Status:   status,
		Progress: storagetypes.UploadProgress{Total: f.Size},
	}
}

func (b *Batch) update(f File, fn func(*FileState)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.states[f.key()]; ok {
		fn(s)
	}
}
