package upload

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

func testFiles(n int, size int) []File {
	files := make([]File, n)
	for i := range files {
		data := payload(size)
		files[i] = File{Name: fmt.Sprintf("file-%d.bin", i), Data: bytes.NewReader(data), Size: int64(size)}
	}
	return files
}

func TestBatch_UploadMultiple(t *testing.T) {
	env := newTestEnv(t)

	var starts, completes, errs atomic.Int32
	batch := NewBatch(New(env.endpoint), BatchOptions{
		Concurrency: 2,
		OnStart:     func(File) { starts.Add(1) },
		OnComplete:  func(File, *storagetypes.UploadResponse) { completes.Add(1) },
		OnError:     func(File, error) { errs.Add(1) },
	})

	var maxUploading atomic.Int32
	env.with(func(e *testEnv) {
		e.onPut = func(string) {
			var n int32
			for _, s := range batch.States() {
				if s.Status == StatusUploading {
					n++
				}
			}
			for {
				cur := maxUploading.Load()
				if n <= cur || maxUploading.CompareAndSwap(cur, n) {
					break
				}
			}
		}
	})

	files := testFiles(6, 1024)
	results, err := batch.UploadMultiple(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, results, 6)

	for i, resp := range results {
		require.NotNil(t, resp)
		assert.Equal(t, files[i].Name, resp.Name)
	}

	assert.LessOrEqual(t, maxUploading.Load(), int32(2))
	assert.GreaterOrEqual(t, maxUploading.Load(), int32(1))
	assert.Equal(t, int32(6), starts.Load())
	assert.Equal(t, int32(6), completes.Load())
	assert.Zero(t, errs.Load())

	states := batch.States()
	require.Len(t, states, 6)
	for i, s := range states {
		assert.Equal(t, files[i].Name, s.File.Name)
		assert.Equal(t, StatusSuccess, s.Status)
		assert.Equal(t, 100, s.Progress.Percentage)
		assert.NotNil(t, s.Response)
	}
	assert.False(t, batch.IsUploading())
}

func TestBatch_FailingFileDoesNotFailBatch(t *testing.T) {
	env := newTestEnv(t)
	env.with(func(e *testEnv) { e.failKey = "file-1.bin" })

	var failed []string
	batch := NewBatch(New(env.endpoint), BatchOptions{
		Concurrency: 1,
		OnError:     func(f File, err error) { failed = append(failed, f.Name) },
	})

	results, err := batch.UploadMultiple(context.Background(), testFiles(3, 16))
	require.NoError(t, err)

	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])
	assert.Equal(t, []string{"file-1.bin"}, failed)

	states := batch.States()
	assert.Equal(t, StatusSuccess, states[0].Status)
	assert.Equal(t, StatusError, states[1].Status)
	assert.Error(t, states[1].Err)
	assert.Equal(t, StatusSuccess, states[2].Status)
}

func TestBatch_UploadAndReset(t *testing.T) {
	env := newTestEnv(t)

	var progress []storagetypes.UploadProgress
	batch := NewBatch(New(env.endpoint), BatchOptions{
		OnProgress: func(f File, p storagetypes.UploadProgress) { progress = append(progress, p) },
	})

	file := testFiles(1, 32)[0]
	resp, err := batch.Upload(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, file.Name, resp.Name)
	assert.Equal(t, []storagetypes.UploadProgress{{Loaded: 32, Total: 32, Percentage: 100}}, progress)

	require.Len(t, batch.States(), 1)
	assert.Equal(t, StatusSuccess, batch.States()[0].Status)

	batch.Reset()
	assert.Empty(t, batch.States())
	assert.False(t, batch.IsUploading())
}

func TestBatch_CancelledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewBatch(New(env.endpoint), BatchOptions{})
	_, err := batch.UploadMultiple(ctx, testFiles(2, 8))
	require.ErrorIs(t, err, context.Canceled)

	for _, s := range batch.States() {
		assert.Equal(t, StatusPending, s.Status)
	}
	assert.Zero(t, env.putCount())
}

func TestBatch_NegativeConcurrencyIsSequential(t *testing.T) {
	env := newTestEnv(t)

	batch := NewBatch(New(env.endpoint), BatchOptions{Concurrency: -5})
	results, err := batch.UploadMultiple(context.Background(), testFiles(4, 64))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 4, env.putCount())
	env.with(func(e *testEnv) { assert.Equal(t, 1, e.maxInFlight) })
}
