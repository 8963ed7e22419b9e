package testutil

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// ProgressRecorder collects progress updates from concurrent uploads.
type ProgressRecorder struct {
	mu      sync.Mutex
	updates []storagetypes.UploadProgress
}

// Record is a storagetypes.ProgressFunc.
func (r *ProgressRecorder) Record(p storagetypes.UploadProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

// Updates returns a copy of every update received, in arrival order.
func (r *ProgressRecorder) Updates() []storagetypes.UploadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storagetypes.UploadProgress(nil), r.updates...)
}

// Last returns the most recent update and whether there was one.
func (r *ProgressRecorder) Last() (storagetypes.UploadProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return storagetypes.UploadProgress{}, false
	}
	return r.updates[len(r.updates)-1], true
}

// Monotonic reports whether Loaded never decreased between updates.
func (r *ProgressRecorder) Monotonic() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.updates); i++ {
		if r.updates[i].Loaded < r.updates[i-1].Loaded {
			return false
		}
	}
	return true
}
