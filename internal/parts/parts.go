package parts

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// Part is one contiguous byte range of a payload.
type Part struct {
	// Number is 1-based and unique within an upload.
	Number int

	// Offset is the first byte of the range.
	Offset int64

	// Size is the length of the range in bytes.
	Size int64
}

// End returns the offset one past the last byte of the part.
func (p Part) End() int64 {
	return p.Offset + p.Size
}

// Count returns ceil(size/partSize). A non-positive partSize falls back to
// storagetypes.DefaultPartSize.
func Count(size, partSize int64) int {
	if size <= 0 {
		return 0
	}
	if partSize <= 0 {
		partSize = storagetypes.DefaultPartSize
	}
	return int((size + partSize - 1) / partSize)
}

// Plan returns the parts covering [0, size). Part n spans
// [(n-1)*partSize, min(n*partSize, size)).
func Plan(size, partSize int64) []Part {
	if partSize <= 0 {
		partSize = storagetypes.DefaultPartSize
	}

	n := Count(size, partSize)
	parts := make([]Part, n)
	for i := range parts {
		offset := int64(i) * partSize
		parts[i] = Part{
			Number: i + 1,
			Offset: offset,
			Size:   min(partSize, size-offset),
		}
	}
	return parts
}

// Numbers returns the part numbers of parts in order.
func Numbers(parts []Part) []int {
	numbers := make([]int, len(parts))
	for i, p := range parts {
		numbers[i] = p.Number
	}
	return numbers
}

// Tracker accumulates transferred bytes across concurrently uploaded parts.
// The callback runs while the tracker lock is held, so successive callbacks
// never observe a smaller Loaded value.
type Tracker struct {
	mu       sync.Mutex
	loaded   int64
	total    int64
	callback storagetypes.ProgressFunc
}

// NewTracker creates a tracker for total bytes. callback may be nil.
func NewTracker(total int64, callback storagetypes.ProgressFunc) *Tracker {
	return &Tracker{
		total:    total,
		callback: callback,
	}
}

// Add records n more transferred bytes and reports the new progress.
func (t *Tracker) Add(n int64) storagetypes.UploadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > 0 {
		t.loaded = min(t.loaded+n, t.total)
	}

	p := storagetypes.NewProgress(t.loaded, t.total)
	if t.callback != nil {
		t.callback(p)
	}
	return p
}

// Progress returns the current progress without invoking the callback.
func (t *Tracker) Progress() storagetypes.UploadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	return storagetypes.NewProgress(t.loaded, t.total)
}
