package parts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

func TestCompletion(t *testing.T) {
	tests := []struct {
		name    string
		ids     storagetypes.PartIDs
		want    []Uploaded
		wantErr string
	}{
		{
			name: "sorted ascending",
			ids:  storagetypes.PartIDs{{3: "c"}, {1: "a"}, {2: "b"}},
			want: []Uploaded{{1, "a"}, {2, "b"}, {3, "c"}},
		},
		{
			name: "several parts per entry",
			ids:  storagetypes.PartIDs{{2: "b", 1: "a"}},
			want: []Uploaded{{1, "a"}, {2, "b"}},
		},
		{
			name: "highest part number",
			ids:  storagetypes.PartIDs{{MaxNumber: "z"}},
			want: []Uploaded{{MaxNumber, "z"}},
		},
		{name: "duplicate part", ids: storagetypes.PartIDs{{1: "a"}, {1: "a2"}}, wantErr: "part 1 listed more than once"},
		{name: "missing etag", ids: storagetypes.PartIDs{{1: ""}}, wantErr: "part 1 has no ETag"},
		{name: "no entries", wantErr: "at least one part"},
		{name: "empty entry", ids: storagetypes.PartIDs{{}}, wantErr: "at least one part"},
		{name: "part zero", ids: storagetypes.PartIDs{{0: "a"}}, wantErr: "outside 1..10000"},
		{name: "part too large", ids: storagetypes.PartIDs{{MaxNumber + 1: "a"}}, wantErr: "outside 1..10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Completion(tt.ids)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, storageerrors.ErrInvalidInput)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckNumbers(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		wantErr bool
	}{
		{"in range any order", []int{3, 1, 2}, false},
		{"bounds", []int{1, MaxNumber}, false},
		{"empty", nil, true},
		{"zero", []int{0, 1}, true},
		{"negative", []int{-1}, true},
		{"too large", []int{MaxNumber + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckNumbers(tt.numbers)
			if tt.wantErr {
				require.ErrorIs(t, err, storageerrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}
