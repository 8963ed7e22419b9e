package storagetypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name   string
		loaded int64
		total  int64
		want   int
	}{
		{"start", 0, 100, 0},
		{"rounds half up", 1, 200, 1},
		{"rounds down", 1, 300, 0},
		{"rounds up not truncates", 2, 3, 67},
		{"done", 22, 22, 100},
		{"empty payload", 0, 0, 100},
		{"over total is clamped", 150, 100, 100},
		{"negative is clamped", -5, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(tt.loaded, tt.total)
			assert.Equal(t, tt.want, p.Percentage)
			assert.Equal(t, tt.loaded, p.Loaded)
			assert.Equal(t, tt.total, p.Total)
		})
	}
}

func TestPutOptions_Overwrite(t *testing.T) {
	var nilOpts *PutOptions
	assert.True(t, nilOpts.Overwrite())
	assert.True(t, (&PutOptions{}).Overwrite())

	no := false
	assert.False(t, (&PutOptions{AllowOverwrite: &no}).Overwrite())
}

func TestClientUploadRequest_PartIDsWireShape(t *testing.T) {
	req := ClientUploadRequest{
		Action:   ActionMultipartComplete,
		Name:     "video.mp4",
		UploadID: "upload-1",
		PartIDs:  PartIDs{{1: `"etag-1"`}, {2: `"etag-2"`}},
	}

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"action":"multipart-complete","name":"video.mp4","uploadId":"upload-1","partIds":[{"1":"\"etag-1\""},{"2":"\"etag-2\""}]}`,
		string(raw))

	var decoded ClientUploadRequest
	require.NoError(t, json.Unmarshal([]byte(`{"action":"multipart-complete","name":"a","uploadId":"u","partIds":[{"2":"b"},{"1":"a"}]}`), &decoded))
	assert.Equal(t, PartIDs{{2: "b"}, {1: "a"}}, decoded.PartIDs)
}

func TestEnvelope(t *testing.T) {
	raw, err := json.Marshal(Envelope[any]{Data: InitMultipartResult{UploadID: "u-1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"uploadId":"u-1"}}`, string(raw))

	raw, err = json.Marshal(Envelope[any]{Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(raw))

	var parts Envelope[[]PartURL]
	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"part":1,"url":"https://x/1"}]}`), &parts))
	assert.Equal(t, []PartURL{{Part: 1, URL: "https://x/1"}}, parts.Data)
}
