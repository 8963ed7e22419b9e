package upload

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
	"github.com/input-output-hk/catalyst-forge-libs/storage/upload/server"
)

// testEnv is an upload endpoint backed by an in-memory store. Presigned URLs
// point back at the same server, so part transfers are observable.
type testEnv struct {
	srv      *httptest.Server
	endpoint string

	mu          sync.Mutex
	objects     map[string][]byte
	sessions    map[string]map[int][]byte
	sessionKeys map[string]string
	partSizes   map[int]int
	calls       map[storagetypes.UploadAction]int
	completed   []storagetypes.PartIDs
	contentType string
	presigned   []string
	puts        int
	inFlight    int
	maxInFlight int

	failPart    int
	failKey     string
	omitETag    bool
	completeErr error
	onPut       func(key string)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		objects:     map[string][]byte{},
		sessions:    map[string]map[int][]byte{},
		sessionKeys: map[string]string{},
		partSizes:   map[int]int{},
		calls:       map[storagetypes.UploadAction]int{},
	}

	mux := http.NewServeMux()
	mux.Handle("/upload", server.New(env))
	mux.HandleFunc("/store/", env.store)

	env.srv = httptest.NewServer(mux)
	env.endpoint = env.srv.URL + "/upload"
	t.Cleanup(env.srv.Close)
	return env
}

func etagOf(body []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(body))
}

func (e *testEnv) with(fn func(e *testEnv)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

func (e *testEnv) callCount(action storagetypes.UploadAction) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[action]
}

func (e *testEnv) object(key string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	body, ok := e.objects[key]
	return body, ok
}

func (e *testEnv) putCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.puts
}

func (e *testEnv) store(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/store/")
	query := r.URL.Query()

	e.mu.Lock()
	e.puts++
	e.inFlight++
	e.maxInFlight = max(e.maxInFlight, e.inFlight)
	onPut, failPart, failKey, omitETag := e.onPut, e.failPart, e.failKey, e.omitETag
	e.mu.Unlock()

	defer e.with(func(e *testEnv) { e.inFlight-- })

	if onPut != nil {
		onPut(key)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	time.Sleep(2 * time.Millisecond)

	if key == failKey {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if id := query.Get("uploadId"); id != "" {
		n, _ := strconv.Atoi(query.Get("partNumber"))
		if n == failPart {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		e.mu.Lock()
		parts, ok := e.sessions[id]
		if ok {
			parts[n] = body
			e.partSizes[n] = len(body)
		}
		e.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if !omitETag {
			w.Header().Set("ETag", etagOf(body))
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	e.with(func(e *testEnv) { e.objects[key] = body })
	w.Header().Set("ETag", etagOf(body))
	w.WriteHeader(http.StatusOK)
}

func (e *testEnv) url(key string, query string) string {
	return e.srv.URL + "/store/" + key + "?" + query
}

func (e *testEnv) PresignUpload(
	ctx context.Context,
	key, contentType string,
	allowOverwrite bool,
) (*storagetypes.PresignResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[storagetypes.ActionSinglepartInit]++
	e.contentType = contentType
	e.presigned = append(e.presigned, key)
	if _, ok := e.objects[key]; ok && !allowOverwrite {
		return nil, storageerrors.NewObjectError("presignUpload", "test-bucket", key, storageerrors.ErrObjectExists)
	}

	return &storagetypes.PresignResult{
		URL:       e.url(key, "x-id=PutObject&X-Amz-Signature=sig"),
		Operation: storagetypes.PresignPut,
		ExpiresIn: 3600,
	}, nil
}

func (e *testEnv) InitMultipartUpload(
	ctx context.Context,
	key, contentType string,
) (*storagetypes.InitMultipartResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[storagetypes.ActionMultipartInit]++
	e.contentType = contentType
	id := fmt.Sprintf("upload-%d", e.calls[storagetypes.ActionMultipartInit])
	e.sessions[id] = map[int][]byte{}
	e.sessionKeys[id] = key
	return &storagetypes.InitMultipartResult{UploadID: id}, nil
}

func (e *testEnv) GetPartsPresignedURLs(
	ctx context.Context,
	key, uploadID string,
	parts []int,
) ([]storagetypes.PartURL, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[storagetypes.ActionMultipartGetParts]++
	if _, ok := e.sessions[uploadID]; !ok {
		return nil, storageerrors.ErrNoSuchUpload
	}

	urls := make([]storagetypes.PartURL, len(parts))
	for i, n := range parts {
		urls[i] = storagetypes.PartURL{
			Part: n,
			URL:  e.url(key, fmt.Sprintf("uploadId=%s&partNumber=%d&x-id=UploadPart", uploadID, n)),
		}
	}
	return urls, nil
}

func (e *testEnv) CompleteMultipartUpload(
	ctx context.Context,
	key, uploadID string,
	partIDs storagetypes.PartIDs,
) (*storagetypes.CompleteMultipartResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[storagetypes.ActionMultipartComplete]++
	e.completed = append(e.completed, partIDs)
	if e.completeErr != nil {
		return nil, e.completeErr
	}

	stored, ok := e.sessions[uploadID]
	if !ok {
		return nil, storageerrors.ErrNoSuchUpload
	}

	var numbers []int
	for _, entry := range partIDs {
		for n, etag := range entry {
			body, ok := stored[n]
			if !ok || etagOf(body) != etag {
				return nil, fmt.Errorf("%w: part %d does not match", storageerrors.ErrUploadSession, n)
			}
			numbers = append(numbers, n)
		}
	}
	slices.Sort(numbers)

	var object []byte
	for _, n := range numbers {
		object = append(object, stored[n]...)
	}
	e.objects[key] = object
	delete(e.sessions, uploadID)

	return &storagetypes.CompleteMultipartResult{Path: key, URL: e.url(key, "x-id=GetObject")}, nil
}

// payload returns n deterministic bytes.
func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
