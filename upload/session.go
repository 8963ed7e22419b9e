package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/concurrency"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/parts"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// State is the stage an upload has reached.
type State string

const (
	StateIdle           State = "idle"
	StateInitiating     State = "initiating"
	StatePartsRequested State = "parts_requested"
	StateUploading      State = "uploading"
	StateCompleting     State = "completing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// session carries one Upload call through its states. It is never shared
// between calls.
type session struct {
	uploader    *Uploader
	name        string
	contentType string
	payload     io.ReaderAt
	size        int64
	opts        Options

	state    State
	failedIn State
	onState  func(State)
}

func (s *session) transition(to State) {
	if s.state == StateDone || s.state == StateFailed {
		return
	}
	if to == StateFailed {
		s.failedIn = s.state
	}
	s.state = to
	if s.onState != nil {
		s.onState(to)
	}
}

// single sends the whole payload to one presigned URL.
func (s *session) single(ctx context.Context) (string, error) {
	s.transition(StateInitiating)

	presigned, err := call[*storagetypes.PresignResult](ctx, s.uploader, storagetypes.ClientUploadRequest{
		Action:         storagetypes.ActionSinglepartInit,
		Name:           s.name,
		Path:           s.name,
		ContentType:    s.contentType,
		Operation:      string(storagetypes.PresignPut),
		AllowOverwrite: s.opts.AllowOverwrite,
	})
	if err != nil {
		return "", err
	}
	if presigned == nil || presigned.URL == "" {
		return "", fmt.Errorf("%w: failed to get presigned URL", storageerrors.ErrUploadSession)
	}

	s.transition(StateUploading)
	tracker := parts.NewTracker(s.size, s.opts.OnProgress)

	resp, err := s.uploader.do(ctx, http.MethodPut, presigned.URL,
		io.NewSectionReader(s.payload, 0, s.size), s.size, s.contentType)
	if err != nil {
		return "", err
	}
	drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: upload failed with status: %d", storageerrors.ErrTransport, resp.StatusCode)
	}
	tracker.Add(s.size)

	return strings.Replace(presigned.URL, "x-id=PutObject", "x-id=GetObject", 1), nil
}

// multipart opens a session, sends every part and completes the session.
func (s *session) multipart(ctx context.Context) (string, error) {
	logger := s.uploader.logger

	s.transition(StateInitiating)
	initiated, err := call[*storagetypes.InitMultipartResult](ctx, s.uploader, storagetypes.ClientUploadRequest{
		Action:      storagetypes.ActionMultipartInit,
		Name:        s.name,
		Path:        s.name,
		ContentType: s.contentType,
	})
	if err != nil {
		return "", err
	}
	if initiated == nil || initiated.UploadID == "" {
		return "", fmt.Errorf("%w: failed to initialize multipart upload", storageerrors.ErrUploadSession)
	}
	uploadID := initiated.UploadID

	plan := parts.Plan(s.size, s.opts.partSize())
	if len(plan) == 0 {
		// An empty payload is still stored as one empty part.
		plan = []parts.Part{{Number: 1}}
	}

	urls, err := call[[]storagetypes.PartURL](ctx, s.uploader, storagetypes.ClientUploadRequest{
		Action:   storagetypes.ActionMultipartGetParts,
		Name:     s.name,
		Path:     s.name,
		UploadID: uploadID,
		Parts:    parts.Numbers(plan),
	})
	if err != nil {
		return "", err
	}
	targets := make(map[int]string, len(urls))
	for _, u := range urls {
		targets[u.Part] = u.URL
	}
	for _, p := range plan {
		if targets[p.Number] == "" {
			return "", fmt.Errorf("%w: no URL returned for part %d", storageerrors.ErrUploadSession, p.Number)
		}
	}
	s.transition(StatePartsRequested)

	logger.DebugContext(ctx, "uploading parts",
		"key", s.name, "upload_id", uploadID, "parts", len(plan), "concurrency", s.opts.concurrency())

	tracker := parts.NewTracker(s.size, s.opts.OnProgress)
	tasks := make([]concurrency.Task[map[int]string], len(plan))
	for i, p := range plan {
		tasks[i] = func(ctx context.Context) (map[int]string, error) {
			etag, err := s.sendPart(ctx, p, targets[p.Number])
			if err != nil {
				return nil, err
			}
			tracker.Add(p.Size)
			return map[int]string{p.Number: etag}, nil
		}
	}

	s.transition(StateUploading)
	partIDs, err := concurrency.Execute(ctx, tasks, s.opts.concurrency())
	if err != nil {
		return "", err
	}

	s.transition(StateCompleting)
	completed, err := call[*storagetypes.CompleteMultipartResult](ctx, s.uploader, storagetypes.ClientUploadRequest{
		Action:   storagetypes.ActionMultipartComplete,
		Name:     s.name,
		Path:     s.name,
		UploadID: uploadID,
		PartIDs:  partIDs,
	})
	if err != nil {
		return "", err
	}
	if completed == nil {
		return "", fmt.Errorf("%w: empty multipart-complete response", storageerrors.ErrUploadSession)
	}

	logger.DebugContext(ctx, "multipart upload completed", "key", s.name, "upload_id", uploadID)
	return completed.URL, nil
}

// sendPart transmits one part and returns its ETag.
func (s *session) sendPart(ctx context.Context, p parts.Part, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := s.uploader.do(ctx, http.MethodPut, url, io.NewSectionReader(s.payload, p.Offset, p.Size), p.Size, "")
	if err != nil {
		return "", fmt.Errorf("part %d upload failed: %w", p.Number, err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: part %d upload failed with status: %d",
			storageerrors.ErrTransport, p.Number, resp.StatusCode)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("%w: part %d response has no ETag header", storageerrors.ErrUploadSession, p.Number)
	}
	return etag, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
