package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/relay"
	"memcontext-be/pkg/events"
	"memcontext-be/pkg/memcontext"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestHandle struct {
	memcontext.Handle

	mu  sync.Mutex
	got memcontext.IngestRequest
	err error
}

func (h *ingestHandle) UserID() string { return "alice" }

func (h *ingestHandle) AddMultimodal(_ context.Context, req memcontext.IngestRequest, progress memcontext.ProgressFunc) (*memcontext.IngestResult, error) {
	h.mu.Lock()
	h.got = req
	h.mu.Unlock()

	progress(0.5, "Converting")
	if h.err != nil {
		return nil, h.err
	}
	progress(1, "Done")
	return &memcontext.IngestResult{Status: "success", ChunksWritten: 2, FileID: "f-1"}, nil
}

func (h *ingestHandle) request() memcontext.IngestRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.got
}

type publisherRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisherRecorder) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *publisherRecorder) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *publisherRecorder) waitFor(t *testing.T, n int) []events.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.published()) >= n }, time.Second, 5*time.Millisecond)
	return p.published()
}

// blockingPublisher holds every Publish until release is closed.
type blockingPublisher struct {
	publisherRecorder
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, e events.Event) error {
	<-p.release
	return p.publisherRecorder.Publish(ctx, e)
}

func newIngestService(pub EventPublisher) IIngestService {
	launcher := relay.LauncherFunc(func(fn func()) error { go fn(); return nil })
	r := relay.New(10*time.Millisecond, launcher, logger.NewNopLogger(), nil)
	return NewIngestService(r, launcher, pub, "", logger.NewNopLogger())
}

func TestIngestService_RequiresFilePath(t *testing.T) {
	svc := newIngestService(nil)

	_, err := svc.Start(&ingestHandle{}, &dto.AddMultimodalMemoryRequest{FilePath: "  "})

	assert.ErrorIs(t, err, ErrFilePathRequired)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestIngestService_PreparesRequest(t *testing.T) {
	handle := &ingestHandle{}
	svc := newIngestService(nil)

	_, err := svc.Ingest(context.Background(), handle, &dto.AddMultimodalMemoryRequest{
		FilePath:      "/data/notes.txt",
		ConverterType: " TEXT ",
		ConverterKwargs: map[string]interface{}{
			"chunk_size":      100,
			"deepseek_key":    "secret",
			"siliconflow_key": "secret",
		},
	})
	require.NoError(t, err)

	got := handle.request()
	assert.Equal(t, "text", got.ConverterType)
	assert.Equal(t, "/data/notes.txt", got.Source)
	assert.Equal(t, map[string]interface{}{
		"chunk_size":  100,
		"working_dir": "./videorag-workdir",
	}, got.ConverterKwargs)
}

func TestIngestService_DefaultConverter(t *testing.T) {
	handle := &ingestHandle{}
	svc := newIngestService(nil)

	_, err := svc.Ingest(context.Background(), handle, &dto.AddMultimodalMemoryRequest{FilePath: "a.txt"})
	require.NoError(t, err)

	assert.Equal(t, DefaultConverterType, handle.request().ConverterType)
}

func TestIngestService_IngestCollectsProgress(t *testing.T) {
	pub := &publisherRecorder{}
	svc := newIngestService(pub)

	res, err := svc.Ingest(context.Background(), &ingestHandle{}, &dto.AddMultimodalMemoryRequest{FilePath: "dir/a.txt"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.IngestedRounds)
	assert.Equal(t, "f-1", res.FileID)
	assert.Equal(t, []string{}, res.Timestamps)
	assert.Equal(t, []dto.ProgressDTO{
		{Progress: 0.5, Message: "Converting"},
		{Progress: 1, Message: "Done"},
	}, res.Progress)

	published := pub.waitFor(t, 1)
	require.Len(t, published, 1)
	assert.Equal(t, events.IngestCompleted, published[0].EventType())
	assert.Equal(t, "alice", events.UserID(published[0]))
	assert.Equal(t, "a.txt", published[0].Payload()["source"])
}

func TestIngestService_SlowPublisherDoesNotDelayResult(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	svc := newIngestService(pub)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ingest(context.Background(), &ingestHandle{}, &dto.AddMultimodalMemoryRequest{FilePath: "a.txt"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ingest result waited on the event publisher")
	}
	assert.Empty(t, pub.published())

	close(pub.release)
	published := pub.waitFor(t, 1)
	assert.Equal(t, events.IngestCompleted, published[0].EventType())
}

func TestIngestService_URLUnsupported(t *testing.T) {
	svc := newIngestService(nil)

	_, err := svc.Start(&ingestHandle{}, &dto.AddMultimodalMemoryRequest{URL: "https://example.com/clip.mp4"})

	assert.ErrorIs(t, err, ErrURLUnsupported)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestIngestService_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind apperror.Kind
		wantMsg  string
	}{
		{
			name:     "unsupported converter",
			err:      &memcontext.ErrUnsupportedConverter{Type: "video"},
			wantKind: apperror.KindValidation,
			wantMsg:  "unsupported converter_type: video",
		},
		{
			name:     "converter failure",
			err:      errors.New("disk full"),
			wantKind: apperror.KindInternal,
			wantMsg:  "add_multimodal_memory failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &publisherRecorder{}
			svc := newIngestService(pub)

			_, err := svc.Ingest(context.Background(), &ingestHandle{err: tt.err}, &dto.AddMultimodalMemoryRequest{FilePath: "a.mp4"})

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperror.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperror.PublicMessage(err))

			published := pub.waitFor(t, 1)
			require.Len(t, published, 1)
			assert.Equal(t, events.IngestFailed, published[0].EventType())
		})
	}
}
