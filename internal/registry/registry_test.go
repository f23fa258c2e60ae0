package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/repository/memory"
	"memcontext-be/pkg/memcontext"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct {
	memcontext.Handle
	gen       int
	tornDown  atomic.Bool
	teardowns *atomic.Int32
	inflight  *atomic.Int32
	overlap   *atomic.Bool
}

func (h *stubHandle) Teardown() error {
	if h.inflight.Add(1) > 1 {
		h.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	h.inflight.Add(-1)
	h.teardowns.Add(1)
	h.tornDown.Store(true)
	return nil
}

type stubFactory struct {
	mu        sync.Mutex
	built     int
	fail      error
	teardowns atomic.Int32
	inflight  atomic.Int32
	overlap   atomic.Bool
}

func (f *stubFactory) build(_ context.Context, _ *entity.SessionSnapshot) (memcontext.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.built++
	return &stubHandle{gen: f.built, teardowns: &f.teardowns, inflight: &f.inflight, overlap: &f.overlap}, nil
}

func newRegistry(f *stubFactory) *Registry {
	return New(f.build, memory.NewSnapshotRepository(time.Hour), time.Hour, logger.NewNopLogger())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		snapshot entity.SessionSnapshot
		wantErr  bool
	}{
		{name: "missing user", snapshot: entity.SessionSnapshot{APIKey: "k"}, wantErr: true},
		{name: "blank user", snapshot: entity.SessionSnapshot{UserID: "  ", APIKey: "k"}, wantErr: true},
		{name: "missing key", snapshot: entity.SessionSnapshot{UserID: "u"}, wantErr: true},
		{name: "ollama needs no key", snapshot: entity.SessionSnapshot{UserID: "u", LLMProvider: "ollama"}},
		{name: "ok", snapshot: entity.SessionSnapshot{UserID: "u", APIKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(&stubFactory{})
			id, h, err := r.Create(context.Background(), tt.snapshot)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperror.KindConfig, apperror.KindOf(err))
				assert.Zero(t, r.Len())
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.NotNil(t, h)
			assert.Equal(t, 1, r.Len())
		})
	}
}

func TestCreate_FillsSnapshot(t *testing.T) {
	r := newRegistry(&stubFactory{})
	id, _, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)

	snap, err := r.Snapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, "assistant_alice", snap.AssistantID)
	assert.False(t, snap.CreatedAt.IsZero())
}

func TestCreate_UniqueIDs(t *testing.T) {
	r := newRegistry(&stubFactory{})
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, _, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCreate_FactoryError(t *testing.T) {
	r := newRegistry(&stubFactory{fail: errors.New("disk full")})
	_, _, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestResolve(t *testing.T) {
	r := newRegistry(&stubFactory{})
	id, h, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)

	first, err := r.Resolve(id)
	require.NoError(t, err)
	second, err := r.Resolve(id)
	require.NoError(t, err)
	assert.Same(t, h, first)
	assert.Same(t, first, second)

	for _, unknown := range []string{"", "nope"} {
		_, err := r.Resolve(unknown)
		assert.ErrorIs(t, err, apperror.ErrNotInitialized)
		assert.True(t, IsNotInitialized(err))
	}
}

func TestClear_ReplacesHandle(t *testing.T) {
	f := &stubFactory{}
	r := newRegistry(f)
	id, h, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)

	require.NoError(t, r.Clear(context.Background(), id))

	got, err := r.Resolve(id)
	require.NoError(t, err)
	assert.NotSame(t, h, got)
	assert.True(t, h.(*stubHandle).tornDown.Load())
	assert.Equal(t, 2, got.(*stubHandle).gen)
}

func TestClear_UnknownSession(t *testing.T) {
	r := newRegistry(&stubFactory{})
	assert.ErrorIs(t, r.Clear(context.Background(), "nope"), apperror.ErrNotInitialized)
}

func TestClear_SnapshotLost(t *testing.T) {
	snaps := memory.NewSnapshotRepository(time.Hour)
	r := New((&stubFactory{}).build, snaps, time.Hour, logger.NewNopLogger())
	id, h, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)
	require.NoError(t, snaps.Delete(context.Background(), id))

	err = r.Clear(context.Background(), id)
	assert.ErrorIs(t, err, apperror.ErrConfigMissing)
	assert.False(t, h.(*stubHandle).tornDown.Load())
}

func TestClear_Serialized(t *testing.T) {
	f := &stubFactory{}
	r := newRegistry(f)
	id, _, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Clear(context.Background(), id))
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Resolve(id)
			assert.NoError(t, err)
			assert.NotNil(t, h)
		}()
	}
	wg.Wait()

	assert.False(t, f.overlap.Load())
	assert.EqualValues(t, 8, f.teardowns.Load())
	assert.Equal(t, 9, f.built)
}

func TestResolve_KeepsSnapshotAlive(t *testing.T) {
	f := &stubFactory{}
	r := New(f.build, nil, 300*time.Millisecond, logger.NewNopLogger())
	id, _, err := r.Create(context.Background(), entity.SessionSnapshot{UserID: "alice", APIKey: "k"})
	require.NoError(t, err)

	for elapsed := time.Duration(0); elapsed < 480*time.Millisecond; elapsed += 60 * time.Millisecond {
		time.Sleep(60 * time.Millisecond)
		_, err := r.Resolve(id)
		require.NoError(t, err)
	}

	snap, err := r.Snapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.UserID)
	assert.NoError(t, r.Clear(context.Background(), id))
}
