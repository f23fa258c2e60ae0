package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memcontext-be/internal/enrichment"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/transport"
	"memcontext-be/internal/worker"
	"memcontext-be/pkg/catalog"
	"memcontext-be/pkg/llm"
	"memcontext-be/pkg/llm/llmtest"
	"memcontext-be/pkg/memcontext"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	memcontext.Handle
	client  *llmtest.Fake
	profile string
	turns   []memcontext.Turn
}

func (h *fakeHandle) UserID() string                      { return "alice" }
func (h *fakeHandle) Model() string                       { return "m" }
func (h *fakeHandle) Client() llm.LLMProvider             { return h.client }
func (h *fakeHandle) UserProfile() string                 { return h.profile }
func (h *fakeHandle) RecentTurns(n int) []memcontext.Turn { return h.turns }
func (h *fakeHandle) ResponseStream(ctx context.Context, input string) (<-chan string, <-chan error) {
	return h.client.ChatStream(ctx, []llm.Message{{Role: llm.RoleUser, Content: input}})
}

type recommenderFunc func(ctx context.Context, req enrichment.Request) []catalog.Item

func (f recommenderFunc) Recommend(ctx context.Context, req enrichment.Request) []catalog.Item {
	return f(ctx, req)
}

type recorder struct {
	mu     sync.Mutex
	frames []string
	failAt int // fail the n-th emit (1-based), 0 never
}

func (r *recorder) Emit(frame interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.frames)+1 == r.failAt {
		return errors.New("broken pipe")
	}
	b, err := transport.Encode(frame)
	if err != nil {
		return err
	}
	r.frames = append(r.frames, string(b))
	return nil
}

func newPool(t *testing.T, size, queue int) *worker.Pool {
	t.Helper()
	p := worker.NewPool(worker.Config{Size: size, QueueSize: queue}, logger.NewNopLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func items(ids ...string) []catalog.Item {
	var out []catalog.Item
	for _, id := range ids {
		out = append(out, catalog.Item{AdID: id, Title: id, Tags: []string{"sports"}})
	}
	return out
}

func TestRun_OrderingWithAdvertise(t *testing.T) {
	rec := recommenderFunc(func(context.Context, enrichment.Request) []catalog.Item { return items("a1") })
	o := NewOrchestrator(newPool(t, 2, 4), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{}

	err := o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{Chunks: []string{"Hel", "lo"}}},
		UserID:  "alice",
		Message: "hi",
	}, out)

	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"response":"Hel"}`,
		`{"response":"lo"}`,
		`{"text_done":true}`,
		`{"advertise":[{"ad_id":"a1","title":"a1","tags":["sports"]}]}`,
		`{"done":true}`,
	}, out.frames)
}

func TestRun_EnrichmentTimeout(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	rec := recommenderFunc(func(context.Context, enrichment.Request) []catalog.Item {
		defer close(finished)
		<-release
		return items("late")
	})
	deadline := 50 * time.Millisecond
	o := NewOrchestrator(newPool(t, 1, 1), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: deadline})
	out := &recorder{}

	start := time.Now()
	err := o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{Chunks: []string{"x"}}},
		UserID:  "alice",
		Message: "hi",
	}, out)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, []string{`{"response":"x"}`, `{"text_done":true}`, `{"done":true}`}, out.frames)
	assert.Less(t, elapsed, deadline+400*time.Millisecond)

	// The task was not cancelled; it completes once released.
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("enrichment task did not keep running")
	}
}

func TestRun_GenerationError(t *testing.T) {
	rec := recommenderFunc(func(context.Context, enrichment.Request) []catalog.Item { return items("a1") })
	o := NewOrchestrator(newPool(t, 1, 1), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{}

	err := o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{Chunks: []string{"par"}, StreamErr: errors.New("model overloaded")}},
		UserID:  "alice",
		Message: "hi",
	}, out)

	assert.Error(t, err)
	assert.Equal(t, []string{`{"response":"par"}`, `{"error":"model overloaded"}`}, out.frames)
}

func TestRun_EmptyEnrichmentOmitsAdvertise(t *testing.T) {
	rec := recommenderFunc(func(context.Context, enrichment.Request) []catalog.Item { return nil })
	o := NewOrchestrator(newPool(t, 1, 1), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{}

	require.NoError(t, o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{}},
		UserID:  "alice",
		Message: "hi",
	}, out))

	assert.Equal(t, []string{`{"text_done":true}`, `{"done":true}`}, out.frames)
}

func TestRun_SaturatedPoolDegrades(t *testing.T) {
	pool := newPool(t, 1, 1)
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	require.NoError(t, pool.Go(func() { close(started); <-block }))
	<-started
	require.NoError(t, pool.Go(func() { <-block }))

	rec := recommenderFunc(func(context.Context, enrichment.Request) []catalog.Item { return items("a1") })
	o := NewOrchestrator(pool, rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{}

	require.NoError(t, o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{Chunks: []string{"ok"}}},
		UserID:  "alice",
		Message: "hi",
	}, out))

	assert.Equal(t, []string{`{"response":"ok"}`, `{"text_done":true}`, `{"done":true}`}, out.frames)
}

func TestRun_ClientGoneKeepsEnrichmentRunning(t *testing.T) {
	finished := make(chan struct{})
	rec := recommenderFunc(func(ctx context.Context, _ enrichment.Request) []catalog.Item {
		defer close(finished)
		time.Sleep(30 * time.Millisecond)
		assert.NoError(t, ctx.Err())
		return items("a1")
	})
	o := NewOrchestrator(newPool(t, 1, 1), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{failAt: 2}

	err := o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: &llmtest.Fake{Chunks: []string{"a", "b", "c"}}},
		UserID:  "alice",
		Message: "hi",
	}, out)

	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, []string{`{"response":"a"}`}, out.frames)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("enrichment was cancelled with the client")
	}
}

func TestRun_DerivedTagsReachEnrichment(t *testing.T) {
	got := make(chan enrichment.Request, 1)
	rec := recommenderFunc(func(_ context.Context, req enrichment.Request) []catalog.Item {
		got <- req
		return nil
	})
	o := NewOrchestrator(newPool(t, 1, 1), rec, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	turns := []memcontext.Turn{{UserInput: "before", AgentResponse: "reply"}}

	require.NoError(t, o.Run(context.Background(), Turn{
		Handle: &fakeHandle{
			client:  &llmtest.Fake{Chunks: []string{"ok"}},
			profile: "Sports Interest (High)\nHealth Concern (Medium)",
			turns:   turns,
		},
		UserID:  "alice",
		Message: "what shoes for a marathon",
	}, &recorder{}))

	req := <-got
	assert.Equal(t, "alice", req.UserID)
	assert.Equal(t, []string{"Sports", "Health"}, req.Tags.Interests)
	assert.Equal(t, "what shoes for a marathon", req.Input)
	assert.Equal(t, turns, req.RecentTurns)
	assert.Equal(t, "m", req.Model)
}

func TestRun_WithRealEnricher(t *testing.T) {
	cat := catalog.New([]catalog.Item{
		{AdID: "shoes", Title: "Trail Shoes", Tags: []string{"sports"}},
		{AdID: "novel", Title: "Novel", Tags: []string{"books"}},
	}, []string{"sports", "health", "books"}, nil)
	e := enrichment.New(cat, nil, logger.NewNopLogger(), nil, enrichment.Config{})
	o := NewOrchestrator(newPool(t, 2, 2), e, logger.NewNopLogger(), nil, Config{EnrichmentDeadline: time.Second})
	out := &recorder{}

	client := &llmtest.Fake{Chunks: []string{"Try ", "trail shoes."}, Reply: "```json\n[\"sports\", \"health\"]\n```"}
	require.NoError(t, o.Run(context.Background(), Turn{
		Handle:  &fakeHandle{client: client, profile: "Sports Interest (High)"},
		UserID:  "alice",
		Message: "what shoes for a marathon",
	}, out))

	require.Len(t, out.frames, 5)
	assert.Equal(t, `{"text_done":true}`, out.frames[2])
	assert.Contains(t, out.frames[3], `"ad_id":"shoes"`)
	assert.NotContains(t, out.frames[3], `"novel"`)
	assert.Equal(t, `{"done":true}`, out.frames[4])
}
