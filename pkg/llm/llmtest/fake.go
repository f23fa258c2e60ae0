// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"sync"
	"time"

	"memcontext-be/pkg/llm"
)

type Call struct {
	History []llm.Message
	Options llm.Options
}

// Fake replays canned output. Chunks feed ChatStream, Reply feeds Chat/Generate.
type Fake struct {
	Chunks    []string
	StreamErr error // sent after Chunks
	Reply     string
	ReplyErr  error
	// ReplyDelay makes Chat/Generate wait (respecting ctx) before answering.
	ReplyDelay time.Duration

	mu    sync.Mutex
	calls []Call
}

var _ llm.LLMProvider = (*Fake)(nil)

func (f *Fake) record(history []llm.Message, opts []llm.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{History: history, Options: llm.Apply(llm.Options{}, opts...)})
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	f.record(history, opts)
	if f.ReplyDelay > 0 {
		select {
		case <-time.After(f.ReplyDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.Reply, f.ReplyErr
}

func (f *Fake) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (f *Fake) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan string, <-chan error) {
	f.record(history, opts)
	content := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(content)
		for _, c := range f.Chunks {
			select {
			case content <- c:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if f.StreamErr != nil {
			errc <- f.StreamErr
		}
	}()
	return content, errc
}
