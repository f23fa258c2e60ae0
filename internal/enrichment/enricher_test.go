package enrichment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"memcontext-be/internal/pkg/logger"
	"memcontext-be/pkg/catalog"
	"memcontext-be/pkg/llm/llmtest"
	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderSpy struct {
	mu    sync.Mutex
	users []string
}

func (r *recorderSpy) RecordInterest(_ context.Context, userID string, _ profile.Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Item{
		{AdID: "shoes", Tags: []string{"sports", "running"}},
		{AdID: "vitamins", Tags: []string{"health"}},
		{AdID: "casino", Tags: []string{"gambling"}},
		{AdID: "flights", Tags: []string{"travel"}},
	}, []string{"sports", "running", "health", "gambling", "travel"}, []string{"gambl"})
}

func ids(items []catalog.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.AdID)
	}
	return out
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    []string
		wantErr bool
	}{
		{"bare array", `["sports", "health"]`, []string{"sports", "health"}, false},
		{"fenced array", "```json\n[\"sports\"]\n```", []string{"sports"}, false},
		{"fenced upper case", "```JSON [\"travel\"] ```", []string{"travel"}, false},
		{"object with tags", `{"tags": ["running"]}`, []string{"running"}, false},
		{"non string entries skipped", `["sports", 3, null]`, []string{"sports"}, false},
		{"empty array", `[]`, []string{}, false},
		{"object without tags", `{"labels": ["x"]}`, nil, true},
		{"prose", "I think sports", nil, true},
		{"blank", "  ", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTags(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	turns := []memcontext.Turn{
		{UserInput: "first", AgentResponse: "one"},
		{UserInput: "second", AgentResponse: "two"},
	}
	tags := profile.Tags{Interests: []string{"Sports"}, PersonalityTraits: []string{"Security"}}

	p := BuildPrompt([]string{"sports"}, tags, "marathon shoes?", turns)

	assert.Contains(t, p, `["sports"]`)
	assert.Contains(t, p, `{"interests":["Sports"],"personality_traits":["Security"]}`)
	assert.Contains(t, p, "User: first\nAI: one\nUser: second\nAI: two\n")
	assert.Contains(t, p, "marathon shoes?")
	assert.Less(t, strings.Index(p, "first"), strings.Index(p, "second"))
}

func TestRecommend(t *testing.T) {
	tags := profile.Tags{Interests: []string{"Sports", "Health"}, PersonalityTraits: []string{}}

	tests := []struct {
		name   string
		client *llmtest.Fake
		input  string
		want   []string
	}{
		{
			name:   "model selection filtered by vocabulary and forbidden words",
			client: &llmtest.Fake{Reply: `["running", "gambling", "yachts", "running"]`},
			input:  "what shoes for a marathon",
			want:   []string{"shoes"},
		},
		{
			name:   "unparseable reply falls back to substring match",
			client: &llmtest.Fake{Reply: "Sure! sports."},
			input:  "planning some travel",
			want:   []string{"shoes", "vitamins", "flights"},
		},
		{
			name:   "call error falls back",
			client: &llmtest.Fake{ReplyErr: errors.New("503")},
			input:  "nothing relevant",
			want:   []string{"shoes", "vitamins"},
		},
		{
			name:   "only invalid tags falls back",
			client: &llmtest.Fake{Reply: `{"tags": ["yachts"]}`},
			input:  "",
			want:   []string{"shoes", "vitamins"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &recorderSpy{}
			e := New(testCatalog(), spy, logger.NewNopLogger(), nil, Config{})

			got := e.Recommend(context.Background(), Request{
				UserID: "alice",
				Tags:   tags,
				Input:  tt.input,
				Client: tt.client,
				Model:  "m",
			})

			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, []string{"alice"}, spy.users)
			calls := tt.client.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, 0.1, calls[0].Options.Temperature)
			assert.Equal(t, "m", calls[0].Options.Model)
		})
	}
}

func TestRecommend_NoDuplicatesAcrossTags(t *testing.T) {
	e := New(testCatalog(), nil, logger.NewNopLogger(), nil, Config{})

	got := e.Recommend(context.Background(), Request{
		UserID: "alice",
		Client: &llmtest.Fake{Reply: `["sports", "running"]`},
	})

	assert.Equal(t, []string{"shoes"}, ids(got))
}

func TestRecommend_WithoutUserID(t *testing.T) {
	client := &llmtest.Fake{Reply: `["sports"]`}
	e := New(testCatalog(), nil, logger.NewNopLogger(), nil, Config{})

	got := e.Recommend(context.Background(), Request{Client: client})

	assert.Empty(t, got)
	assert.Empty(t, client.Calls())
}

func TestRecommend_InnerTimeout(t *testing.T) {
	client := &llmtest.Fake{Reply: `["travel"]`, ReplyDelay: time.Second}
	e := New(testCatalog(), nil, logger.NewNopLogger(), nil, Config{LLMTimeout: 20 * time.Millisecond})

	start := time.Now()
	got := e.Recommend(context.Background(), Request{UserID: "alice", Input: "running", Client: client})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"shoes"}, ids(got))
}

func TestFallbackLimit(t *testing.T) {
	vocab := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	e := New(catalog.New(nil, vocab, nil), nil, logger.NewNopLogger(), nil, Config{})

	got := e.fallback(Request{Input: "a1 a2 a3 a4 a5 a6 a7"})
	assert.Len(t, got, DefaultFallbackLimit)
}
