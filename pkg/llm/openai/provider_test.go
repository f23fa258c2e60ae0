package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"memcontext-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]interface{})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
}

func TestProvider_Generate(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]interface{}) {
		assert.Equal(t, "doubao-test", body["model"])
		assert.InDelta(t, 0.1, body["temperature"], 0.0001)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"[\"Sports\"]"},"finish_reason":"stop"}]}`)
	})
	defer srv.Close()

	p := NewProvider("test-key", srv.URL+"/v1", "doubao-test")
	out, err := p.Generate(context.Background(), "pick tags", llm.WithTemperature(0.1))

	require.NoError(t, err)
	assert.Equal(t, `["Sports"]`, out)
}

func TestProvider_ChatStream(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]interface{}) {
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer srv.Close()

	p := NewProvider("test-key", srv.URL+"/v1", "doubao-test")
	chunks, errc := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})

	var got strings.Builder
	for c := range chunks {
		got.WriteString(c)
	}
	assert.NoError(t, <-errc)
	assert.Equal(t, "Hello", got.String())
}

func TestProvider_ChatStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewProvider("test-key", srv.URL+"/v1", "doubao-test")
	chunks, errc := p.ChatStream(context.Background(), nil)

	for range chunks {
		t.Fatal("no content expected")
	}
	assert.Error(t, <-errc)
}
