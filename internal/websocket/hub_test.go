package websocket

import (
	"context"
	"testing"
	"time"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) (string, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		return string(msg), ok
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return "", false
}

func TestHub_SendTargetsUser(t *testing.T) {
	h := runHub(t)
	alice := &Client{Hub: h, UserID: "alice", Send: make(chan []byte, 4)}
	bob := &Client{Hub: h, UserID: "bob", Send: make(chan []byte, 4)}
	require.True(t, h.join(alice))
	require.True(t, h.join(bob))

	h.Send(entity.Notification{UserID: "alice", Type: "ingest.completed", Title: "Ingestion finished"})

	msg, ok := receive(t, alice)
	require.True(t, ok)
	assert.Contains(t, msg, `"type":"notification"`)
	assert.Contains(t, msg, `"title":"Ingestion finished"`)

	select {
	case <-bob.Send:
		t.Fatal("bob received alice's notification")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := runHub(t)
	c := &Client{Hub: h, UserID: "alice", Send: make(chan []byte, 1)}
	require.True(t, h.join(c))

	h.Send(entity.Notification{UserID: "alice", Title: "one"})
	h.Send(entity.Notification{UserID: "alice", Title: "two"})

	msg, ok := receive(t, c)
	require.True(t, ok)
	assert.Contains(t, msg, `"one"`)
	_, ok = receive(t, c)
	assert.False(t, ok)
}

func TestHub_JoinAfterStop(t *testing.T) {
	h := NewHub(nil, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, h.join(&Client{Hub: h, UserID: "alice", Send: make(chan []byte, 1)}))
}
