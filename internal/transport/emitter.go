// Package transport writes stream frames to a client. The same frame sequence
// can go out as Server-Sent Events or as WebSocket text messages.
package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Emitter delivers one frame. An error means the client is gone.
type Emitter interface {
	Emit(frame interface{}) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(frame interface{}) error

func (f EmitterFunc) Emit(frame interface{}) error { return f(frame) }

// Encode renders frame as compact JSON without HTML escaping.
func Encode(frame interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frame); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SSEWriter frames every event as "data: <json>\n\n" and flushes immediately.
type SSEWriter struct {
	w *bufio.Writer
}

func NewSSEWriter(w *bufio.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

func (s *SSEWriter) Emit(frame interface{}) error {
	payload, err := Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.w.Flush()
}

// SetSSEHeaders prepares a Fiber response for an event stream.
func SetSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// WSWriter sends every event as one JSON text message.
type WSWriter struct {
	conn *websocket.Conn
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (ws *WSWriter) Emit(frame interface{}) error {
	payload, err := Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return ws.conn.WriteMessage(websocket.TextMessage, payload)
}
