package wire

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a gorilla/websocket connection and restricts traffic to
// the envelope protocol: every application message is exactly one
// binary frame. Text, ping, pong, and empty frames are ignored, per
// spec.
type Conn struct {
	ws *websocket.Conn
}

// NewConn adopts an already-established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadEnvelope blocks for the next binary frame and decodes it. It
// silently skips text frames and empty binary frames (ping/pong are
// handled by gorilla's internal control-frame machinery before reaching
// here). ctx is checked only before each read; a read that is already
// blocked is not interrupted by cancellation, only by a read deadline
// (SetReadDeadline) or by closing the connection.
func (c *Conn) ReadEnvelope(ctx context.Context) (*Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}
		return Decode(data)
	}
}

// SetReadDeadline bounds the next call to ReadEnvelope, the reliable
// way to enforce a session heartbeat timeout: unlike ctx cancellation,
// a read deadline actually interrupts a blocked read.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// WriteEnvelope encodes and sends payload as a single binary frame.
func (c *Conn) WriteEnvelope(op OpCode, payload any) error {
	frame, err := Encode(op, payload)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Close closes the underlying connection with the given close code and
// reason, best-effort.
func (c *Conn) Close(code int, reason string) error {
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return c.ws.Close()
}

// CloseWithError sends a terminal InvalidSession envelope describing
// code, then closes the connection. This is the coordinator's single
// exit path for every protocol-level error in spec.md §7; the worker
// only receives InvalidSession and never sends it.
func (c *Conn) CloseWithError(code ErrorCode) error {
	payload := code.Populate()
	writeErr := c.WriteEnvelope(OpInvalidSession, payload)
	closeErr := c.Close(websocket.CloseNormalClosure, string(code))
	if writeErr != nil {
		return fmt.Errorf("wire: send InvalidSession(%s): %w", code, writeErr)
	}
	return closeErr
}
