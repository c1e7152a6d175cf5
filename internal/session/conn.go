package session

import "context"

// FrameType distinguishes text (JSON) from binary (audio) frames.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

// Conn is the transport the engine speaks over. The server wraps a
// websocket in this interface; tests use an in-memory fake.
type Conn interface {
	// Read blocks until the next frame arrives.
	Read(ctx context.Context) (FrameType, []byte, error)

	// WriteJSON serializes v and writes it as one text frame.
	WriteJSON(ctx context.Context, v any) error
}
