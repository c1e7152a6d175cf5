// Package llm abstracts the language model backends that drive the robot's
// conversation. Responses stream token by token; the session layer feeds
// them through the tag decoder as they arrive.
package llm

import "context"

// Message roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one piece of a message. Text and inline binary data (images,
// audio, video) can be mixed in a single message.
type Part struct {
	Text string
	Data []byte
	MIME string
}

// Message is one turn of conversation context.
type Message struct {
	Role  string
	Parts []Part
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Request is a generation request. Messages are ordered oldest first; the
// last message is the current user turn.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
}

// Stream yields response text fragments. Next returns io.EOF when the
// model is done. Close releases the underlying connection and is safe to
// call more than once.
type Stream interface {
	Next() (string, error)
	Close()
}

// Provider generates responses. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Stream starts a streaming generation.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Complete runs a non-streaming generation and returns the full text.
	// Used for history compaction summaries.
	Complete(ctx context.Context, req *Request) (string, error)
}
