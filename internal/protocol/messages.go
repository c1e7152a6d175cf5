// Package protocol defines the JSON messages exchanged over the /ws/interact
// duplex connection and helpers to build and parse them. Client messages are
// dispatched on their "type" field; server messages are plain structs
// serialized once and written as text frames.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/robilabs/robi/internal/motion"
)

// Client message types.
const (
	TypeAuth             = "auth"
	TypeInteractionStart = "interaction_start"
	TypeText             = "text"
	TypeAudioEnd         = "audio_end"
	TypeImage            = "image"
	TypeVideo            = "video"
	TypeMultimodal       = "multimodal"
	TypeExploreMode      = "explore_mode"
	TypeFaceScanMode     = "face_scan_mode"
	TypeZoneUpdate       = "zone_update"
	TypePersonDetected   = "person_detected"
)

// Server message types.
const (
	TypeAuthOk             = "auth_ok"
	TypeEmotion            = "emotion"
	TypeTextChunk          = "text_chunk"
	TypeResponseMeta       = "response_meta"
	TypeStreamEnd          = "stream_end"
	TypeError              = "error"
	TypeCaptureRequest     = "capture_request"
	TypeExplorationActions = "exploration_actions"
	TypeFaceScanActions    = "face_scan_actions"
	TypeLowBatteryAlert    = "low_battery_alert"
)

// ClientMessage is the union of all client→server JSON messages. Only the
// fields relevant to each Type are populated.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// auth
	APIKey   string `json:"api_key,omitempty"`
	DeviceID string `json:"device_id,omitempty"`

	// interaction_start
	PersonID      string  `json:"person_id,omitempty"`
	FaceEmbedding string  `json:"face_embedding,omitempty"` // base64 vector
	Confidence    float64 `json:"confidence,omitempty"`

	// text / multimodal
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`

	// image / video / multimodal (base64 payloads)
	Data      string `json:"data,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Image     string `json:"image,omitempty"`
	Video     string `json:"video,omitempty"`
	MIME      string `json:"mime,omitempty"`
	AudioMIME string `json:"audio_mime,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`
	VideoMIME string `json:"video_mime,omitempty"`

	// explore_mode
	DurationMinutes int `json:"duration_minutes,omitempty"`

	// zone_update
	ZoneName string `json:"zone_name,omitempty"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"` // enter | leave | discover

	// person_detected
	Known bool `json:"known,omitempty"`
}

// ParseClient decodes a client JSON message. The type field must be present;
// everything else is validated by the dispatching engine.
func ParseClient(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: invalid JSON: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: message has no type")
	}
	return &msg, nil
}

// NewSessionID generates a UUIDv4 for session and fallback request ids.
func NewSessionID() string {
	return uuid.NewString()
}

// Expression is the emoji payload inside response_meta.
type Expression struct {
	Emojis           []string `json:"emojis"`
	DurationPerEmoji int      `json:"duration_per_emoji"`
	Transition       string   `json:"transition"`
}

// Expression defaults.
const (
	DefaultEmojiDurationMS = 2000
	DefaultTransition      = "bounce"
)

// AuthOk confirms a successful authentication handshake.
type AuthOk struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Emotion is sent before any text so the client face updates immediately.
type Emotion struct {
	Type             string  `json:"type"`
	RequestID        string  `json:"request_id"`
	Emotion          string  `json:"emotion"`
	PersonIdentified string  `json:"person_identified,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// TextChunk is one fragment of streamed response text.
type TextChunk struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
}

// ResponseMeta bundles the full response once streaming finishes.
type ResponseMeta struct {
	Type         string            `json:"type"`
	RequestID    string            `json:"request_id"`
	ResponseText string            `json:"response_text"`
	Expression   Expression        `json:"expression"`
	Actions      []motion.Sequence `json:"actions"`
	PersonName   string            `json:"person_name,omitempty"`
}

// StreamEnd closes one response cycle.
type StreamEnd struct {
	Type             string `json:"type"`
	RequestID        string `json:"request_id"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

// ErrorMessage reports a protocol or turn failure to the client.
type ErrorMessage struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id,omitempty"`
	ErrorCode   string `json:"error_code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// CaptureRequest asks the client to take a photo or record a video.
type CaptureRequest struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id"`
	CaptureType string `json:"capture_type"` // photo | video
}

// ExplorationActions carries movement plus speech for autonomous exploration.
type ExplorationActions struct {
	Type              string            `json:"type"`
	RequestID         string            `json:"request_id"`
	Actions           []motion.Sequence `json:"actions"`
	ExplorationSpeech string            `json:"exploration_speech"`
}

// FaceScanActions carries the primitive sweep for active face scanning.
type FaceScanActions struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id"`
	Actions   []motion.Sequence `json:"actions"`
}

// LowBatteryAlert notifies the client about a low battery condition. It is
// part of the protocol for completeness; the engine does not currently
// originate it.
type LowBatteryAlert struct {
	Type         string `json:"type"`
	BatteryLevel int    `json:"battery_level"`
	Source       string `json:"source"` // robot | phone
}
