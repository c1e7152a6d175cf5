package protocol

import "github.com/robilabs/robi/internal/motion"

// Error codes emitted by the engine.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeAuthTimeout      = "AUTH_TIMEOUT"
	CodeInvalidMessage   = "INVALID_MESSAGE"
	CodeEmptyAudio       = "EMPTY_AUDIO"
	CodeLLMUnavailable   = "LLM_UNAVAILABLE"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeMessageTooLarge  = "MESSAGE_TOO_LARGE"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"
	CodeSessionNotActive = "SESSION_NOT_ACTIVE"
)

func NewAuthOk(sessionID string) AuthOk {
	return AuthOk{Type: TypeAuthOk, SessionID: sessionID}
}

func NewEmotion(requestID, emotion string) Emotion {
	return Emotion{Type: TypeEmotion, RequestID: requestID, Emotion: emotion}
}

// NewEmotionWithPerson attaches the identified person to the emotion frame so
// the client can greet by name before any text arrives.
func NewEmotionWithPerson(requestID, emotion, personName string, confidence float64) Emotion {
	return Emotion{
		Type:             TypeEmotion,
		RequestID:        requestID,
		Emotion:          emotion,
		PersonIdentified: personName,
		Confidence:       confidence,
	}
}

func NewTextChunk(requestID, text string) TextChunk {
	return TextChunk{Type: TypeTextChunk, RequestID: requestID, Text: text}
}

func NewResponseMeta(requestID, responseText string, emojis []string, actions []motion.Sequence, personName string) ResponseMeta {
	if emojis == nil {
		emojis = []string{}
	}
	if actions == nil {
		actions = []motion.Sequence{}
	}
	return ResponseMeta{
		Type:         TypeResponseMeta,
		RequestID:    requestID,
		ResponseText: responseText,
		Expression: Expression{
			Emojis:           emojis,
			DurationPerEmoji: DefaultEmojiDurationMS,
			Transition:       DefaultTransition,
		},
		Actions:    actions,
		PersonName: personName,
	}
}

func NewStreamEnd(requestID string, processingMS int64) StreamEnd {
	return StreamEnd{Type: TypeStreamEnd, RequestID: requestID, ProcessingTimeMS: processingMS}
}

func NewError(requestID, code, message string, recoverable bool) ErrorMessage {
	return ErrorMessage{
		Type:        TypeError,
		RequestID:   requestID,
		ErrorCode:   code,
		Message:     message,
		Recoverable: recoverable,
	}
}

func NewCaptureRequest(requestID, captureType string) CaptureRequest {
	return CaptureRequest{Type: TypeCaptureRequest, RequestID: requestID, CaptureType: captureType}
}

func NewExplorationActions(requestID string, actions []motion.Sequence, speech string) ExplorationActions {
	if actions == nil {
		actions = []motion.Sequence{}
	}
	return ExplorationActions{
		Type:              TypeExplorationActions,
		RequestID:         requestID,
		Actions:           actions,
		ExplorationSpeech: speech,
	}
}

func NewFaceScanActions(requestID string, actions []motion.Sequence) FaceScanActions {
	if actions == nil {
		actions = []motion.Sequence{}
	}
	return FaceScanActions{Type: TypeFaceScanActions, RequestID: requestID, Actions: actions}
}

func NewLowBatteryAlert(level int, source string) LowBatteryAlert {
	return LowBatteryAlert{Type: TypeLowBatteryAlert, BatteryLevel: level, Source: source}
}
