package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robilabs/robi/internal/motion"
)

func TestParseClientAuth(t *testing.T) {
	msg, err := ParseClient([]byte(`{"type":"auth","api_key":"secret","device_id":"robi-01"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeAuth, msg.Type)
	assert.Equal(t, "secret", msg.APIKey)
	assert.Equal(t, "robi-01", msg.DeviceID)
}

func TestParseClientText(t *testing.T) {
	msg, err := ParseClient([]byte(`{"type":"text","request_id":"r1","content":"hola"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeText, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, "hola", msg.Content)
}

func TestParseClientRejectsInvalidJSON(t *testing.T) {
	_, err := ParseClient([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestParseClientRejectsMissingType(t *testing.T) {
	_, err := ParseClient([]byte(`{"content":"hola"}`))
	assert.Error(t, err)
}

func TestResponseMetaDefaults(t *testing.T) {
	meta := NewResponseMeta("r1", "hola", nil, nil, "")
	assert.Equal(t, TypeResponseMeta, meta.Type)
	assert.Equal(t, DefaultEmojiDurationMS, meta.Expression.DurationPerEmoji)
	assert.Equal(t, DefaultTransition, meta.Expression.Transition)

	// Nil slices must serialize as [] so clients can iterate blindly.
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"emojis":[]`)
	assert.Contains(t, string(data), `"actions":[]`)
}

func TestResponseMetaCarriesActions(t *testing.T) {
	seq := motion.BuildMoveSequence("wave", []string{"wave"})
	meta := NewResponseMeta("r1", "hola", []string{"1F600"}, []motion.Sequence{seq}, "Ana")
	require.Len(t, meta.Actions, 1)
	assert.Equal(t, "wave", meta.Actions[0].Label)
	assert.Equal(t, "Ana", meta.PersonName)
}

func TestErrorMessageShape(t *testing.T) {
	em := NewError("r9", CodeEmptyAudio, "no audio received", true)
	data, err := json.Marshal(em)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "EMPTY_AUDIO", out["error_code"])
	assert.Equal(t, true, out["recoverable"])
	assert.Equal(t, "r9", out["request_id"])
}

func TestErrorMessageOmitsEmptyRequestID(t *testing.T) {
	em := NewError("", CodeAuthFailed, "invalid api key", false)
	data, err := json.Marshal(em)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "request_id")
}

func TestNewSessionIDUnique(t *testing.T) {
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}
