package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robilabs/robi/internal/tags"
	"github.com/robilabs/robi/pkg/types"
)

func TestSystemPromptInjectsContext(t *testing.T) {
	prompt := SystemPrompt(PromptContext{
		PersonName:  "Ana",
		Memories:    []*types.Memory{{Content: "le gusta el ajedrez"}},
		CurrentZone: "cocina",
		KnownZones:  []string{"cocina", "salón"},
	})

	assert.Contains(t, prompt, "[emotion:TAG]")
	assert.Contains(t, prompt, "Estás hablando con Ana")
	assert.Contains(t, prompt, "le gusta el ajedrez")
	assert.Contains(t, prompt, "estás en cocina")
	assert.Contains(t, prompt, "cocina, salón")
}

func TestSystemPromptExamplesMatchTagGrammar(t *testing.T) {
	prompt := SystemPrompt(PromptContext{})

	// The emoji example must use the comma separator the tag parser splits
	// on; a pipe would teach the model to emit one glued code.
	assert.Contains(t, prompt, "[emojis:1F600,2764]")
	assert.NotContains(t, prompt, "[emojis:1F600|2764]")

	codes, _, ok := tags.ParseEmojisTag("[emojis:1F600,2764]")
	assert.True(t, ok)
	assert.Equal(t, []string{"1F600", "2764"}, codes)
}

func TestSystemPromptBareWithoutContext(t *testing.T) {
	prompt := SystemPrompt(PromptContext{})
	assert.NotContains(t, prompt, "CONTEXTO")
	assert.NotContains(t, prompt, "LO QUE RECUERDAS")
}

func TestCompactionPromptListsMessages(t *testing.T) {
	prompt := CompactionPrompt([]*types.ConversationMessage{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "buenas"},
	})
	assert.Contains(t, prompt, "user: hola")
	assert.Contains(t, prompt, "assistant: buenas")
}
