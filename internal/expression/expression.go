// Package expression maps emotion tags to the OpenMoji codes the client face
// renders between spoken responses.
package expression

import "strings"

// emotionEmojis is the default expression per emotion tag. Codes are OpenMoji
// Unicode identifiers.
var emotionEmojis = map[string][]string{
	"happy":     {"1F600", "1F60A"},
	"excited":   {"1F929", "1F389"},
	"sad":       {"1F622", "1F494"},
	"empathy":   {"1F97A", "1FAC2"},
	"confused":  {"1F615", "1F914"},
	"surprised": {"1F632", "1F62E"},
	"love":      {"1F60D", "2764"},
	"cool":      {"1F60E"},
	"greeting":  {"1F44B", "1F916"},
	"neutral":   {"1F642"},
	"curious":   {"1F9D0", "1F50D"},
	"worried":   {"1F61F"},
	"playful":   {"1F61B", "1F939"},
}

// EmotionEmojis returns the default emoji codes for an emotion tag.
// Unknown tags fall back to the neutral expression.
func EmotionEmojis(tag string) []string {
	if codes, ok := emotionEmojis[strings.ToLower(tag)]; ok {
		out := make([]string, len(codes))
		copy(out, codes)
		return out
	}
	return EmotionEmojis("neutral")
}

// Combine merges the contextual emojis suggested by the model with the
// default emotion expression: contextual codes lead, followed by up to two
// emotion emojis as a visual fallback. Without contextual codes the emotion
// set stands alone.
func Combine(contextual []string, emotion string) []string {
	defaults := EmotionEmojis(emotion)
	if len(contextual) == 0 {
		return defaults
	}
	if len(defaults) > 2 {
		defaults = defaults[:2]
	}
	return append(append([]string{}, contextual...), defaults...)
}
