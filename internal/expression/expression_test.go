package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmotionEmojis(t *testing.T) {
	assert.Equal(t, []string{"1F600", "1F60A"}, EmotionEmojis("happy"))
	assert.Equal(t, []string{"1F600", "1F60A"}, EmotionEmojis("HAPPY"))
	assert.Equal(t, []string{"1F642"}, EmotionEmojis("neutral"))
	assert.Equal(t, []string{"1F642"}, EmotionEmojis("no-such-emotion"))
}

func TestEmotionEmojisReturnsCopy(t *testing.T) {
	first := EmotionEmojis("happy")
	first[0] = "mutated"
	assert.Equal(t, []string{"1F600", "1F60A"}, EmotionEmojis("happy"))
}

func TestCombineContextualLeads(t *testing.T) {
	got := Combine([]string{"1F355", "1F37D"}, "happy")
	assert.Equal(t, []string{"1F355", "1F37D", "1F600", "1F60A"}, got)
}

func TestCombineWithoutContextual(t *testing.T) {
	assert.Equal(t, []string{"1F622", "1F494"}, Combine(nil, "sad"))
}

func TestCombineCapsEmotionFallback(t *testing.T) {
	got := Combine([]string{"1F355"}, "greeting")
	// At most two emotion emojis are appended after contextual codes.
	assert.Len(t, got, 3)
	assert.Equal(t, "1F355", got[0])
}
