package tags

import (
	"strings"
	"unicode/utf8"
)

// MaxHeaderBuffer caps the header accumulation buffer. If the backend never
// closes a tag, the decoder gives up at this size and treats the buffer as
// plain text, guaranteeing forward progress.
const MaxHeaderBuffer = 500

// mediaSummaryOpen is the media summary opening marker.
const mediaSummaryOpen = "[media_summary:"

// bodyMarkers are the inline tags the body phase strips out of the text
// stream. None of them may ever reach a text event.
var bodyMarkers = []string{
	mediaSummaryOpen,
	"[memory:",
	"[person_name:",
	"[zone_learn:",
}

// bodyHoldback is the trailing margin the body phase keeps pending: the
// longest marker could still be arriving one byte at a time.
var bodyHoldback = func() int {
	max := 0
	for _, m := range bodyMarkers {
		if len(m) > max {
			max = len(m)
		}
	}
	return max
}()

// EventKind discriminates decoder events.
type EventKind int

// Decoder event kinds.
const (
	// EventEmotion is emitted exactly once per stream, before any text,
	// carrying the resolved emotion tag.
	EventEmotion EventKind = iota
	// EventText carries decoded natural-language text safe to forward to
	// the client. Control tags never appear in EventText payloads.
	EventText
)

// Event is one decoder output. Concatenating every EventText payload yields
// the full visible response regardless of how the input was chunked.
type Event struct {
	Kind    EventKind
	Emotion string
	Text    string
}

// Decoder is the chunk-boundary-safe streaming tag decoder. It runs in two
// phases: while the header tags (emotion, emojis, actions) are unresolved it
// accumulates input; afterwards it forwards text immediately, stripping
// inline control tags (media_summary and the side-effect directives) and
// holding back only the trailing margin that could still be the start of
// one. Feed it fragments as they arrive and call Finish exactly once at end
// of stream.
//
// A Decoder serves one response stream and is not safe for concurrent use.
type Decoder struct {
	header          string
	pending         string
	emotion         string
	emojis          []string
	actionSteps     []string
	mediaSummary    string
	directives      []Directive
	emotionResolved bool
	finished        bool
}

// NewDecoder returns a decoder ready for the first fragment.
func NewDecoder() *Decoder {
	return &Decoder{emotion: NeutralEmotion}
}

// Emotion returns the resolved emotion tag. Valid once the EventEmotion has
// been emitted (NeutralEmotion before that).
func (d *Decoder) Emotion() string { return d.emotion }

// Emojis returns the codes from the [emojis:...] header tag, if any.
func (d *Decoder) Emojis() []string { return d.emojis }

// ActionSteps returns the raw steps from the [actions:...] header tag, if any.
func (d *Decoder) ActionSteps() []string { return d.actionSteps }

// MediaSummary returns the content of the [media_summary:...] tag, or "" when
// the stream carried none.
func (d *Decoder) MediaSummary() string { return d.mediaSummary }

// Directives returns the side-effect directives stripped from the body, in
// stream order. Complete after Finish.
func (d *Decoder) Directives() []Directive { return d.directives }

// Feed consumes the next fragment and returns zero or more events.
func (d *Decoder) Feed(chunk string) []Event {
	if chunk == "" || d.finished {
		return nil
	}

	if !d.emotionResolved {
		d.header += chunk
		return d.tryResolveHeader(len(d.header) >= MaxHeaderBuffer)
	}
	return d.feedBody(chunk)
}

// Finish flushes all remaining state at end of stream. The emotion event is
// emitted here if the stream ended before the header resolved (including the
// empty stream, which yields a neutral emotion and no text).
func (d *Decoder) Finish() []Event {
	if d.finished {
		return nil
	}
	d.finished = true

	var events []Event
	if !d.emotionResolved {
		events = d.tryResolveHeader(true)
	}
	events = append(events, d.flushPending()...)
	return events
}

// tryResolveHeader attempts the ordered header parse (emotion, then emojis,
// then actions) over the accumulated buffer. It returns nil while a leading
// tag could still be completing, unless force is set, in which case whatever
// remains is demoted to plain text.
func (d *Decoder) tryResolveHeader(force bool) []Event {
	buf := d.header

	// Nothing closed yet and room to grow: keep accumulating.
	if !force && !strings.Contains(buf, "]") {
		return nil
	}

	emotion, rest, _ := ParseEmotionTag(buf)
	if wait, done := d.headerStage(rest, force); wait {
		return nil
	} else if done {
		return d.resolveHeader(emotion, rest)
	}

	if emojis, r, ok := ParseEmojisTag(rest); ok {
		d.emojis = emojis
		rest = r
	}
	if wait, done := d.headerStage(rest, force); wait {
		return nil
	} else if done {
		return d.resolveHeader(emotion, rest)
	}

	if steps, r, ok := ParseActionsTag(rest); ok {
		d.actionSteps = steps
		rest = r
	}
	if wait, _ := d.headerStage(rest, force); wait {
		return nil
	}

	return d.resolveHeader(emotion, rest)
}

// headerStage inspects the text remaining after one parse stage. wait means
// the stage is inconclusive and more input is needed; done means the header
// is complete and rest is body text.
func (d *Decoder) headerStage(rest string, force bool) (wait, done bool) {
	if rest == "" {
		if force {
			return false, true
		}
		// Tags consumed everything so far; the next chunk may open
		// another header tag.
		return true, false
	}
	if strings.HasPrefix(rest, "[") && !strings.Contains(rest, "]") {
		if force {
			return false, true
		}
		// A tag is open but not yet closed.
		return true, false
	}
	return false, false
}

// resolveHeader finalizes the header phase: records the emotion, emits the
// emotion event and routes any leftover text into the body phase. Whitespace
// separating the header tags from the body is dropped here, which keeps the
// visible text independent of how the stream was chunked.
func (d *Decoder) resolveHeader(emotion, rest string) []Event {
	d.emotion = emotion
	d.emotionResolved = true
	d.header = ""

	events := []Event{{Kind: EventEmotion, Emotion: emotion}}
	if rest = strings.TrimLeft(rest, " \t\r\n"); rest != "" {
		events = append(events, d.feedBody(rest)...)
	}
	return events
}

// feedBody implements the streaming-forward phase: flush everything that can
// no longer be part of an inline control tag, consume every closed tag, keep
// the rest pending.
func (d *Decoder) feedBody(chunk string) []Event {
	d.pending += chunk

	var events []Event
	for {
		pos, marker := firstMarker(d.pending)
		if pos < 0 {
			break
		}
		// Whitespace abutting a tag belongs to the tag, not the text.
		if before := strings.TrimRight(d.pending[:pos], " \t\r\n"); before != "" {
			events = append(events, Event{Kind: EventText, Text: before})
		}
		d.pending = d.pending[pos:]

		close := strings.Index(d.pending[len(marker):], "]")
		if close < 0 {
			// Tag open but unclosed: hold everything until it closes or
			// the stream ends.
			return events
		}
		end := len(marker) + close
		d.consumeTag(marker, d.pending[len(marker):end])
		d.pending = d.pending[end+1:]
		if marker == mediaSummaryOpen {
			// The summary usually precedes the body; the separating
			// whitespace is part of the tag, not the text.
			d.pending = strings.TrimLeft(d.pending, " \t\r\n")
		}
	}

	safe := len(d.pending) - bodyHoldback
	// Trailing whitespace stays pending with the marker margin: it may
	// belong to a tag that has not arrived yet.
	for safe > 0 && isTagSpace(d.pending[safe-1]) {
		safe--
	}
	// Never split a multi-byte rune across two text events.
	for safe > 0 && !utf8.RuneStart(d.pending[safe]) {
		safe--
	}
	if safe <= 0 {
		return events
	}
	out := d.pending[:safe]
	d.pending = d.pending[safe:]
	return append(events, Event{Kind: EventText, Text: out})
}

// firstMarker returns the earliest body-marker occurrence in s, or (-1, "").
// The markers are lowercase ASCII, so the case fold is byte-local and the
// returned offset always indexes s itself. Lowering the whole buffer would
// not: ToLower changes the byte length of some runes.
func firstMarker(s string) (int, string) {
	best, found := -1, ""
	for _, m := range bodyMarkers {
		if i := asciiIndexFold(s, m); i >= 0 && (best < 0 || i < best) {
			best, found = i, m
		}
	}
	return best, found
}

// asciiIndexFold is strings.Index with ASCII-only case folding applied to s.
// sub must be lowercase ASCII.
func asciiIndexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		j := 0
		for j < len(sub) {
			c := s[i+j]
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != sub[j] {
				break
			}
			j++
		}
		if j == len(sub) {
			return i
		}
	}
	return -1
}

// isTagSpace reports whether b is one of the whitespace bytes that the
// decoder treats as belonging to an adjacent tag.
func isTagSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// consumeTag records the payload of one closed inline tag.
func (d *Decoder) consumeTag(marker, payload string) {
	payload = strings.TrimSpace(payload)
	switch marker {
	case mediaSummaryOpen:
		d.mediaSummary = payload
	case "[memory:":
		if fields := splitFields(payload, 2); fields != nil {
			d.directives = append(d.directives, Directive{Kind: DirectiveMemory, Fields: fields})
		}
	case "[person_name:":
		if payload != "" {
			d.directives = append(d.directives, Directive{Kind: DirectivePersonName, Fields: []string{payload}})
		}
	case "[zone_learn:":
		if fields := splitFields(payload, 3); fields != nil {
			d.directives = append(d.directives, Directive{Kind: DirectiveZoneLearn, Fields: fields})
		}
	}
}

// flushPending force-resolves the trailing buffer at end of stream. Every
// closed tag was already consumed by the body loop, so what remains is
// literal text, at worst ending in an unclosed tag that is demoted to text.
func (d *Decoder) flushPending() []Event {
	text := strings.TrimRight(d.pending, " \t\r\n")
	d.pending = ""
	if text == "" {
		return nil
	}
	return []Event{{Kind: EventText, Text: text}}
}
