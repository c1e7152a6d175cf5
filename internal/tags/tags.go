// Package tags extracts bracketed control tags from generated text.
//
// The generative backend interleaves directives with spoken text:
//
//	[emotion:happy][emojis:1F44B,1F916][actions:rotate:90:500] ¡Hola!
//	... [memory:person_fact:le gusta el café] ... [media_summary: saludo]
//
// Per-tag parsers here are pure and operate on complete strings; the
// chunk-boundary-safe streaming decoder is in stream.go.
package tags

import (
	"regexp"
	"strings"
)

// NeutralEmotion is the default emotion when the backend emits no tag or an
// unknown one.
const NeutralEmotion = "neutral"

// emotionVocab is the closed set of emotions the client face can render.
var emotionVocab = map[string]bool{
	"happy":     true,
	"excited":   true,
	"sad":       true,
	"empathy":   true,
	"confused":  true,
	"surprised": true,
	"love":      true,
	"cool":      true,
	"greeting":  true,
	"neutral":   true,
	"curious":   true,
	"worried":   true,
	"playful":   true,
}

// KnownEmotion reports whether tag is in the closed emotion vocabulary.
func KnownEmotion(tag string) bool {
	return emotionVocab[strings.ToLower(tag)]
}

// leadingTag matches a case-insensitive "[name:" prefix at the start of s,
// ignoring leading whitespace. It returns the tag body and the text after the
// closing bracket. The tag must be fully closed for a match.
func leadingTag(s, name string) (body, remaining string, matched bool) {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	open := "[" + name + ":"
	if len(trimmed) < len(open) || !strings.EqualFold(trimmed[:len(open)], open) {
		return "", s, false
	}
	rest := trimmed[len(open):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return "", s, false
	}
	return rest[:end], rest[end+1:], true
}

// ParseEmotionTag extracts a leading [emotion:TAG] from s. Unknown tags are
// consumed but mapped to NeutralEmotion so no control text leaks downstream.
// When no closed tag leads s, it returns (NeutralEmotion, s, false).
func ParseEmotionTag(s string) (emotion, remaining string, matched bool) {
	body, rest, ok := leadingTag(s, "emotion")
	if !ok {
		return NeutralEmotion, s, false
	}
	tag := strings.ToLower(strings.TrimSpace(body))
	if !emotionVocab[tag] {
		tag = NeutralEmotion
	}
	return tag, rest, true
}

// ParseEmojisTag extracts a leading [emojis:CODE,CODE,...] from s. Codes are
// upper-cased and empty entries dropped. When no closed tag leads s, it
// returns (nil, s, false).
func ParseEmojisTag(s string) (codes []string, remaining string, matched bool) {
	body, rest, ok := leadingTag(s, "emojis")
	if !ok {
		return nil, s, false
	}
	for _, part := range strings.Split(body, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes, rest, true
}

// ParseActionsTag extracts a leading [actions:step|step|...] from s. Steps are
// returned raw; the motion compiler owns the step grammar. When no closed tag
// leads s, it returns (nil, s, false).
func ParseActionsTag(s string) (steps []string, remaining string, matched bool) {
	body, rest, ok := leadingTag(s, "actions")
	if !ok {
		return nil, s, false
	}
	for _, part := range strings.Split(body, "|") {
		step := strings.TrimSpace(part)
		if step != "" {
			steps = append(steps, step)
		}
	}
	return steps, rest, true
}

// DirectiveKind names a side-effect directive embedded in body text.
type DirectiveKind string

// Directive kinds.
const (
	DirectiveMemory     DirectiveKind = "memory"
	DirectivePersonName DirectiveKind = "person_name"
	DirectiveZoneLearn  DirectiveKind = "zone_learn"
)

// Directive is one side-effect instruction extracted from the response body.
// Fields are the colon-separated payload segments:
//
//	memory      → [type, content]
//	person_name → [name]
//	zone_learn  → [name, category, description]
type Directive struct {
	Kind   DirectiveKind
	Fields []string
}

var (
	directiveRe    = regexp.MustCompile(`(?is)\[(memory|person_name|zone_learn):(.*?)\]`)
	mediaSummaryRe = regexp.MustCompile(`(?is)\[media_summary:\s*(.*?)\]`)
	spaceCollapse  = regexp.MustCompile(`[ \t]{2,}`)
)

// ExtractDirectives pulls every memory/person_name/zone_learn directive out of
// text and returns the cleaned text with all directives (and any residual
// media_summary tag) removed. Malformed directives with the wrong field
// count are still stripped but not returned.
func ExtractDirectives(text string) (clean string, directives []Directive) {
	clean = directiveRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := directiveRe.FindStringSubmatch(match)
		kind := DirectiveKind(strings.ToLower(groups[1]))
		payload := strings.TrimSpace(groups[2])

		var fields []string
		switch kind {
		case DirectiveMemory:
			fields = splitFields(payload, 2)
		case DirectivePersonName:
			if payload != "" {
				fields = []string{payload}
			}
		case DirectiveZoneLearn:
			fields = splitFields(payload, 3)
		}
		if fields != nil {
			directives = append(directives, Directive{Kind: kind, Fields: fields})
		}
		return ""
	})

	clean = mediaSummaryRe.ReplaceAllString(clean, "")
	clean = spaceCollapse.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean), directives
}

// splitFields splits payload into exactly n colon-separated fields (the last
// field keeps embedded colons). Returns nil when fewer segments are present
// or any is empty.
func splitFields(payload string, n int) []string {
	parts := strings.SplitN(payload, ":", n)
	if len(parts) != n {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil
		}
	}
	return parts
}
