// Package motion compiles high-level gesture aliases into the fixed
// vocabulary of primitive commands the robot firmware understands: rotate
// (degrees), move (distance in cm), light (color), pause. The compiler is
// deterministic and does no I/O; unrecognized step names pass through
// unchanged so new firmware primitives do not require a backend release.
package motion

import (
	"strconv"
	"strings"
)

// Primitive command types.
const (
	PrimRotate = "rotate"
	PrimMove   = "move"
	PrimLight  = "light"
	PrimPause  = "pause"
)

// Primitive is one motor/LED command with its own duration.
type Primitive struct {
	Type       string   `json:"type"`
	Params     []string `json:"params,omitempty"`
	DurationMS int      `json:"duration_ms"`
}

// Sequence is a compiled motion sequence, sent to the client inside
// response_meta, exploration_actions and face_scan_actions payloads.
type Sequence struct {
	Type            string      `json:"type"` // always "move_sequence"
	Label           string      `json:"label"`
	TotalDurationMS int         `json:"total_duration_ms"`
	StepCount       int         `json:"step_count"`
	Steps           []Primitive `json:"steps"`
}

// aliases maps gesture names to their primitive expansions. Durations are
// tuned for the robot chassis; steps execute in order.
var aliases = map[string][]Primitive{
	"wave": {
		{Type: PrimRotate, Params: []string{"-20"}, DurationMS: 250},
		{Type: PrimRotate, Params: []string{"40"}, DurationMS: 500},
		{Type: PrimRotate, Params: []string{"-20"}, DurationMS: 250},
	},
	"nod": {
		{Type: PrimMove, Params: []string{"3"}, DurationMS: 200},
		{Type: PrimMove, Params: []string{"-3"}, DurationMS: 200},
		{Type: PrimMove, Params: []string{"3"}, DurationMS: 200},
	},
	"shake": {
		{Type: PrimRotate, Params: []string{"-15"}, DurationMS: 200},
		{Type: PrimRotate, Params: []string{"30"}, DurationMS: 400},
		{Type: PrimRotate, Params: []string{"-15"}, DurationMS: 200},
	},
	"spin": {
		{Type: PrimRotate, Params: []string{"360"}, DurationMS: 1500},
	},
	"dance": {
		{Type: PrimRotate, Params: []string{"45"}, DurationMS: 400},
		{Type: PrimLight, Params: []string{"#FF00FF"}, DurationMS: 400},
		{Type: PrimRotate, Params: []string{"-90"}, DurationMS: 800},
		{Type: PrimLight, Params: []string{"#00FFFF"}, DurationMS: 400},
		{Type: PrimRotate, Params: []string{"45"}, DurationMS: 400},
	},
	"look_around": {
		{Type: PrimRotate, Params: []string{"-60"}, DurationMS: 600},
		{Type: PrimPause, DurationMS: 500},
		{Type: PrimRotate, Params: []string{"120"}, DurationMS: 1200},
		{Type: PrimPause, DurationMS: 500},
		{Type: PrimRotate, Params: []string{"-60"}, DurationMS: 600},
	},
	"approach": {
		{Type: PrimMove, Params: []string{"30"}, DurationMS: 1000},
	},
	"retreat": {
		{Type: PrimMove, Params: []string{"-30"}, DurationMS: 1000},
	},
	"celebrate": {
		{Type: PrimLight, Params: []string{"#FFD700"}, DurationMS: 300},
		{Type: PrimRotate, Params: []string{"360"}, DurationMS: 1200},
		{Type: PrimLight, Params: []string{"#00FF00"}, DurationMS: 300},
	},
}

// ParseStep decodes one raw step of the form "name:param...:duration_ms".
// The final segment is the duration when numeric; a missing duration is zero.
// Everything between name and duration is kept as string params.
func ParseStep(raw string) Primitive {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	p := Primitive{Type: strings.ToLower(strings.TrimSpace(parts[0]))}

	rest := parts[1:]
	if len(rest) > 0 {
		if ms, err := strconv.Atoi(strings.TrimSpace(rest[len(rest)-1])); err == nil {
			p.DurationMS = ms
			rest = rest[:len(rest)-1]
		}
	}
	for _, param := range rest {
		param = strings.TrimSpace(param)
		if param != "" {
			p.Params = append(p.Params, param)
		}
	}
	return p
}

// Expand resolves one step: aliases become their primitive expansion,
// everything else (known primitives and unrecognized names alike) passes
// through as a single step.
func Expand(step Primitive) []Primitive {
	if expansion, ok := aliases[step.Type]; ok {
		out := make([]Primitive, len(expansion))
		copy(out, expansion)
		return out
	}
	return []Primitive{step}
}

// BuildMoveSequence parses and expands raw steps into a full sequence,
// summing durations (a missing duration counts as zero).
func BuildMoveSequence(label string, rawSteps []string) Sequence {
	seq := Sequence{Type: "move_sequence", Label: label}
	for _, raw := range rawSteps {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		for _, p := range Expand(ParseStep(raw)) {
			seq.Steps = append(seq.Steps, p)
			seq.TotalDurationMS += p.DurationMS
		}
	}
	seq.StepCount = len(seq.Steps)
	return seq
}

// FaceScanSequence is the canned sweep the robot performs while searching
// for faces: slow alternating rotations with pauses for the camera to settle.
func FaceScanSequence() Sequence {
	return BuildMoveSequence("face_scan", []string{
		"rotate:-90:1200",
		"pause:800",
		"rotate:60:900",
		"pause:800",
		"rotate:60:900",
		"pause:800",
		"rotate:60:900",
		"pause:800",
		"rotate:-90:1200",
	})
}
