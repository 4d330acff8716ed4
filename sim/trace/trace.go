package trace

import (
	"time"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Level controls the verbosity of calculation tracing.
type Level string

const (
	// LevelNone keeps only the in-progress stack used for spiral detection.
	LevelNone Level = "none"
	// LevelFull keeps every frame with its value, children and parameter reads.
	LevelFull Level = "full"
)

// validLevels maps accepted trace level strings.
var validLevels = map[Level]bool{
	LevelNone: true,
	LevelFull: true,
	"":        true, // empty defaults to none
}

// IsValidLevel returns true if the given level string is a recognized trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Tracer follows the calculation stack of one simulation. It is not safe for
// concurrent use, like the simulation that owns it.
type Tracer struct {
	Level    Level
	Roots    []*Frame // top-level frames, only at LevelFull
	stack    []*Frame
	active   map[string]int
	requests map[string]int
}

// New creates a Tracer ready for recording.
func New(level Level) *Tracer {
	if level == "" {
		level = LevelNone
	}
	return &Tracer{
		Level:    level,
		active:   make(map[string]int),
		requests: make(map[string]int),
	}
}

// Full reports whether frames are kept after they exit.
func (t *Tracer) Full() bool { return t.Level == LevelFull }

// Enter pushes a frame for (variable, period).
func (t *Tracer) Enter(variable string, period periods.Period) {
	f := &Frame{Variable: variable, Period: period, start: time.Now()}
	if t.Full() {
		if parent := t.top(); parent != nil {
			parent.Children = append(parent.Children, f)
		} else {
			t.Roots = append(t.Roots, f)
		}
	}
	t.stack = append(t.stack, f)
	t.active[f.Key()]++
	t.requests[variable]++
}

// Exit pops the current frame and records its outcome.
func (t *Tracer) Exit(value vector.Array, err error) {
	f := t.top()
	if f == nil {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
	key := f.Key()
	if t.active[key]--; t.active[key] <= 0 {
		delete(t.active, key)
	}
	f.Duration = time.Since(f.start)
	f.Err = err
	if err == nil && t.Full() {
		f.Value = value
	}
}

// RecordParameter attaches a parameter read to the current frame.
func (t *Tracer) RecordParameter(path string, instant periods.Instant, value any) {
	if !t.Full() {
		return
	}
	if f := t.top(); f != nil {
		f.Parameters = append(f.Parameters, ParameterRead{Path: path, Instant: instant, Value: value})
	}
}

func (t *Tracer) top() *Frame {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// Active counts in-progress frames for (variable, period).
func (t *Tracer) Active(variable string, period periods.Period) int {
	return t.active[Key(variable, period)]
}

// Cycle returns the stack keys from the first in-progress frame for
// (variable, period) to the top, followed by the key itself.
func (t *Tracer) Cycle(variable string, period periods.Period) []string {
	key := Key(variable, period)
	var out []string
	for _, f := range t.stack {
		if out == nil && f.Key() != key {
			continue
		}
		out = append(out, f.Key())
	}
	return append(out, key)
}

// Stack returns the keys of the in-progress frames, outermost first.
func (t *Tracer) Stack() []string {
	out := make([]string, len(t.stack))
	for i, f := range t.stack {
		out[i] = f.Key()
	}
	return out
}

// Depth is the number of in-progress frames.
func (t *Tracer) Depth() int { return len(t.stack) }

// NbRequests counts the frames entered for variable, cache hits included.
func (t *Tracer) NbRequests(variable string) int {
	return t.requests[variable]
}

// Walk visits every kept frame depth-first in call order.
func (t *Tracer) Walk(fn func(f *Frame, depth int)) {
	var walk func(f *Frame, depth int)
	walk = func(f *Frame, depth int) {
		fn(f, depth)
		for _, c := range f.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range t.Roots {
		walk(r, 0)
	}
}
