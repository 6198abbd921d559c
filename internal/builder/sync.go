package builder

import (
	"errors"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
)

// ErrSyncInProgress is returned when a sync is triggered while another sync
// is running, typically from inside an OnChange hook. The trigger is ignored.
var ErrSyncInProgress = errors.New("sync already in progress")

// Direction says which side of a Sync changed.
type Direction int

const (
	TextToBuilder Direction = iota
	BuilderToText
)

func (d Direction) String() string {
	if d == BuilderToText {
		return "builder->text"
	}
	return "text->builder"
}

// Change describes a completed sync.
type Change struct {
	Direction  Direction
	Text       string
	Definition *graph.Definition
	Skipped    []grammar.SkippedLine
}

// Sync keeps a text buffer and a Builder describing the same graph. Each
// direction runs under an in-progress flag; a trigger of either direction
// arriving while the flag is set is ignored.
type Sync struct {
	text       string
	builder    *Builder
	inProgress bool
	onChange   func(Change)
}

// NewSync pairs b with the empty text.
func NewSync(b *Builder) *Sync {
	if b == nil {
		b = New()
	}
	return &Sync{builder: b}
}

// Text returns the current text.
func (s *Sync) Text() string { return s.text }

// Builder returns the structured side.
func (s *Sync) Builder() *Builder { return s.builder }

// InProgress reports whether a sync is running.
func (s *Sync) InProgress() bool { return s.inProgress }

// OnChange registers a hook called at the end of every completed sync, while
// the in-progress flag is still set.
func (s *Sync) OnChange(fn func(Change)) {
	s.onChange = fn
}

// SetText replaces the text and reloads the builder from it. Parsing never
// fails; unrecognized lines are reported in the Change.
func (s *Sync) SetText(text string) error {
	if s.inProgress {
		return ErrSyncInProgress
	}
	s.inProgress = true
	defer func() { s.inProgress = false }()

	def, skipped := grammar.ParseWithSkips(text)
	s.text = text
	s.builder.Load(def)

	s.notify(Change{Direction: TextToBuilder, Text: text, Definition: def, Skipped: skipped})
	return nil
}

// Edit applies fn to the builder and regenerates the text from the result.
// If fn fails, or the builder holds a dangling connection, the text is left
// unchanged and the error is returned.
func (s *Sync) Edit(fn func(*Builder) error) error {
	if s.inProgress {
		return ErrSyncInProgress
	}
	s.inProgress = true
	defer func() { s.inProgress = false }()

	if err := fn(s.builder); err != nil {
		return err
	}
	def, err := s.builder.Definition()
	if err != nil {
		return err
	}
	s.text = grammar.Serialize(def)

	s.notify(Change{Direction: BuilderToText, Text: s.text, Definition: def})
	return nil
}

func (s *Sync) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}
