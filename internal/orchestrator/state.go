package orchestrator

import (
	"strings"

	"github.com/cheahjs/sdwebui-panel/internal/params"
)

// State is an immutable snapshot of the panel's generation status. At most
// one of ImageURL and Failure is set.
type State struct {
	Generating bool
	ImageURL   string
	Failure    *Failure
}

// Event moves a State forward through Reduce.
type Event interface {
	event()
}

type Started struct{}

type Succeeded struct {
	ImageURL string
}

type Failed struct {
	Failure Failure
}

func (Started) event()   {}
func (Succeeded) event() {}
func (Failed) event()    {}

// Reduce returns the state that follows s after e. Starting a generation
// drops the previous image and failure.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case Started:
		return State{Generating: true}
	case Succeeded:
		return State{ImageURL: e.ImageURL}
	case Failed:
		failure := e.Failure
		return State{Failure: &failure}
	default:
		return s
	}
}

// CanGenerate mirrors the generate control's enabled state.
func CanGenerate(s State, p params.Parameters) bool {
	return !s.Generating && strings.TrimSpace(p.Prompt) != ""
}
