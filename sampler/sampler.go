package sampler

import (
	"github.com/pkg/errors"
)

// ErrNoInputs is returned by a step that was never given its inputs.
var ErrNoInputs = errors.New("Sampler inputs were not set")

// Status is the outcome of a single step.
type Status int

// Step outcomes. Skipped means the step hit a recoverable numerical problem
// and left its owned state as it was; Fatal means the chain can not go on.
const (
	OK Status = iota
	Skipped
	Fatal
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Skipped:
		return "skipped"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Result is what a step returns. Err is nil only for OK.
type Result struct {
	Status Status
	Err    error
}

// Ok is a successful step.
func Ok() Result {
	return Result{Status: OK}
}

// Skip is a step that was absorbed after a recoverable problem.
func Skip(err error) Result {
	return Result{Status: Skipped, Err: err}
}

// Fail is a step that must abort the chain.
func Fail(err error) Result {
	return Result{Status: Fatal, Err: err}
}

// A Sampler advances the state it owns by one Gibbs update.
type Sampler interface {
	Name() string
	Step() Result
}
