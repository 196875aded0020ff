package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Lifecycle Phases
// =============================================================================

// Phase is a pipeline lifecycle stage.
type Phase string

const (
	PhaseQueued            Phase = "queued"
	PhaseCloning           Phase = "cloning"
	PhaseDetected          Phase = "detected"
	PhaseBuilding          Phase = "building"
	PhaseCreatingContainer Phase = "creating_container"
	PhaseRunning           Phase = "running"
	PhaseFailed            Phase = "failed"
)

// phaseOrder gives the nominal position of each non-failed phase.
var phaseOrder = map[Phase]int{
	PhaseQueued:            0,
	PhaseCloning:           1,
	PhaseDetected:          2,
	PhaseBuilding:          3,
	PhaseCreatingContainer: 4,
	PhaseRunning:           5,
}

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle state of a deployment. Archetype is only set
// for PhaseDetected.
type Status struct {
	Phase     Phase
	Archetype Archetype
}

var (
	StatusQueued            = Status{Phase: PhaseQueued}
	StatusCloning           = Status{Phase: PhaseCloning}
	StatusBuilding          = Status{Phase: PhaseBuilding}
	StatusCreatingContainer = Status{Phase: PhaseCreatingContainer}
	StatusRunning           = Status{Phase: PhaseRunning}
	StatusFailed            = Status{Phase: PhaseFailed}
)

// StatusDetected returns the detection status carrying the archetype.
func StatusDetected(a Archetype) Status {
	return Status{Phase: PhaseDetected, Archetype: a}
}

// String renders the status as persisted and reported, e.g. "detected:react".
func (s Status) String() string {
	if s.Phase == PhaseDetected {
		return fmt.Sprintf("%s:%s", PhaseDetected, s.Archetype)
	}
	return string(s.Phase)
}

// Terminal reports whether no further pipeline transition is possible.
func (s Status) Terminal() bool {
	return s.Phase == PhaseFailed
}

// CanTransition reports whether the pipeline may move from s to next.
//
// The nominal order is queued → cloning → detected → building →
// creating_container → running, one step at a time. Failed is reachable from
// any non-terminal phase and nothing leaves it.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next.Phase == PhaseFailed {
		return true
	}
	if next.Phase == PhaseDetected && !next.Archetype.Valid() {
		return false
	}
	from, ok := phaseOrder[s.Phase]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next.Phase]
	if !ok {
		return false
	}
	return to == from+1
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(raw string) (Status, error) {
	if rest, ok := strings.CutPrefix(raw, string(PhaseDetected)+":"); ok {
		a := Archetype(rest)
		if !a.Valid() {
			return Status{}, fmt.Errorf("%w: unknown archetype %q", ErrInvalidStatus, rest)
		}
		return StatusDetected(a), nil
	}
	p := Phase(raw)
	if p == PhaseDetected {
		return Status{}, fmt.Errorf("%w: detected status without archetype", ErrInvalidStatus)
	}
	if _, ok := phaseOrder[p]; !ok && p != PhaseFailed {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return Status{Phase: p}, nil
}

// MarshalText implements encoding.TextMarshaler so Status serializes as its string form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
