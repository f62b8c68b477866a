package validate

import (
	"fmt"

	"github.com/joescharf/cr/internal/models"
)

// allowedTransitions is the full transition table of the grounding state
// machine. Terminal states have no outgoing edges.
var allowedTransitions = map[models.ValidationStatus][]models.ValidationStatus{
	models.StatusProposed:          {models.StatusEvidenceRequested},
	models.StatusEvidenceRequested: {models.StatusGrounded, models.StatusRejected},
}

// Machine tracks one issue's progress through the grounding states.
type Machine struct {
	status models.ValidationStatus
}

// NewMachine starts a machine in the proposed state.
func NewMachine() *Machine {
	return &Machine{status: models.StatusProposed}
}

// Status returns the current state.
func (m *Machine) Status() models.ValidationStatus {
	return m.status
}

// Transition moves to the given state, failing on any edge the table does
// not allow. No issue may leave a terminal state.
func (m *Machine) Transition(to models.ValidationStatus) error {
	for _, next := range allowedTransitions[m.status] {
		if next == to {
			m.status = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", m.status, to)
}
