package gauge

import "fmt"

// TransitionRule defines an allowed status transition.
type TransitionRule struct {
	From Status
	To   Status
}

// DefaultTransitions defines the allowed status transitions. pending_qc is
// entry-only: gauges arrive in it from external intake, nothing transitions
// into it. returned and retired are terminal.
var DefaultTransitions = []TransitionRule{
	{From: StatusAvailable, To: StatusCheckedOut},
	{From: StatusCheckedOut, To: StatusAvailable},
	{From: StatusAvailable, To: StatusOutOfService},
	{From: StatusOutOfService, To: StatusAvailable},
	{From: StatusAvailable, To: StatusCalibrationDue},
	{From: StatusPendingQC, To: StatusAvailable},
	{From: StatusOutOfService, To: StatusRetired},

	// Calibration chain.
	{From: StatusAvailable, To: StatusOutForCalibration},
	{From: StatusCalibrationDue, To: StatusOutForCalibration},
	{From: StatusOutForCalibration, To: StatusPendingCertificate},
	{From: StatusPendingCertificate, To: StatusPendingRelease},
	{From: StatusPendingRelease, To: StatusAvailable},
	{From: StatusOutForCalibration, To: StatusRetired},

	// Customer return.
	{From: StatusAvailable, To: StatusReturned},
	{From: StatusOutOfService, To: StatusReturned},
	{From: StatusCalibrationDue, To: StatusReturned},
}

// Machine validates gauge status transitions.
type Machine struct {
	transitions []TransitionRule
}

// NewMachine creates a machine with the default rules.
func NewMachine() *Machine {
	return &Machine{transitions: DefaultTransitions}
}

// ValidateTransition checks whether from->to is allowed. Same-state
// transitions are a no-op and allowed. Returns a typed InvalidState error
// naming the gauge if not.
func (m *Machine) ValidateTransition(gaugeID string, from, to Status) error {
	if from == to {
		return nil
	}
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return NewError(CodeInvalidState, gaugeID,
		fmt.Sprintf("gauge %s cannot move from %s to %s", gaugeID, from, to))
}

// AllowedTransitions returns all valid target statuses from the given one.
func (m *Machine) AllowedTransitions(from Status) []Status {
	var allowed []Status
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// cascades reports whether a transition to this status mirrors onto the
// companion in the same transaction. Calibration-due is deliberately
// excluded: due dates are tracked per gauge and allowed to diverge.
func cascades(to Status) bool {
	return to == StatusOutOfService || to == StatusAvailable
}
