package domain

// Phase is the per-account bootstrap state. Transitions fire only on
// success of the corresponding ledger step; any failure moves the account
// to PhaseFailed and no later-stage step runs for it.
type Phase int

const (
	PhaseUnloaded Phase = iota
	PhaseLoaded
	PhaseTrusted
	PhaseFunded
	PhaseReconciled
	PhaseOffered
	PhaseFailed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUnloaded:
		return "unloaded"
	case PhaseLoaded:
		return "loaded"
	case PhaseTrusted:
		return "trusted"
	case PhaseFunded:
		return "funded"
	case PhaseReconciled:
		return "reconciled"
	case PhaseOffered:
		return "offered"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
