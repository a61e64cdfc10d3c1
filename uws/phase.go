package uws

import "strings"

// Phase is the lifecycle state of a UWS job as reported by the server.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseQueued    Phase = "QUEUED"
	PhaseExecuting Phase = "EXECUTING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseError     Phase = "ERROR"
	PhaseAborted   Phase = "ABORTED"
	PhaseHeld      Phase = "HELD"
	PhaseSuspended Phase = "SUSPENDED"
	PhaseArchived  Phase = "ARCHIVED"
	PhaseUnknown   Phase = "UNKNOWN"
)

// ParsePhase normalizes a phase string from the wire. Phases this package
// does not know are kept, upper-cased, so newer servers keep working.
func ParsePhase(s string) Phase {
	return Phase(strings.ToUpper(strings.TrimSpace(s)))
}

// Terminal reports whether polling stops at this phase. Only COMPLETED and
// ERROR end a job for this client; every other phase, known or not, means
// the job is still running.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

func (p Phase) String() string {
	return string(p)
}
