// Package domain provides core business rules for the reach workflow:
// the status enumeration, the action transition table, and the outcome
// vocabularies. All precondition checks live here so legal transitions are
// validated in one place instead of being re-derived per call site.
package domain

// Status is a lead's position in the enrichment → skip-trace → outreach
// pipeline. It is the single source of truth for workflow progress.
type Status string

const (
	StatusNew              Status = "new"
	StatusIntelPending     Status = "intel_pending"
	StatusIntelReady       Status = "intel_ready"
	StatusIntelFailed      Status = "intel_failed"
	StatusSkipTracePending Status = "skiptrace_pending"
	StatusSkipTraceReady   Status = "skiptrace_ready"
	StatusSkipTraceFailed  Status = "skiptrace_failed"
	StatusOutreachReady    Status = "outreach_ready"
	StatusContacted        Status = "contacted"
	StatusNurturing        Status = "nurturing"
	StatusDead             Status = "dead"
	StatusConverted        Status = "converted"
)

// Action is a user- or system-initiated workflow step.
type Action string

const (
	ActionSubmitEnrichment Action = "submit_enrichment"
	ActionSubmitSkipTrace  Action = "submit_skiptrace"
	ActionBeginOutreach    Action = "begin_outreach"
	ActionRecordOutcome    Action = "record_outcome"
)

var knownStatuses = map[Status]struct{}{
	StatusNew:              {},
	StatusIntelPending:     {},
	StatusIntelReady:       {},
	StatusIntelFailed:      {},
	StatusSkipTracePending: {},
	StatusSkipTraceReady:   {},
	StatusSkipTraceFailed:  {},
	StatusOutreachReady:    {},
	StatusContacted:        {},
	StatusNurturing:        {},
	StatusDead:             {},
	StatusConverted:        {},
}

var terminalStatuses = map[Status]bool{
	StatusDead:      true,
	StatusConverted: true,
}

// preconditions is the central transition table: an action is permitted only
// when the record is in exactly one of the listed states. A failed stage is
// retried by explicit user action re-entering the originating precondition
// state; there are no automatic retries.
//
// The submit actions also accept their own pending state: a poll that ran
// out of budget leaves the lead pending while the job runs on, and
// re-issuing the action is the re-check that adopts the job's result. The
// gateway's active-job guarantee makes this safe against double submission.
var preconditions = map[Action][]Status{
	ActionSubmitEnrichment: {StatusNew, StatusIntelFailed, StatusIntelPending},
	ActionSubmitSkipTrace:  {StatusIntelReady, StatusSkipTraceFailed, StatusSkipTracePending},
	ActionBeginOutreach:    {StatusOutreachReady},
	ActionRecordOutcome:    {StatusContacted, StatusNurturing},
}

// pendingFor maps a submission action to the status the lead holds while the
// remote job is in flight.
var pendingFor = map[Action]Status{
	ActionSubmitEnrichment: StatusIntelPending,
	ActionSubmitSkipTrace:  StatusSkipTracePending,
}

// IsKnown reports whether s is a member of the status enumeration.
func IsKnown(s Status) bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether no further workflow actions apply.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// IsKnownAction reports whether a is a member of the action enumeration.
func IsKnownAction(a Action) bool {
	_, ok := preconditions[a]
	return ok
}

// Preconditions returns the set of states from which the action is legal.
func Preconditions(a Action) []Status {
	src := preconditions[a]
	out := make([]Status, len(src))
	copy(out, src)
	return out
}

// CanTransition reports whether the action is legal from the current status.
func CanTransition(current Status, a Action) bool {
	for _, s := range preconditions[a] {
		if s == current {
			return true
		}
	}
	return false
}

// PendingStatus returns the in-flight status for a submission action and
// whether the action has one (begin_outreach and record_outcome do not).
func PendingStatus(a Action) (Status, bool) {
	s, ok := pendingFor[a]
	return s, ok
}

// AfterEnrichment maps an enrichment job's terminal result to the next status.
func AfterEnrichment(succeeded bool) Status {
	if succeeded {
		return StatusIntelReady
	}
	return StatusIntelFailed
}

// AfterSkipTrace maps a skip-trace job's terminal result to the next status.
// A successful trace only unlocks outreach when it produced at least one
// phone number or email address.
func AfterSkipTrace(succeeded bool, contactCount int) Status {
	switch {
	case !succeeded:
		return StatusSkipTraceFailed
	case contactCount > 0:
		return StatusOutreachReady
	default:
		return StatusSkipTraceReady
	}
}
