package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		action  Action
		want    bool
	}{
		{"enrichment from new", StatusNew, ActionSubmitEnrichment, true},
		{"enrichment retry after failure", StatusIntelFailed, ActionSubmitEnrichment, true},
		{"enrichment re-check while pending", StatusIntelPending, ActionSubmitEnrichment, true},
		{"enrichment after intel ready", StatusIntelReady, ActionSubmitEnrichment, false},
		{"skiptrace from intel ready", StatusIntelReady, ActionSubmitSkipTrace, true},
		{"skiptrace retry after failure", StatusSkipTraceFailed, ActionSubmitSkipTrace, true},
		{"skiptrace re-check while pending", StatusSkipTracePending, ActionSubmitSkipTrace, true},
		{"skiptrace from new", StatusNew, ActionSubmitSkipTrace, false},
		{"skiptrace while intel pending", StatusIntelPending, ActionSubmitSkipTrace, false},
		{"skiptrace from zero-contact ready", StatusSkipTraceReady, ActionSubmitSkipTrace, false},
		{"outreach from outreach ready", StatusOutreachReady, ActionBeginOutreach, true},
		{"outreach from skiptrace ready", StatusSkipTraceReady, ActionBeginOutreach, false},
		{"outcome from contacted", StatusContacted, ActionRecordOutcome, true},
		{"outcome from nurturing", StatusNurturing, ActionRecordOutcome, true},
		{"outcome from dead", StatusDead, ActionRecordOutcome, false},
		{"outcome from converted", StatusConverted, ActionRecordOutcome, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.current, tc.action); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.current, tc.action, got, tc.want)
			}
		})
	}
}

func TestTerminalStatusesAcceptNoActions(t *testing.T) {
	for _, status := range []Status{StatusDead, StatusConverted} {
		if !IsTerminal(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
		for _, action := range []Action{ActionSubmitEnrichment, ActionSubmitSkipTrace, ActionBeginOutreach, ActionRecordOutcome} {
			if CanTransition(status, action) {
				t.Fatalf("terminal status %s must not allow %s", status, action)
			}
		}
	}
	if IsTerminal(StatusNurturing) {
		t.Fatal("nurturing is not terminal")
	}
}

func TestPendingStatus(t *testing.T) {
	if s, ok := PendingStatus(ActionSubmitEnrichment); !ok || s != StatusIntelPending {
		t.Fatalf("enrichment pending = %s, %v", s, ok)
	}
	if s, ok := PendingStatus(ActionSubmitSkipTrace); !ok || s != StatusSkipTracePending {
		t.Fatalf("skiptrace pending = %s, %v", s, ok)
	}
	if _, ok := PendingStatus(ActionBeginOutreach); ok {
		t.Fatal("begin_outreach has no pending status")
	}
}

func TestAfterEnrichment(t *testing.T) {
	if got := AfterEnrichment(true); got != StatusIntelReady {
		t.Fatalf("AfterEnrichment(true) = %s", got)
	}
	if got := AfterEnrichment(false); got != StatusIntelFailed {
		t.Fatalf("AfterEnrichment(false) = %s", got)
	}
}

func TestAfterSkipTrace(t *testing.T) {
	if got := AfterSkipTrace(false, 3); got != StatusSkipTraceFailed {
		t.Fatalf("failed trace = %s", got)
	}
	if got := AfterSkipTrace(true, 2); got != StatusOutreachReady {
		t.Fatalf("trace with contacts = %s", got)
	}
	// Zero contacts completes the stage but never unlocks outreach.
	if got := AfterSkipTrace(true, 0); got != StatusSkipTraceReady {
		t.Fatalf("trace without contacts = %s", got)
	}
}

func TestIsKnown(t *testing.T) {
	for s := range knownStatuses {
		if !IsKnown(s) {
			t.Fatalf("expected %s to be known", s)
		}
	}
	if IsKnown(Status("archived")) {
		t.Fatal("archived is not a reach status")
	}
	if IsKnownAction(Action("delete")) {
		t.Fatal("delete is not a reach action")
	}
}
