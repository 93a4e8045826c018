package domain

import "testing"

func TestOutcomesForChannel(t *testing.T) {
	call := OutcomesForChannel(ChannelCall)
	if len(call) == 0 {
		t.Fatal("call channel has no outcomes")
	}
	for _, o := range call {
		if !IsValidOutcome(ChannelCall, o) {
			t.Fatalf("outcome %s listed for call but not valid", o)
		}
	}

	if IsValidOutcome(ChannelEmail, OutcomeVoicemail) {
		t.Fatal("voicemail is not an email outcome")
	}
	if IsValidOutcome(ChannelCall, OutcomeBounced) {
		t.Fatal("bounced is not a call outcome")
	}
	if IsKnownChannel(Channel("fax")) {
		t.Fatal("fax is not a channel")
	}
}

func TestNextForOutcome(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		outcome Outcome
		want    Status
		moved   bool
	}{
		{"voicemail nurtures", StatusContacted, OutcomeVoicemail, StatusNurturing, true},
		{"no answer nurtures", StatusContacted, OutcomeNoAnswer, StatusNurturing, true},
		{"no response nurtures", StatusNurturing, OutcomeNoResponse, StatusNurturing, true},
		{"wrong number kills", StatusContacted, OutcomeWrongNumber, StatusDead, true},
		{"bounce kills", StatusNurturing, OutcomeBounced, StatusDead, true},
		{"deal converts", StatusNurturing, OutcomeDealSecured, StatusConverted, true},
		{"connected stays put", StatusContacted, OutcomeConnected, StatusContacted, false},
		{"replied stays put", StatusNurturing, OutcomeReplied, StatusNurturing, false},
		{"ignored from dead", StatusDead, OutcomeVoicemail, StatusDead, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, moved := NextForOutcome(tc.current, tc.outcome)
			if got != tc.want || moved != tc.moved {
				t.Fatalf("NextForOutcome(%s, %s) = (%s, %v), want (%s, %v)",
					tc.current, tc.outcome, got, moved, tc.want, tc.moved)
			}
		})
	}
}
