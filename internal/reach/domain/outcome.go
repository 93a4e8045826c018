package domain

// Channel is the medium of an outreach attempt.
type Channel string

const (
	ChannelCall  Channel = "call"
	ChannelText  Channel = "text"
	ChannelEmail Channel = "email"
)

// Outcome is the human-reported result classification of an outreach attempt.
type Outcome string

const (
	OutcomeConnected   Outcome = "connected"
	OutcomeVoicemail   Outcome = "voicemail"
	OutcomeNoAnswer    Outcome = "no_answer"
	OutcomeBusy        Outcome = "busy"
	OutcomeWrongNumber Outcome = "wrong_number"
	OutcomeReplied     Outcome = "replied"
	OutcomeDelivered   Outcome = "delivered"
	OutcomeNoResponse  Outcome = "no_response"
	OutcomeBounced     Outcome = "bounced"
	OutcomeDealSecured Outcome = "deal_secured"
)

// channelOutcomes defines the outcome vocabulary per channel. The recorder
// presents exactly these choices for the interaction's channel.
var channelOutcomes = map[Channel][]Outcome{
	ChannelCall:  {OutcomeConnected, OutcomeVoicemail, OutcomeNoAnswer, OutcomeBusy, OutcomeWrongNumber, OutcomeDealSecured},
	ChannelText:  {OutcomeReplied, OutcomeDelivered, OutcomeNoResponse, OutcomeWrongNumber, OutcomeDealSecured},
	ChannelEmail: {OutcomeReplied, OutcomeNoResponse, OutcomeBounced, OutcomeDealSecured},
}

// outcomeTransitions maps outcomes to the next status. Outcomes absent from
// this table ("connected", "replied") leave the state unchanged: contact was
// made but the next step is a human decision.
var outcomeTransitions = map[Outcome]Status{
	OutcomeVoicemail:   StatusNurturing,
	OutcomeNoAnswer:    StatusNurturing,
	OutcomeBusy:        StatusNurturing,
	OutcomeDelivered:   StatusNurturing,
	OutcomeNoResponse:  StatusNurturing,
	OutcomeWrongNumber: StatusDead,
	OutcomeBounced:     StatusDead,
	OutcomeDealSecured: StatusConverted,
}

// IsKnownChannel reports whether c is a supported outreach channel.
func IsKnownChannel(c Channel) bool {
	_, ok := channelOutcomes[c]
	return ok
}

// OutcomesForChannel returns the outcome vocabulary for the channel.
func OutcomesForChannel(c Channel) []Outcome {
	src := channelOutcomes[c]
	out := make([]Outcome, len(src))
	copy(out, src)
	return out
}

// IsValidOutcome reports whether the outcome is in the channel's vocabulary.
func IsValidOutcome(c Channel, o Outcome) bool {
	for _, candidate := range channelOutcomes[c] {
		if candidate == o {
			return true
		}
	}
	return false
}

// NextForOutcome returns the status an outcome transitions to from the
// current status. The second return is false when the outcome is unmapped or
// the current status does not accept outcome-driven transitions; the caller
// leaves the state unchanged.
func NextForOutcome(current Status, o Outcome) (Status, bool) {
	if !CanTransition(current, ActionRecordOutcome) {
		return current, false
	}
	next, ok := outcomeTransitions[o]
	if !ok {
		return current, false
	}
	return next, true
}
