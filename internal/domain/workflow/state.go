package workflow

// State represents a bill status in the securitization lifecycle
type State string

const (
	StateSubmitted         State = "submitted"
	StateUnderReview       State = "under_review"
	StateOfferMade         State = "offer_made"
	StateOfferAccepted     State = "offer_accepted"
	StateMDAReviewing      State = "mda_reviewing"
	StateMDAApproved       State = "mda_approved"
	StateTermsSet          State = "terms_set"
	StateAgreementSent     State = "agreement_sent"
	StateTreasuryReviewing State = "treasury_reviewing"
	StateCertified         State = "certified"
	StateRejected          State = "rejected"
)

// stateOrder ranks the happy path. Rejected sits outside the ordering.
var stateOrder = map[State]int{
	StateSubmitted:         1,
	StateUnderReview:       2,
	StateOfferMade:         3,
	StateOfferAccepted:     4,
	StateMDAReviewing:      5,
	StateMDAApproved:       6,
	StateTermsSet:          7,
	StateAgreementSent:     8,
	StateTreasuryReviewing: 9,
	StateCertified:         10,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateCertified: true,
}

// AllStates returns every lifecycle state in happy-path order followed by rejected
func AllStates() []State {
	return []State{
		StateSubmitted,
		StateUnderReview,
		StateOfferMade,
		StateOfferAccepted,
		StateMDAReviewing,
		StateMDAApproved,
		StateTermsSet,
		StateAgreementSent,
		StateTreasuryReviewing,
		StateCertified,
		StateRejected,
	}
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return s == StateRejected || stateOrder[s] > 0
}

// Reached reports whether s is at or beyond other on the happy path.
// Rejected never reaches anything and nothing reaches rejected.
func (s State) Reached(other State) bool {
	a, ok := stateOrder[s]
	if !ok {
		return false
	}
	b, ok := stateOrder[other]
	if !ok {
		return false
	}
	return a >= b
}

// ParseState converts a raw status string into a State
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}
