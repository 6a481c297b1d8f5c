package workflow

// Trigger represents an actor command that can cause a state transition
type Trigger string

const (
	TriggerStartReview         Trigger = "START_REVIEW"
	TriggerMakeOffer           Trigger = "MAKE_OFFER"
	TriggerAcceptOffer         Trigger = "ACCEPT_OFFER"
	TriggerRejectOffer         Trigger = "REJECT_OFFER"
	TriggerStartMDAReview      Trigger = "START_MDA_REVIEW"
	TriggerApprove             Trigger = "APPROVE"
	TriggerSetTerms            Trigger = "SET_TERMS"
	TriggerSendAgreement       Trigger = "SEND_AGREEMENT"
	TriggerStartTreasuryReview Trigger = "START_TREASURY_REVIEW"
	TriggerAmendTerms          Trigger = "AMEND_TERMS"
	TriggerCertify             Trigger = "CERTIFY"
	TriggerReject              Trigger = "REJECT"
)

var validTriggers = map[Trigger]bool{
	TriggerStartReview:         true,
	TriggerMakeOffer:           true,
	TriggerAcceptOffer:         true,
	TriggerRejectOffer:         true,
	TriggerStartMDAReview:      true,
	TriggerApprove:             true,
	TriggerSetTerms:            true,
	TriggerSendAgreement:       true,
	TriggerStartTreasuryReview: true,
	TriggerAmendTerms:          true,
	TriggerCertify:             true,
	TriggerReject:              true,
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsValid returns true if the trigger is one of the defined constants
func (t Trigger) IsValid() bool {
	return validTriggers[t]
}
