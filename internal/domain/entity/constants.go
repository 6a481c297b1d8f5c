package entity

import "time"

// Payment term status constants
const (
	PaymentStatusUpcoming = "upcoming"
	PaymentStatusDue      = "due"
	PaymentStatusPaid     = "paid"
)

// Notification kind constants
const (
	NotificationKindInfo    = "info"
	NotificationKindSuccess = "success"
	NotificationKindWarning = "warning"
	NotificationKindError   = "error"
)

// Activity action constants
const (
	ActionBillSubmitted     = "bill_submitted"
	ActionReviewStarted     = "review_started"
	ActionOfferMade         = "offer_made"
	ActionOfferAccepted     = "offer_accepted"
	ActionOfferRejected     = "offer_rejected"
	ActionMDAReviewStarted  = "mda_review_started"
	ActionMDAApproved       = "mda_approved"
	ActionTermsSet          = "terms_set"
	ActionAgreementSent     = "agreement_sent"
	ActionTreasuryReview    = "treasury_review_started"
	ActionTermsAmended      = "terms_amended"
	ActionCertified         = "certified"
	ActionBillRejected      = "bill_rejected"
	ActionTransitionDenied  = "transition_denied"
	ActionDeedCreated       = "deed_created"
	ActionNotificationsSent = "notifications_sent"
)

// Outbox entry kind constants
const (
	OutboxKindNotify   = "notify"
	OutboxKindActivity = "activity"
	OutboxKindDeed     = "create_deed"
)

// Outbox entry status constants
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusDone       = "done"
	OutboxStatusFailed     = "failed"
	OutboxStatusDead       = "dead"
)

// OutboxClaimLease is how long a processing claim holds. An older claim is
// treated as abandoned by a crashed runner and may be claimed again.
const OutboxClaimLease = 5 * time.Minute
