package event

// Type identifies the type of domain event
type Type string

const (
	TypeBillSubmitted     Type = "bill.submitted"
	TypeBillTransitioned  Type = "bill.transitioned"
	TypeTransitionDenied  Type = "bill.transition_denied"
	TypeSideEffectsQueued Type = "outbox.queued"
	TypeSideEffectFailed  Type = "outbox.failed"
	TypeDeedCreated       Type = "deed.created"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeBillSubmitted,
		TypeBillTransitioned,
		TypeTransitionDenied,
		TypeSideEffectsQueued,
		TypeSideEffectFailed,
		TypeDeedCreated:
		return true
	default:
		return false
	}
}
