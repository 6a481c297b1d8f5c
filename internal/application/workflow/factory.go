package workflow

import (
	"context"
	"fmt"
	"strings"

	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// CertificateChecker reports whether a certificate number is already in use
type CertificateChecker interface {
	CertificateExists(ctx context.Context, certificateNumber, excludeBillID string) (bool, error)
}

type guard = domainwf.GuardFunc[*transitionInput]

// treasuryStages are the states from which Treasury may amend or certify
var treasuryStages = []domainwf.State{
	domainwf.StateMDAApproved,
	domainwf.StateTermsSet,
	domainwf.StateAgreementSent,
	domainwf.StateTreasuryReviewing,
}

// BuildBillLifecycle configures the bill lifecycle transition table
func BuildBillLifecycle(certs CertificateChecker) domainwf.StateMachineBuilder[*transitionInput] {
	b := domainwf.NewBuilder[*transitionInput]()

	// Who may fire what
	b.Authorize(domainwf.TriggerStartReview, domainwf.RoleSPV)
	b.Authorize(domainwf.TriggerMakeOffer, domainwf.RoleSPV)
	b.Authorize(domainwf.TriggerAcceptOffer, domainwf.RoleSupplier)
	b.Authorize(domainwf.TriggerRejectOffer, domainwf.RoleSupplier)
	b.Authorize(domainwf.TriggerStartMDAReview, domainwf.RoleMDA)
	b.Authorize(domainwf.TriggerApprove, domainwf.RoleMDA)
	b.Authorize(domainwf.TriggerSetTerms, domainwf.RoleMDA, domainwf.RoleSystem)
	b.Authorize(domainwf.TriggerSendAgreement, domainwf.RoleMDA, domainwf.RoleSystem)
	b.Authorize(domainwf.TriggerStartTreasuryReview, domainwf.RoleTreasury, domainwf.RoleSystem)
	b.Authorize(domainwf.TriggerAmendTerms, domainwf.RoleTreasury)
	b.Authorize(domainwf.TriggerCertify, domainwf.RoleTreasury)
	b.Authorize(domainwf.TriggerReject, domainwf.RoleMDA, domainwf.RoleTreasury)

	supplier := allOf(requireOwnership, requireOffer)
	certify := allOf(requireOwnership, certificateUnique(certs))

	b.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerStartReview, domainwf.StateUnderReview).
		PermitIf(domainwf.TriggerMakeOffer, domainwf.StateOfferMade, requireNoLiveOffer)

	b.Configure(domainwf.StateUnderReview).
		PermitIf(domainwf.TriggerMakeOffer, domainwf.StateOfferMade, requireNoLiveOffer)

	b.Configure(domainwf.StateOfferMade).
		PermitIf(domainwf.TriggerAcceptOffer, domainwf.StateOfferAccepted, supplier).
		PermitIf(domainwf.TriggerRejectOffer, domainwf.StateSubmitted, supplier)

	b.Configure(domainwf.StateOfferAccepted).
		PermitIf(domainwf.TriggerStartMDAReview, domainwf.StateMDAReviewing, requireOwnership).
		PermitIf(domainwf.TriggerApprove, domainwf.StateMDAApproved, requireOwnership)

	b.Configure(domainwf.StateMDAReviewing).
		PermitIf(domainwf.TriggerApprove, domainwf.StateMDAApproved, requireOwnership)

	// Document signing path
	b.Configure(domainwf.StateMDAApproved).
		PermitIf(domainwf.TriggerSetTerms, domainwf.StateTermsSet, requireOwnership)
	b.Configure(domainwf.StateTermsSet).
		PermitIf(domainwf.TriggerSendAgreement, domainwf.StateAgreementSent, requireOwnership)
	for _, st := range []domainwf.State{domainwf.StateMDAApproved, domainwf.StateTermsSet, domainwf.StateAgreementSent} {
		b.Configure(st).Permit(domainwf.TriggerStartTreasuryReview, domainwf.StateTreasuryReviewing)
	}

	for _, st := range treasuryStages {
		b.Configure(st).
			PermitReentryIf(domainwf.TriggerAmendTerms, requireOwnership).
			PermitIf(domainwf.TriggerCertify, domainwf.StateCertified, certify)
	}

	// Permanent rejection from every non-terminal state
	for _, st := range domainwf.AllStates() {
		if st.IsTerminal() {
			continue
		}
		b.Configure(st).PermitIf(domainwf.TriggerReject, domainwf.StateRejected, requireOwnership)
	}

	return b
}

// checkOwnership enforces that the actor acts on a bill within their reach:
// suppliers on their own bills and MDA officers on bills of their MDA.
// Other roles are not scoped.
func checkOwnership(in *transitionInput) error {
	switch in.actor.Role {
	case domainwf.RoleSupplier:
		if in.actor.UserID == "" || in.actor.UserID != in.bill.SupplierID {
			return ErrNotBillSupplier
		}
	case domainwf.RoleMDA:
		if in.actor.RoleScopeID == "" || in.actor.RoleScopeID != in.bill.MDAID {
			return fmt.Errorf("%w: actor mda %q, bill mda %q", ErrScopeMismatch, in.actor.RoleScopeID, in.bill.MDAID)
		}
	}
	return nil
}

func requireOwnership(ctx context.Context, in *transitionInput) error {
	return checkOwnership(in)
}

func requireOffer(ctx context.Context, in *transitionInput) error {
	if !in.bill.HasLiveOffer() {
		return ErrNoOffer
	}
	return nil
}

func requireNoLiveOffer(ctx context.Context, in *transitionInput) error {
	if in.bill.HasLiveOffer() {
		return ErrAlreadyOffered
	}
	return nil
}

func certificateUnique(certs CertificateChecker) guard {
	return func(ctx context.Context, in *transitionInput) error {
		number := strings.TrimSpace(in.payload.CertificateNumber)
		exists, err := certs.CertificateExists(ctx, number, in.bill.ID)
		if err != nil {
			return fmt.Errorf("check certificate: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCertificate, number)
		}
		return nil
	}
}

// allOf runs guards in order and returns the first denial
func allOf(guards ...guard) guard {
	return func(ctx context.Context, in *transitionInput) error {
		for _, g := range guards {
			if err := g(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}
}
