package aave

import (
	clierr "aaveclient/internal/errors"
)

type sequenceState int

const (
	stateNoApprovalNeeded sequenceState = iota
	stateApprovalPending
	stateApprovalSent
	stateActionReady
)

// nonceSequence tracks the wallet nonce across an approve-then-act pair.
// Skipping an unneeded approval must not consume a nonce, while a sent
// approval shifts the dependent action to the next one; making the rule a
// state machine keeps it auditable instead of ad hoc arithmetic.
type nonceSequence struct {
	base  uint64
	state sequenceState
}

func newNonceSequence(base uint64, needsApproval bool) *nonceSequence {
	state := stateNoApprovalNeeded
	if needsApproval {
		state = stateApprovalPending
	}
	return &nonceSequence{base: base, state: state}
}

// ApprovalNonce is the nonce the approval transaction must use.
func (s *nonceSequence) ApprovalNonce() (uint64, error) {
	if s.state != stateApprovalPending {
		return 0, clierr.New(clierr.CodeInternal, "approval nonce requested outside the approval step")
	}
	return s.base, nil
}

// ApprovalSent records that an approval transaction was broadcast.
func (s *nonceSequence) ApprovalSent() {
	if s.state == stateApprovalPending {
		s.state = stateApprovalSent
	}
}

// ApprovalSkipped records that the allowance already covered the amount and
// no approval transaction was sent.
func (s *nonceSequence) ApprovalSkipped() {
	if s.state == stateApprovalPending {
		s.state = stateActionReady
	}
}

// ActionNonce is the nonce for the primary action: base+1 when an approval
// was actually broadcast, the unchanged base otherwise.
func (s *nonceSequence) ActionNonce() (uint64, error) {
	switch s.state {
	case stateNoApprovalNeeded, stateActionReady:
		return s.base, nil
	case stateApprovalSent:
		return s.base + 1, nil
	default:
		return 0, clierr.New(clierr.CodeInternal, "action nonce requested before the approval step resolved")
	}
}
