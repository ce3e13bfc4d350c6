package aave

import (
	"testing"

	clierr "aaveclient/internal/errors"
)

func TestNonceSequenceApprovalSent(t *testing.T) {
	seq := newNonceSequence(7, true)

	approvalNonce, err := seq.ApprovalNonce()
	if err != nil {
		t.Fatalf("ApprovalNonce: %v", err)
	}
	if approvalNonce != 7 {
		t.Fatalf("approval nonce = %d, want 7", approvalNonce)
	}

	seq.ApprovalSent()
	actionNonce, err := seq.ActionNonce()
	if err != nil {
		t.Fatalf("ActionNonce: %v", err)
	}
	if actionNonce != 8 {
		t.Fatalf("action nonce after sent approval = %d, want 8", actionNonce)
	}
}

func TestNonceSequenceApprovalSkipped(t *testing.T) {
	seq := newNonceSequence(7, true)
	if _, err := seq.ApprovalNonce(); err != nil {
		t.Fatalf("ApprovalNonce: %v", err)
	}
	seq.ApprovalSkipped()

	actionNonce, err := seq.ActionNonce()
	if err != nil {
		t.Fatalf("ActionNonce: %v", err)
	}
	if actionNonce != 7 {
		t.Fatalf("action nonce after skipped approval = %d, want 7", actionNonce)
	}
}

func TestNonceSequenceNoApprovalNeeded(t *testing.T) {
	seq := newNonceSequence(42, false)

	if _, err := seq.ApprovalNonce(); !clierr.Is(err, clierr.CodeInternal) {
		t.Fatalf("ApprovalNonce without approval step: err = %v, want internal error", err)
	}
	actionNonce, err := seq.ActionNonce()
	if err != nil {
		t.Fatalf("ActionNonce: %v", err)
	}
	if actionNonce != 42 {
		t.Fatalf("action nonce = %d, want 42", actionNonce)
	}
}

func TestNonceSequenceUnresolvedApproval(t *testing.T) {
	seq := newNonceSequence(7, true)
	if _, err := seq.ActionNonce(); !clierr.Is(err, clierr.CodeInternal) {
		t.Fatalf("ActionNonce before approval resolved: err = %v, want internal error", err)
	}
}
