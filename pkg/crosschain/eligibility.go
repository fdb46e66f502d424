package crosschain

import (
	"github.com/scalarorg/xtransfer/pkg/types"
)

// CurrentPhase is the phase whose transaction the transfer is waiting on.
func CurrentPhase(t *types.Transfer) types.Phase {
	if t.Status == types.StatusSentHashConfirming {
		return t.Phase
	}
	if phase := t.Status.PhaseOf(); phase != types.PhaseNone {
		return phase
	}
	return t.Phase
}

// CheckEligible reports whether phase may be started from the transfer's
// current status. Phases only move forward: Approve, Lock, then Redeem or Revoke.
func CheckEligible(t *types.Transfer, phase types.Phase) error {
	if phase == types.PhaseNone {
		return types.Errorf(types.ErrValidation, "no phase to start")
	}
	if t.Status.IsTerminal() {
		return types.Errorf(types.ErrTerminal, "%s is %s", t.SecretHash, t.Status)
	}
	if t.Status.IsSending() {
		return types.Errorf(types.ErrPhaseInFlight, "%s is %s", t.SecretHash, t.Status)
	}
	if t.Status.IsAwaitingChain() && CurrentPhase(t) == phase {
		return types.Errorf(types.ErrPhaseInFlight, "%s is %s", t.SecretHash, t.Status)
	}
	if eligible(t, phase) {
		return nil
	}
	return types.Errorf(types.ErrNotEligible, "%s cannot start %s from %s", t.SecretHash, phase, t.Status)
}

func eligible(t *types.Transfer, phase types.Phase) bool {
	s := t.Status
	switch phase {
	case types.PhaseApprove:
		return t.NeedsApprove() && (s == types.StatusWaitingCross || s == types.StatusApproveSendFail)
	case types.PhaseLock:
		switch s {
		case types.StatusApproved, types.StatusLockSendFail, types.StatusLockFail:
			return true
		case types.StatusWaitingCross:
			return !t.NeedsApprove()
		}
	case types.PhaseRedeem:
		switch s {
		case types.StatusLocked, types.StatusBuddyLocked, types.StatusRedeemSendFail, types.StatusRedeemFail:
			return true
		}
	case types.PhaseRevoke:
		switch s {
		case types.StatusLocked, types.StatusBuddyLocked, types.StatusRedeemSent, types.StatusRedeemSendFail,
			types.StatusRedeemFail, types.StatusRevokeSendFail:
			return true
		case types.StatusSentHashConfirming:
			return t.Phase == types.PhaseRedeem
		}
	}
	return false
}
