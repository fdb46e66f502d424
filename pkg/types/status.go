package types

import "fmt"

type Status string

const (
	StatusWaitingCross       Status = "waitingCross"
	StatusSentHashConfirming Status = "sentHashConfirming"

	StatusApproveSending              Status = "ApproveSending"
	StatusApproveSent                 Status = "ApproveSent"
	StatusApproved                    Status = "Approved"
	StatusApproveSendFail             Status = "ApproveSendFail"
	StatusApproveSendFailAfterRetries Status = "ApproveSendFailAfterRetries"

	StatusLockSending              Status = "LockSending"
	StatusLockSent                 Status = "LockSent"
	StatusLocked                   Status = "Locked"
	StatusBuddyLocked              Status = "BuddyLocked"
	StatusLockSendFail             Status = "LockSendFail"
	StatusLockFail                 Status = "LockFail"
	StatusLockSendFailAfterRetries Status = "LockSendFailAfterRetries"

	StatusRedeemSending              Status = "RedeemSending"
	StatusRedeemSent                 Status = "RedeemSent"
	StatusRedeemed                   Status = "Redeemed"
	StatusRedeemSendFail             Status = "RedeemSendFail"
	StatusRedeemFail                 Status = "RedeemFail"
	StatusRedeemSendFailAfterRetries Status = "RedeemSendFailAfterRetries"

	StatusRevokeSending              Status = "RevokeSending"
	StatusRevokeSent                 Status = "RevokeSent"
	StatusRevoked                    Status = "Revoked"
	StatusRevokeSendFail             Status = "RevokeSendFail"
	StatusRevokeSendFailAfterRetries Status = "RevokeSendFailAfterRetries"
)

// Phase is one discrete on-chain step of a transfer.
type Phase string

const (
	PhaseNone    Phase = ""
	PhaseApprove Phase = "Approve"
	PhaseLock    Phase = "Lock"
	PhaseRedeem  Phase = "Redeem"
	PhaseRevoke  Phase = "Revoke"
)

// Rank orders phases: Approve < Lock < Redeem = Revoke.
func (p Phase) Rank() int {
	switch p {
	case PhaseApprove:
		return 1
	case PhaseLock:
		return 2
	case PhaseRedeem, PhaseRevoke:
		return 3
	default:
		return 0
	}
}

func (p Phase) Action() Action {
	switch p {
	case PhaseApprove:
		return ActionApprove
	case PhaseLock:
		return ActionLock
	case PhaseRedeem:
		return ActionRedeem
	case PhaseRevoke:
		return ActionRevoke
	}
	return ""
}

type phaseStatuses struct {
	sending, sent, confirmed, sendFail, fail, afterRetries Status
}

var phaseTable = map[Phase]phaseStatuses{
	PhaseApprove: {StatusApproveSending, StatusApproveSent, StatusApproved, StatusApproveSendFail, StatusApproveSendFail, StatusApproveSendFailAfterRetries},
	PhaseLock:    {StatusLockSending, StatusLockSent, StatusLocked, StatusLockSendFail, StatusLockFail, StatusLockSendFailAfterRetries},
	PhaseRedeem:  {StatusRedeemSending, StatusRedeemSent, StatusRedeemed, StatusRedeemSendFail, StatusRedeemFail, StatusRedeemSendFailAfterRetries},
	PhaseRevoke:  {StatusRevokeSending, StatusRevokeSent, StatusRevoked, StatusRevokeSendFail, StatusRevokeSendFail, StatusRevokeSendFailAfterRetries},
}

func mustPhase(p Phase) phaseStatuses {
	statuses, ok := phaseTable[p]
	if !ok {
		panic(fmt.Sprintf("unknown phase %q", p))
	}
	return statuses
}

func SendingStatus(p Phase) Status      { return mustPhase(p).sending }
func SentStatus(p Phase) Status         { return mustPhase(p).sent }
func ConfirmedStatus(p Phase) Status    { return mustPhase(p).confirmed }
func SendFailStatus(p Phase) Status     { return mustPhase(p).sendFail }
func AfterRetriesStatus(p Phase) Status { return mustPhase(p).afterRetries }

// RevertStatus is the status of a phase whose mined transaction reverted.
// Approve and Revoke have no dedicated state and fall back to SendFail.
func RevertStatus(p Phase) Status { return mustPhase(p).fail }

// PhaseOf returns the phase a status belongs to. Statuses shared between
// phases (waitingCross, sentHashConfirming) return PhaseNone.
func (s Status) PhaseOf() Phase {
	for phase, statuses := range phaseTable {
		switch s {
		case statuses.sending, statuses.sent, statuses.confirmed, statuses.sendFail, statuses.fail, statuses.afterRetries:
			return phase
		}
	}
	if s == StatusBuddyLocked {
		return PhaseLock
	}
	return PhaseNone
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusRedeemed, StatusRevoked,
		StatusApproveSendFailAfterRetries, StatusLockSendFailAfterRetries,
		StatusRedeemSendFailAfterRetries, StatusRevokeSendFailAfterRetries:
		return true
	}
	return false
}

func (s Status) IsSending() bool {
	switch s {
	case StatusApproveSending, StatusLockSending, StatusRedeemSending, StatusRevokeSending:
		return true
	}
	return false
}

// IsAwaitingChain reports whether a transaction has been accepted by the
// network and its outcome is not yet known.
func (s Status) IsAwaitingChain() bool {
	switch s {
	case StatusApproveSent, StatusLockSent, StatusRedeemSent, StatusRevokeSent, StatusSentHashConfirming:
		return true
	}
	return false
}

// IsFailure reports a transient failure state of some phase.
func (s Status) IsFailure() bool {
	switch s {
	case StatusApproveSendFail, StatusLockSendFail, StatusLockFail,
		StatusRedeemSendFail, StatusRedeemFail, StatusRevokeSendFail:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if s == StatusWaitingCross || s == StatusSentHashConfirming || s.PhaseOf() != PhaseNone {
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}
