package types

import "strings"

type Action string

const (
	ActionApprove       Action = "approve"
	ActionLock          Action = "lock"
	ActionRedeem        Action = "redeem"
	ActionRevoke        Action = "revoke"
	ActionDelegateClaim Action = "delegateClaim"
)

func (a Action) Phase() Phase {
	switch a {
	case ActionApprove:
		return PhaseApprove
	case ActionLock:
		return PhaseLock
	case ActionRedeem:
		return PhaseRedeem
	case ActionRevoke:
		return PhaseRevoke
	}
	return PhaseNone
}

func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.TrimSpace(raw)); a {
	case ActionApprove, ActionLock, ActionRedeem, ActionRevoke, ActionDelegateClaim:
		return a, nil
	}
	for _, a := range []Action{ActionApprove, ActionLock, ActionRedeem, ActionRevoke, ActionDelegateClaim} {
		if strings.EqualFold(string(a), raw) {
			return a, nil
		}
	}
	return "", Errorf(ErrValidation, "unknown action %q", raw)
}

// WalletKind selects the signing backend.
type WalletKind string

const (
	WalletLocal   WalletKind = "local"
	WalletDeviceA WalletKind = "ledger"
	WalletDeviceB WalletKind = "trezor"
)
