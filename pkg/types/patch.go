package types

import "time"

// TransferPatch is a partial update of a Transfer. Nil fields are left untouched.
type TransferPatch struct {
	Status        *Status
	Phase         *Phase
	ApproveTxHash *string
	LockTxHash    *string
	NoticeTxHash  *string
	RedeemTxHash  *string
	RevokeTxHash  *string
	LatestTxHash  *string
	RetryCount    *int
	Message       *string
}

func (p TransferPatch) WithStatus(s Status) TransferPatch {
	p.Status = &s
	return p
}

func (p TransferPatch) WithPhase(phase Phase) TransferPatch {
	p.Phase = &phase
	return p
}

func (p TransferPatch) WithRetryCount(n int) TransferPatch {
	p.RetryCount = &n
	return p
}

func (p TransferPatch) WithMessage(msg string) TransferPatch {
	p.Message = &msg
	return p
}

func (p TransferPatch) WithLatestTxHash(hash string) TransferPatch {
	p.LatestTxHash = &hash
	return p
}

// WithPhaseTxHash sets the tx hash field belonging to phase.
func (p TransferPatch) WithPhaseTxHash(phase Phase, hash string) TransferPatch {
	switch phase {
	case PhaseApprove:
		p.ApproveTxHash = &hash
	case PhaseLock:
		p.LockTxHash = &hash
	case PhaseRedeem:
		p.RedeemTxHash = &hash
	case PhaseRevoke:
		p.RevokeTxHash = &hash
	}
	return p
}

func (p TransferPatch) WithNoticeTxHash(hash string) TransferPatch {
	p.NoticeTxHash = &hash
	return p
}

func (p TransferPatch) IsEmpty() bool {
	return p.Status == nil && p.Phase == nil && p.ApproveTxHash == nil && p.LockTxHash == nil &&
		p.NoticeTxHash == nil && p.RedeemTxHash == nil && p.RevokeTxHash == nil &&
		p.LatestTxHash == nil && p.RetryCount == nil && p.Message == nil
}

// Apply merges the patch into t. Phase tx hashes are write-once: writing the
// same value again is a no-op, a different value fails with ErrTxHashAlreadySet.
// A terminal transfer only accepts patches that change nothing.
func (p TransferPatch) Apply(t *Transfer, now time.Time) (bool, error) {
	next := t.Clone()
	for _, field := range []struct {
		dst *string
		src *string
		nam string
	}{
		{&next.ApproveTxHash, p.ApproveTxHash, "approveTxHash"},
		{&next.LockTxHash, p.LockTxHash, "lockTxHash"},
		{&next.NoticeTxHash, p.NoticeTxHash, "noticeTxHash"},
		{&next.RedeemTxHash, p.RedeemTxHash, "redeemTxHash"},
		{&next.RevokeTxHash, p.RevokeTxHash, "revokeTxHash"},
	} {
		if field.src == nil || *field.src == *field.dst {
			continue
		}
		if *field.dst != "" {
			return false, Errorf(ErrTxHashAlreadySet, "%s of %s is %s", field.nam, t.SecretHash, *field.dst)
		}
		*field.dst = *field.src
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Phase != nil {
		next.Phase = *p.Phase
	}
	if p.LatestTxHash != nil {
		next.LatestTxHash = *p.LatestTxHash
	}
	if p.RetryCount != nil {
		next.RetryCount = *p.RetryCount
	}
	if p.Message != nil {
		next.Message = *p.Message
	}
	changed := !sameTransfer(t, next)
	if !changed {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return false, Errorf(ErrTerminal, "%s is %s", t.SecretHash, t.Status)
	}
	next.UpdatedAt = now
	*t = *next
	return true, nil
}

func sameTransfer(a, b *Transfer) bool {
	return a.Status == b.Status && a.Phase == b.Phase &&
		a.ApproveTxHash == b.ApproveTxHash && a.LockTxHash == b.LockTxHash &&
		a.NoticeTxHash == b.NoticeTxHash && a.RedeemTxHash == b.RedeemTxHash &&
		a.RevokeTxHash == b.RevokeTxHash && a.LatestTxHash == b.LatestTxHash &&
		a.RetryCount == b.RetryCount && a.Message == b.Message
}
