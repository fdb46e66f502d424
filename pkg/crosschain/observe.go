package crosschain

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Target is one transaction of a transfer the reconciler should poll.
type Target struct {
	Phase  types.Phase
	Chain  types.Chain
	TxHash string
}

// Observation is what the reconciler learned about one target.
type Observation struct {
	SecretHash string
	Target     Target
	Tx         types.TxObservation
	//Set only when the destination chain was searched for the storeman's lock
	Buddy *types.BuddyLock
}

// Targets lists the transactions whose outcome can still move the transfer.
// Once the transfer may be redeemed or revoked, every pending Redeem and
// Revoke attempt in records is polled as well, so that the first to confirm
// settles the transfer whichever attempt it is.
func Targets(t *types.Transfer, records []*types.TxRecord) []Target {
	var targets []Target
	current := CurrentPhase(t)
	if t.Status.IsAwaitingChain() && current != types.PhaseNone {
		if hash := t.SubmittedTxHash(); hash != "" {
			targets = append(targets, Target{Phase: current, Chain: t.ChainOf(current), TxHash: hash})
		}
	}
	if !RaceOpen(t) {
		return targets
	}
	addRival := func(phase types.Phase, hash string) {
		if hash == "" || containsHash(targets, hash) {
			return
		}
		targets = append(targets, Target{Phase: phase, Chain: t.ChainOf(phase), TxHash: hash})
	}
	for _, record := range records {
		phase := record.Action.Phase()
		if record.Status != types.TxRecordPending || phase.Rank() != types.PhaseRedeem.Rank() {
			continue
		}
		addRival(phase, record.TxHash)
	}
	for _, rival := range []types.Phase{types.PhaseRedeem, types.PhaseRevoke} {
		if rival != current {
			addRival(rival, t.PhaseTxHash(rival))
		}
	}
	return targets
}

// RaceOpen reports whether Redeem and Revoke attempts may both be live.
func RaceOpen(t *types.Transfer) bool {
	return !t.Status.IsTerminal() && CurrentPhase(t).Rank() == types.PhaseRedeem.Rank()
}

// WantsBuddyLock reports whether the destination chain should be searched
// for the storeman's counter-lock.
func WantsBuddyLock(t *types.Transfer) bool {
	return t.Status == types.StatusLocked || (t.Status.IsAwaitingChain() && CurrentPhase(t) == types.PhaseLock)
}

func containsHash(targets []Target, hash string) bool {
	for _, target := range targets {
		if target.TxHash == hash {
			return true
		}
	}
	return false
}

// ApplyObservation folds a chain observation into the transfer. An outcome
// that arrives after the transfer became terminal through another phase is
// recorded as stale and reported with ErrTerminal.
func (m *Machine) ApplyObservation(ctx context.Context, obs Observation) (*types.Transfer, bool, error) {
	stale := false
	var recordStatus types.TxRecordStatus
	updated, changed, err := m.store.UpdateTransfer(ctx, obs.SecretHash, func(current *types.Transfer) (types.TransferPatch, error) {
		if current.Status.IsTerminal() {
			if obs.Target.TxHash != "" && settles(obs.Tx.State) && !settledBy(current, obs.Target.TxHash) {
				stale = true
			}
			return types.TransferPatch{}, nil
		}
		patch, status := m.observationPatch(current, obs)
		recordStatus = status
		return patch, nil
	})
	if err != nil {
		return updated, false, err
	}
	if stale {
		log.Info().Str("secretHash", obs.SecretHash).Str("txHash", obs.Target.TxHash).Str("state", obs.Tx.State.String()).
			Str("status", string(updated.Status)).Msg("[Machine] [ApplyObservation] late result for a settled transfer")
		m.setRecordStatus(ctx, obs.Target.TxHash, types.TxRecordStale)
		return updated, false, types.Errorf(types.ErrTerminal, "%s is %s", obs.SecretHash, updated.Status)
	}
	if recordStatus != "" {
		m.setRecordStatus(ctx, obs.Target.TxHash, recordStatus)
	}
	if changed {
		m.opts.Metrics.IncTransition(string(updated.Status))
		log.Info().Str("secretHash", obs.SecretHash).Str("txHash", obs.Target.TxHash).Str("state", obs.Tx.State.String()).
			Str("status", string(updated.Status)).Msg("[Machine] [ApplyObservation] transfer updated")
	}
	return updated, changed, nil
}

func (m *Machine) observationPatch(current *types.Transfer, obs Observation) (types.TransferPatch, types.TxRecordStatus) {
	phase := obs.Target.Phase
	hash := obs.Target.TxHash
	isCurrent := hash != "" && current.Status.IsAwaitingChain() && hash == current.SubmittedTxHash()
	isRival := hash != "" && !isCurrent && phase.Rank() == types.PhaseRedeem.Rank() && RaceOpen(current)

	var patch types.TransferPatch
	var recordStatus types.TxRecordStatus
	switch {
	case isCurrent:
		switch obs.Tx.State {
		case types.TxMined:
			if current.Status != types.StatusSentHashConfirming {
				patch = patch.WithStatus(types.StatusSentHashConfirming).WithPhase(phase)
			}
		case types.TxConfirmed:
			patch = patch.WithStatus(types.ConfirmedStatus(phase)).WithPhase(phase).WithMessage("")
			recordStatus = types.TxRecordConfirmed
		case types.TxReverted:
			patch, _ = m.failurePatch(current, phase, types.RevertStatus(phase), errors.New("transaction reverted"))
			recordStatus = types.TxRecordFailed
		case types.TxUnknown:
			if m.dropped(current) {
				patch, _ = m.failurePatch(current, phase, types.SendFailStatus(phase), errors.New("transaction dropped"))
				recordStatus = types.TxRecordFailed
			}
		}
	case isRival:
		switch obs.Tx.State {
		case types.TxConfirmed:
			patch = patch.WithStatus(types.ConfirmedStatus(phase)).WithPhase(phase).WithLatestTxHash(hash).WithMessage("")
			recordStatus = types.TxRecordConfirmed
		case types.TxReverted:
			recordStatus = types.TxRecordFailed
		}
	}

	if obs.Buddy != nil && obs.Buddy.Found {
		lockSettled := current.Status == types.StatusLocked ||
			(patch.Status != nil && *patch.Status == types.StatusLocked)
		if lockSettled {
			patch = patch.WithStatus(types.StatusBuddyLocked)
		}
		if current.NoticeTxHash == "" && obs.Buddy.TxHash != "" {
			patch = patch.WithNoticeTxHash(obs.Buddy.TxHash)
		}
	}
	return patch, recordStatus
}

func (m *Machine) dropped(t *types.Transfer) bool {
	if m.opts.DroppedAfter <= 0 || t.UpdatedAt.IsZero() {
		return false
	}
	return m.now().Sub(t.UpdatedAt) > m.opts.DroppedAfter
}

func (m *Machine) setRecordStatus(ctx context.Context, txHash string, status types.TxRecordStatus) {
	if err := m.store.UpdateTxRecordStatus(ctx, txHash, status); err != nil && !errors.Is(err, types.ErrTransferNotFound) {
		log.Warn().Err(err).Str("txHash", txHash).Str("recordStatus", string(status)).
			Msg("[Machine] [setRecordStatus] failed to update tx record")
	}
}

func settles(state types.TxState) bool {
	return state == types.TxConfirmed || state == types.TxReverted
}

// settledBy reports whether txHash is the transaction that made t terminal.
func settledBy(t *types.Transfer, txHash string) bool {
	return txHash == t.LatestTxHash || txHash == t.PhaseTxHash(t.Status.PhaseOf())
}
