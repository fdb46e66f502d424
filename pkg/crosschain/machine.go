package crosschain

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/scalarorg/xtransfer/pkg/pipeline"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Writes that follow a broadcast outlive the caller's context, bounded by this.
const PERSIST_TIMEOUT = 10 * time.Second

type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Options struct {
	RetryCeiling int
	RetryDelay   time.Duration
	//Zero disables dropped transaction detection
	DroppedAfter time.Duration
	Metrics      *metrics.Registry
}

// Machine owns every status transition of a transfer. User initiated phases
// and chain observations both go through the store's serialized update path.
type Machine struct {
	store    db.HistoryStore
	submit   Submitter
	opts     Options
	mu       sync.Mutex
	inFlight map[string]types.Phase
	now      func() time.Time
}

func NewMachine(store db.HistoryStore, submit Submitter, opts Options) *Machine {
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = 3
	}
	return &Machine{
		store:    store,
		submit:   submit,
		opts:     opts,
		inFlight: make(map[string]types.Phase),
		now:      time.Now,
	}
}

func (m *Machine) claim(secretHash string, phase types.Phase) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.inFlight[secretHash]; ok {
		return nil, types.Errorf(types.ErrPhaseInFlight, "%s is driving %s", secretHash, current)
	}
	m.inFlight[secretHash] = phase
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.inFlight, secretHash)
	}, nil
}

// InFlight returns the phase being driven for secretHash, if any.
func (m *Machine) InFlight(secretHash string) (types.Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phase, ok := m.inFlight[secretHash]
	return phase, ok
}

// InitiatePhase drives action for the transfer. Submission failures are
// retried automatically until the retry ceiling; validation and signing
// errors return without changing the transfer.
func (m *Machine) InitiatePhase(ctx context.Context, secretHash string, action types.Action, creds signer.Credentials) (*types.Transfer, error) {
	phase := action.Phase()
	if phase == types.PhaseNone {
		return nil, types.Errorf(types.ErrValidation, "%s is not a transfer phase", action)
	}
	release, err := m.claim(secretHash, phase)
	if err != nil {
		return nil, err
	}
	defer release()

	for {
		transfer, err := m.store.GetTransfer(ctx, secretHash)
		if err != nil {
			return nil, err
		}
		if err := CheckEligible(transfer, phase); err != nil {
			return transfer, err
		}
		log.Info().Str("secretHash", secretHash).Str("phase", string(phase)).Str("status", string(transfer.Status)).
			Int("retryCount", transfer.RetryCount).Msg("[Machine] [InitiatePhase] submitting")

		result, err := m.submit.Submit(ctx, pipeline.Request{
			Action:          action,
			Transfer:        transfer,
			Credentials:     creds,
			BeforeBroadcast: m.markSending(secretHash, phase),
		})
		if err == nil {
			persistCtx, cancel := detach(ctx)
			defer cancel()
			return m.markSent(persistCtx, secretHash, phase, result.TxHash)
		}
		if !types.IsSubmissionFailure(err) {
			return transfer, err
		}

		persistCtx, cancel := detach(ctx)
		updated, retry, failErr := m.markSendFailed(persistCtx, secretHash, phase, err)
		cancel()
		if failErr != nil {
			return updated, failErr
		}
		if !retry {
			m.opts.Metrics.IncRetry(string(phase), "exhausted")
			log.Warn().Err(err).Str("secretHash", secretHash).Str("phase", string(phase)).
				Msg("[Machine] [InitiatePhase] retries exhausted")
			return updated, err
		}
		m.opts.Metrics.IncRetry(string(phase), "scheduled")
		log.Warn().Err(err).Str("secretHash", secretHash).Str("phase", string(phase)).Int("retryCount", updated.RetryCount).
			Dur("delay", m.opts.RetryDelay).Msg("[Machine] [InitiatePhase] submission failed, retrying")
		if err := wait(ctx, m.opts.RetryDelay); err != nil {
			return updated, err
		}
	}
}

// markSending persists the Sending status once the transaction is signed.
func (m *Machine) markSending(secretHash string, phase types.Phase) pipeline.BeforeBroadcastFunc {
	return func(ctx context.Context, _ *types.UnsignedTx, txHash string) error {
		_, changed, err := m.store.UpdateTransfer(ctx, secretHash, func(current *types.Transfer) (types.TransferPatch, error) {
			if err := CheckEligible(current, phase); err != nil {
				return types.TransferPatch{}, err
			}
			return types.TransferPatch{}.
				WithStatus(types.SendingStatus(phase)).
				WithPhase(phase).
				WithLatestTxHash(txHash).
				WithMessage(""), nil
		})
		if err == nil && changed {
			m.opts.Metrics.IncTransition(string(types.SendingStatus(phase)))
		}
		return err
	}
}

func (m *Machine) markSent(ctx context.Context, secretHash string, phase types.Phase, txHash string) (*types.Transfer, error) {
	updated, _, err := m.store.UpdateTransfer(ctx, secretHash, func(current *types.Transfer) (types.TransferPatch, error) {
		patch := types.TransferPatch{}.
			WithStatus(types.SentStatus(phase)).
			WithPhase(phase).
			WithLatestTxHash(txHash).
			WithRetryCount(0)
		if current.PhaseTxHash(phase) == "" {
			patch = patch.WithPhaseTxHash(phase, txHash)
		}
		return patch, nil
	})
	if err != nil {
		log.Error().Err(err).Str("secretHash", secretHash).Str("txHash", txHash).
			Msg("[Machine] [markSent] failed to persist broadcast transaction")
		return updated, err
	}
	m.opts.Metrics.IncTransition(string(types.SentStatus(phase)))
	return updated, nil
}

// markSendFailed applies the retry rule and reports whether another attempt
// is allowed.
func (m *Machine) markSendFailed(ctx context.Context, secretHash string, phase types.Phase, cause error) (*types.Transfer, bool, error) {
	retry := false
	updated, _, err := m.store.UpdateTransfer(ctx, secretHash, func(current *types.Transfer) (types.TransferPatch, error) {
		var patch types.TransferPatch
		patch, retry = m.failurePatch(current, phase, types.SendFailStatus(phase), cause)
		return patch, nil
	})
	if err != nil {
		return updated, false, err
	}
	m.opts.Metrics.IncTransition(string(updated.Status))
	return updated, retry, nil
}

func (m *Machine) failurePatch(current *types.Transfer, phase types.Phase, failStatus types.Status, cause error) (types.TransferPatch, bool) {
	patch := types.TransferPatch{}.WithPhase(phase).WithMessage(cause.Error())
	if current.RetryCount < m.opts.RetryCeiling {
		return patch.WithStatus(failStatus).WithRetryCount(current.RetryCount + 1), true
	}
	return patch.WithStatus(types.AfterRetriesStatus(phase)), false
}

// RecoverInterrupted resolves transfers left in a Sending status that no
// submission is driving any more: those of a previous process, and those
// whose post-broadcast write failed. A transfer with a signed hash goes back
// to waiting for the chain, where dropped detection settles it if the
// broadcast never happened. The rest count as failed submissions.
func (m *Machine) RecoverInterrupted(ctx context.Context) (int, error) {
	sending, err := m.store.QueryTransfers(ctx, types.TransferFilter{
		Statuses: []types.Status{types.StatusApproveSending, types.StatusLockSending, types.StatusRedeemSending, types.StatusRevokeSending},
	})
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, transfer := range sending {
		if _, ok := m.InFlight(transfer.SecretHash); ok {
			continue
		}
		_, changed, err := m.store.UpdateTransfer(ctx, transfer.SecretHash, func(current *types.Transfer) (types.TransferPatch, error) {
			//Sending is only written under a claim, so checking again here under the store lock is final
			if !current.Status.IsSending() {
				return types.TransferPatch{}, nil
			}
			if _, ok := m.InFlight(current.SecretHash); ok {
				return types.TransferPatch{}, nil
			}
			phase := current.Status.PhaseOf()
			if current.LatestTxHash != "" {
				return types.TransferPatch{}.WithStatus(types.SentStatus(phase)), nil
			}
			return types.TransferPatch{}.WithStatus(types.SendFailStatus(phase)).WithMessage("interrupted before broadcast"), nil
		})
		if err != nil {
			log.Error().Err(err).Str("secretHash", transfer.SecretHash).Msg("[Machine] [RecoverInterrupted] failed to recover transfer")
			continue
		}
		if changed {
			recovered++
		}
	}
	if recovered > 0 {
		log.Info().Int("count", recovered).Msg("[Machine] [RecoverInterrupted] recovered interrupted submissions")
	}
	return recovered, nil
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), PERSIST_TIMEOUT)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
