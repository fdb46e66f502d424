package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/crosschain"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/scalarorg/xtransfer/pkg/types"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const DEFAULT_PARALLELISM = 8

type ChainQuery interface {
	GetTxStatus(ctx context.Context, chain types.Chain, txHash string) (types.TxObservation, error)
	FindBuddyLock(ctx context.Context, chain types.Chain, secretHash string) (types.BuddyLock, error)
}

type TransferSource interface {
	QueryTransfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error)
	ListTxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error)
}

type Applier interface {
	ApplyObservation(ctx context.Context, obs crosschain.Observation) (*types.Transfer, bool, error)
	RecoverInterrupted(ctx context.Context) (int, error)
}

type Options struct {
	Period time.Duration
	//Per call bound on chain status queries
	QueryTimeout time.Duration
	Parallelism  int
	Metrics      *metrics.Registry
}

// Reconciler polls the chains for the outcome of every non-terminal transfer.
// It only runs while at least one observer holds it.
type Reconciler struct {
	source    TransferSource
	chain     ChainQuery
	machine   Applier
	opts      Options
	observers *atomic.Int32
	rounds    *atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(source TransferSource, chain ChainQuery, machine Applier, opts Options) *Reconciler {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DEFAULT_PARALLELISM
	}
	if opts.Period <= 0 {
		opts.Period = 5 * time.Second
	}
	return &Reconciler{
		source:    source,
		chain:     chain,
		machine:   machine,
		opts:      opts,
		observers: atomic.NewInt32(0),
		rounds:    atomic.NewInt64(0),
	}
}

// Acquire registers an observer and starts polling for the first one. The
// returned function releases the observer; polling stops with the last.
func (r *Reconciler) Acquire(ctx context.Context) func() {
	r.mu.Lock()
	if r.observers.Inc() == 1 {
		r.startLocked(ctx)
	}
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			var cancel context.CancelFunc
			var done chan struct{}
			if r.observers.Dec() == 0 {
				cancel, done = r.detachLocked()
			}
			r.mu.Unlock()
			r.halt(cancel, done)
		})
	}
}

func (r *Reconciler) Observers() int32 {
	return r.observers.Load()
}

func (r *Reconciler) Rounds() int64 {
	return r.rounds.Load()
}

func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Start launches the polling loop. It is a no-op when already running.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked(ctx)
}

func (r *Reconciler) startLocked(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	log.Info().Dur("period", r.opts.Period).Msg("[Reconciler] started")
}

// Stop cancels the polling loop and waits for the current round to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.detachLocked()
	r.mu.Unlock()
	r.halt(cancel, done)
}

func (r *Reconciler) detachLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	return cancel, done
}

func (r *Reconciler) halt(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("[Reconciler] stopped")
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.opts.Period)
	defer ticker.Stop()
	for {
		if err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("[Reconciler] [loop] reconcile round failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce runs one polling round. Failures of individual transfers are
// logged and retried on the next round; only the store query fails the round.
// Submissions left in a Sending status with nobody driving them are adopted
// first so they are polled like any other broadcast.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	defer r.rounds.Inc()
	if _, err := r.machine.RecoverInterrupted(ctx); err != nil {
		log.Warn().Err(err).Msg("[Reconciler] [ReconcileOnce] failed to adopt interrupted submissions")
	}
	transfers, err := r.source.QueryTransfers(ctx, types.TransferFilter{NonTerminal: true})
	if err != nil {
		return err
	}
	observed := 0
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Parallelism)
	for _, transfer := range transfers {
		targets := crosschain.Targets(transfer, r.pendingRecords(ctx, transfer))
		wantsBuddy := crosschain.WantsBuddyLock(transfer)
		if len(targets) == 0 && !wantsBuddy {
			continue
		}
		observed++
		transfer := transfer
		group.Go(func() error {
			r.reconcileTransfer(groupCtx, transfer, targets, wantsBuddy)
			return nil
		})
	}
	_ = group.Wait()
	r.opts.Metrics.SetObservedTransfers(observed)
	return nil
}

// pendingRecords loads the tx records needed to poll every Redeem and Revoke
// attempt of a transfer. Other transfers need none.
func (r *Reconciler) pendingRecords(ctx context.Context, transfer *types.Transfer) []*types.TxRecord {
	if !crosschain.RaceOpen(transfer) {
		return nil
	}
	records, err := r.source.ListTxRecords(ctx, transfer.SecretHash)
	if err != nil {
		log.Warn().Err(err).Str("secretHash", transfer.SecretHash).
			Msg("[Reconciler] [pendingRecords] failed to list tx records")
		return nil
	}
	return records
}

func (r *Reconciler) reconcileTransfer(ctx context.Context, transfer *types.Transfer, targets []crosschain.Target, wantsBuddy bool) {
	var buddy *types.BuddyLock
	if wantsBuddy {
		lock, err := r.findBuddyLock(ctx, transfer)
		if err != nil {
			log.Warn().Err(err).Str("secretHash", transfer.SecretHash).Str("chain", string(transfer.ToChain)).
				Msg("[Reconciler] [reconcileTransfer] buddy lock query failed")
		} else {
			buddy = &lock
		}
	}
	if len(targets) == 0 {
		if buddy != nil && buddy.Found {
			r.apply(ctx, crosschain.Observation{SecretHash: transfer.SecretHash, Buddy: buddy})
		}
		return
	}
	for _, target := range targets {
		observation, err := r.txStatus(ctx, target)
		if err != nil {
			log.Warn().Err(err).Str("secretHash", transfer.SecretHash).Str("chain", string(target.Chain)).
				Str("txHash", target.TxHash).Msg("[Reconciler] [reconcileTransfer] status query failed")
			continue
		}
		r.opts.Metrics.IncObservation(observation.State.String())
		obs := crosschain.Observation{SecretHash: transfer.SecretHash, Target: target, Tx: observation}
		if target.Phase == types.PhaseLock {
			obs.Buddy = buddy
		}
		if !r.apply(ctx, obs) {
			return
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, obs crosschain.Observation) bool {
	_, _, err := r.machine.ApplyObservation(ctx, obs)
	switch {
	case err == nil:
		return true
	case errors.Is(err, types.ErrTerminal):
		log.Debug().Str("secretHash", obs.SecretHash).Str("txHash", obs.Target.TxHash).
			Msg("[Reconciler] [apply] transfer already settled")
	default:
		log.Error().Err(err).Str("secretHash", obs.SecretHash).Str("txHash", obs.Target.TxHash).
			Msg("[Reconciler] [apply] failed to apply observation")
	}
	return false
}

func (r *Reconciler) txStatus(ctx context.Context, target crosschain.Target) (types.TxObservation, error) {
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}
	return r.chain.GetTxStatus(ctx, target.Chain, target.TxHash)
}

func (r *Reconciler) findBuddyLock(ctx context.Context, transfer *types.Transfer) (types.BuddyLock, error) {
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}
	return r.chain.FindBuddyLock(ctx, transfer.ToChain, transfer.SecretHash)
}
