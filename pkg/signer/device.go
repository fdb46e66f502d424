package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Transport is the link to one physical signing device.
type Transport interface {
	// SignTx blocks until the user confirms on the device, the device fails
	// or ctx is done.
	SignTx(ctx context.Context, path string, tx *ethTypes.Transaction, chainID *big.Int) (*ethTypes.Transaction, error)
	// Disconnected is closed when the current connection is lost.
	Disconnected() <-chan struct{}
}

// Device owns a hardware signer. Only one signing session may be open at a
// time; a second request waits for the slot or fails with ErrDeviceBusy.
type Device struct {
	name      string
	transport Transport
	queue     bool
	slot      chan struct{}
	mu        sync.Mutex
	cancel    context.CancelFunc
}

func NewDevice(name string, transport Transport, queueWhenBusy bool) *Device {
	return &Device{
		name:      name,
		transport: transport,
		queue:     queueWhenBusy,
		slot:      make(chan struct{}, 1),
	}
}

func (d *Device) acquire(ctx context.Context) (func(), error) {
	if d.queue {
		select {
		case d.slot <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", types.ErrUserCancelled, ctx.Err())
		}
	} else {
		select {
		case d.slot <- struct{}{}:
		default:
			return nil, types.Errorf(types.ErrDeviceBusy, "%s", d.name)
		}
	}
	return func() { <-d.slot }, nil
}

// Busy reports whether a signing session is open.
func (d *Device) Busy() bool {
	return len(d.slot) > 0
}

// Cancel aborts the open session, if any, with ErrUserCancelled.
func (d *Device) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

type signResult struct {
	tx  *ethTypes.Transaction
	err error
}

func (d *Device) Sign(ctx context.Context, creds Credentials, tx *types.UnsignedTx) ([]byte, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sessionCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	disconnected := d.transport.Disconnected()
	log.Info().Str("device", d.name).Str("path", creds.Path).Uint64("nonce", tx.Nonce).
		Msg("[Device] [Sign] waiting for confirmation on device")
	resultCh := make(chan signResult, 1)
	go func() {
		signed, err := d.transport.SignTx(sessionCtx, creds.Path, tx.ToLegacyTx(), tx.ChainID)
		resultCh <- signResult{tx: signed, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, d.classify(result.err)
		}
		return result.tx.MarshalBinary()
	case <-disconnected:
		log.Warn().Str("device", d.name).Msg("[Device] [Sign] device disconnected during signing")
		return nil, types.Errorf(types.ErrDeviceDisconnected, "%s", d.name)
	case <-sessionCtx.Done():
		log.Info().Str("device", d.name).Msg("[Device] [Sign] signing cancelled")
		return nil, fmt.Errorf("%w: %s", types.ErrUserCancelled, d.name)
	}
}

func (d *Device) classify(err error) error {
	switch {
	case types.IsSigningError(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", types.ErrUserCancelled, err)
	default:
		return fmt.Errorf("device %s failed to sign: %w", d.name, err)
	}
}
