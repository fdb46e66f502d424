package signer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// UsbTransport drives the first wallet of a Ledger or Trezor usb hub.
type UsbTransport struct {
	hub          *usbwallet.Hub
	events       chan accounts.WalletEvent
	subscription event.Subscription
	mu           sync.Mutex
	wallet       accounts.Wallet
	disconnected chan struct{}
}

func NewLedgerTransport() (*UsbTransport, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger hub: %w", err)
	}
	return newUsbTransport(hub), nil
}

func NewTrezorTransport() (*UsbTransport, error) {
	hub, err := usbwallet.NewTrezorHubWithHID()
	if err != nil {
		return nil, fmt.Errorf("failed to open trezor hub: %w", err)
	}
	return newUsbTransport(hub), nil
}

func newUsbTransport(hub *usbwallet.Hub) *UsbTransport {
	t := &UsbTransport{
		hub:          hub,
		events:       make(chan accounts.WalletEvent, 8),
		disconnected: make(chan struct{}),
	}
	t.subscription = hub.Subscribe(t.events)
	go t.watch()
	return t
}

func (t *UsbTransport) watch() {
	for {
		select {
		case evt := <-t.events:
			if evt.Kind != accounts.WalletDropped {
				continue
			}
			t.mu.Lock()
			if t.wallet != nil && t.wallet.URL() == evt.Wallet.URL() {
				log.Warn().Str("wallet", evt.Wallet.URL().String()).Msg("[UsbTransport] wallet dropped")
				t.wallet = nil
				close(t.disconnected)
				t.disconnected = make(chan struct{})
			}
			t.mu.Unlock()
		case <-t.subscription.Err():
			return
		}
	}
}

func (t *UsbTransport) Disconnected() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnected
}

func (t *UsbTransport) openWallet() (accounts.Wallet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wallet != nil {
		return t.wallet, nil
	}
	wallets := t.hub.Wallets()
	if len(wallets) == 0 {
		return nil, types.Errorf(types.ErrDeviceDisconnected, "no device connected")
	}
	if err := wallets[0].Open(""); err != nil && err != accounts.ErrWalletAlreadyOpen {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	t.wallet = wallets[0]
	return t.wallet, nil
}

func (t *UsbTransport) SignTx(ctx context.Context, path string, tx *ethTypes.Transaction, chainID *big.Int) (*ethTypes.Transaction, error) {
	wallet, err := t.openWallet()
	if err != nil {
		return nil, err
	}
	derivation, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, types.Errorf(types.ErrValidation, "invalid derivation path %q", path)
	}
	account, err := wallet.Derive(derivation, true)
	if err != nil {
		return nil, mapUsbError(err)
	}
	resultCh := make(chan signResult, 1)
	go func() {
		signed, err := wallet.SignTx(account, tx, chainID)
		resultCh <- signResult{tx: signed, err: err}
	}()
	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, mapUsbError(result.err)
		}
		return result.tx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *UsbTransport) Close() {
	t.subscription.Unsubscribe()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wallet != nil {
		t.wallet.Close()
	}
}

func mapUsbError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied"), strings.Contains(msg, "cancel"), strings.Contains(msg, "rejected"):
		return fmt.Errorf("%w: %w", types.ErrUserCancelled, err)
	case strings.Contains(msg, "closed"), strings.Contains(msg, "disconnect"), strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %w", types.ErrDeviceDisconnected, err)
	}
	return err
}
