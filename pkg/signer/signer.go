package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/scalarorg/xtransfer/pkg/types"
)

// Credentials select the backend and the key used for one signing request.
// Path is a derivation path for devices and the account address for local keys.
type Credentials struct {
	Kind       types.WalletKind `json:"kind" validate:"required,oneof=local ledger trezor"`
	Path       string           `json:"path" validate:"required"`
	Passphrase string           `json:"-"`
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Path)
}

// Signer turns an unsigned transaction into raw signed bytes.
type Signer interface {
	Sign(ctx context.Context, creds Credentials, tx *types.UnsignedTx) ([]byte, error)
}

// Registry dispatches a request to the backend registered for its wallet kind.
type Registry struct {
	mu       sync.RWMutex
	backends map[types.WalletKind]Signer
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[types.WalletKind]Signer)}
}

func (r *Registry) Register(kind types.WalletKind, backend Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = backend
}

func (r *Registry) Backend(kind types.WalletKind) (Signer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[kind]
	return backend, ok
}

func (r *Registry) Sign(ctx context.Context, creds Credentials, tx *types.UnsignedTx) ([]byte, error) {
	backend, ok := r.Backend(creds.Kind)
	if !ok {
		return nil, types.Errorf(types.ErrValidation, "no signer for wallet kind %q", creds.Kind)
	}
	return backend.Sign(ctx, creds, tx)
}
