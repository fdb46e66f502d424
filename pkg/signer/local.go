package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// LocalSigner signs with encrypted keys from a keystore directory. The
// passphrase is verified on every request.
type LocalSigner struct {
	ks *keystore.KeyStore
}

func NewLocalSigner(dir string) *LocalSigner {
	return &LocalSigner{ks: keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)}
}

func NewLocalSignerWithKeyStore(ks *keystore.KeyStore) *LocalSigner {
	return &LocalSigner{ks: ks}
}

func (s *LocalSigner) Sign(ctx context.Context, creds Credentials, tx *types.UnsignedTx) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUserCancelled, err)
	}
	if !common.IsHexAddress(creds.Path) {
		return nil, types.Errorf(types.ErrValidation, "local account %q is not an address", creds.Path)
	}
	account, err := s.ks.Find(accounts.Account{Address: common.HexToAddress(creds.Path)})
	if err != nil {
		return nil, types.Errorf(types.ErrValidation, "account %s not in keystore", creds.Path)
	}
	signed, err := s.ks.SignTxWithPassphrase(account, creds.Passphrase, tx.ToLegacyTx(), tx.ChainID)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			log.Warn().Str("account", account.Address.Hex()).Msg("[LocalSigner] [Sign] passphrase rejected")
			return nil, types.Errorf(types.ErrInvalidPassword, "account %s", account.Address.Hex())
		}
		return nil, fmt.Errorf("failed to sign with %s: %w", account.Address.Hex(), err)
	}
	return signed.MarshalBinary()
}
