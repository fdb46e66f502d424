// Package testkit holds in-memory chain and signer doubles shared by the
// engine packages' tests.
package testkit

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/types"
)

var GAS_PRICE = big.NewInt(1_000_000_000)

// FakeChain answers chain queries for any number of ledgers from memory.
type FakeChain struct {
	mu         sync.Mutex
	chainIDs   map[types.Chain]*big.Int
	balance    *big.Int
	nonces     map[common.Address]uint64
	queryErrs  []error
	submitErrs []error
	submitted  []*ethTypes.Transaction
	states     map[string]types.TxObservation
	stateErr   error
	buddies    map[string]types.BuddyLock
	//Zero makes EstimateGas fail
	estimate uint64
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		chainIDs: map[types.Chain]*big.Int{"WAN": big.NewInt(999), "ETH": big.NewInt(1)},
		balance:  new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
		nonces:   make(map[common.Address]uint64),
		states:   make(map[string]types.TxObservation),
		buddies:  make(map[string]types.BuddyLock),
	}
}

func (c *FakeChain) SetBalance(balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

// FailQueries makes the next nonce lookups fail with errs, one per call.
func (c *FakeChain) FailQueries(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryErrs = append(c.queryErrs, errs...)
}

// FailSubmits makes the next broadcasts fail with errs, one per call.
func (c *FakeChain) FailSubmits(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErrs = append(c.submitErrs, errs...)
}

func (c *FakeChain) SetTxState(txHash string, state types.TxState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[strings.ToLower(txHash)] = types.TxObservation{TxHash: txHash, State: state}
}

func (c *FakeChain) SetGasEstimate(gas uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimate = gas
}

func (c *FakeChain) FailTxStatus(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateErr = err
}

func (c *FakeChain) SetBuddyLock(secretHash string, lock types.BuddyLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buddies[strings.ToLower(secretHash)] = lock
}

func (c *FakeChain) Submitted() []*ethTypes.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ethTypes.Transaction(nil), c.submitted...)
}

func (c *FakeChain) GetNonce(_ context.Context, _ types.Chain, address common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queryErrs) > 0 {
		err := c.queryErrs[0]
		c.queryErrs = c.queryErrs[1:]
		if err != nil {
			return 0, types.ClassifyRPCError(err)
		}
	}
	return c.nonces[address], nil
}

func (c *FakeChain) GetGasPrice(context.Context, types.Chain) (*big.Int, error) {
	return new(big.Int).Set(GAS_PRICE), nil
}

func (c *FakeChain) GetChainID(_ context.Context, chain types.Chain) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.chainIDs[chain]
	if !ok {
		return nil, types.Errorf(types.ErrValidation, "chain %s is not configured", chain)
	}
	return new(big.Int).Set(id), nil
}

func (c *FakeChain) EstimateGas(context.Context, *types.UnsignedTx) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estimate == 0 {
		return 0, types.ErrNetwork
	}
	return c.estimate, nil
}

func (c *FakeChain) GetBalance(context.Context, types.Chain, common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance), nil
}

func (c *FakeChain) Submit(_ context.Context, _ types.Chain, raw []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submitErrs) > 0 {
		err := c.submitErrs[0]
		c.submitErrs = c.submitErrs[1:]
		if err != nil {
			return "", types.ClassifyRPCError(err)
		}
	}
	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", types.Errorf(types.ErrBroadcastRejected, "%v", err)
	}
	sender, err := ethTypes.Sender(ethTypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", types.Errorf(types.ErrBroadcastRejected, "%v", err)
	}
	c.nonces[sender] = tx.Nonce() + 1
	c.submitted = append(c.submitted, tx)
	hash := tx.Hash().Hex()
	if _, ok := c.states[strings.ToLower(hash)]; !ok {
		c.states[strings.ToLower(hash)] = types.TxObservation{TxHash: hash, State: types.TxPending}
	}
	return hash, nil
}

func (c *FakeChain) GetTxStatus(_ context.Context, _ types.Chain, txHash string) (types.TxObservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateErr != nil {
		return types.TxObservation{}, c.stateErr
	}
	observation, ok := c.states[strings.ToLower(txHash)]
	if !ok {
		return types.TxObservation{TxHash: txHash, State: types.TxUnknown}, nil
	}
	return observation, nil
}

func (c *FakeChain) FindBuddyLock(_ context.Context, _ types.Chain, secretHash string) (types.BuddyLock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buddies[strings.ToLower(secretHash)], nil
}

// KeySigner signs with raw in-memory keys selected by the sender address.
type KeySigner struct {
	mu    sync.Mutex
	keys  map[common.Address]*ecdsa.PrivateKey
	errs  []error
	calls int
}

func NewKeySigner() *KeySigner {
	return &KeySigner{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

// NewAccount generates a key and returns its address.
func (s *KeySigner) NewAccount() common.Address {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[address] = key
	return address
}

// Fail makes the next signing requests fail with errs, one per call.
func (s *KeySigner) Fail(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

func (s *KeySigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *KeySigner) Sign(_ context.Context, _ signer.Credentials, tx *types.UnsignedTx) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	key, ok := s.keys[tx.From]
	if !ok {
		return nil, types.Errorf(types.ErrValidation, "no key for %s", tx.From.Hex())
	}
	signed, err := ethTypes.SignTx(tx.ToLegacyTx(), ethTypes.LatestSignerForChainID(tx.ChainID), key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}
