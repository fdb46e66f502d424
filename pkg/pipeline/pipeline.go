package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const ANNOTATE_DELEGATE_CLAIM = "StoremanDelegateClaim"

type TxBuilder interface {
	Build(ctx context.Context, action types.Action, transfer *types.Transfer, from common.Address) (*types.UnsignedTx, error)
}

type Signer interface {
	Sign(ctx context.Context, creds signer.Credentials, tx *types.UnsignedTx) ([]byte, error)
}

// Broadcaster is the part of the chain query surface the pipeline writes through.
type Broadcaster interface {
	GetBalance(ctx context.Context, chain types.Chain, address common.Address) (*big.Int, error)
	Submit(ctx context.Context, chain types.Chain, raw []byte) (string, error)
}

type TxRecorder interface {
	InsertTxRecord(ctx context.Context, record *types.TxRecord) error
}

// BeforeBroadcastFunc runs once signing succeeded and before the raw
// transaction leaves the process. An error aborts the submission.
type BeforeBroadcastFunc func(ctx context.Context, tx *types.UnsignedTx, txHash string) error

type Request struct {
	Action      types.Action    `validate:"required,oneof=approve lock redeem revoke delegateClaim"`
	Transfer    *types.Transfer `validate:"required"`
	Credentials signer.Credentials
	Annotate    string
	//Optional hook, see BeforeBroadcastFunc
	BeforeBroadcast BeforeBroadcastFunc `validate:"-"`
}

type Result struct {
	TxHash string
	Tx     *types.UnsignedTx
	Record *types.TxRecord
}

type Options struct {
	//Minimum lock value in the smallest unit, decimal string
	MinValue string
	Metrics  *metrics.Registry
	Tracer   trace.Tracer
}

// Pipeline runs validate, build, sign and broadcast for one action. Each
// step runs at most once per call; retrying is the caller's decision.
type Pipeline struct {
	builder  TxBuilder
	signer   Signer
	chain    Broadcaster
	recorder TxRecorder
	validate *validator.Validate
	minValue *big.Int
	metrics  *metrics.Registry
	tracer   trace.Tracer
	now      func() time.Time
}

func NewPipeline(builder TxBuilder, signer Signer, chain Broadcaster, recorder TxRecorder, opts Options) (*Pipeline, error) {
	minValue, err := parseMinValue(opts.MinValue)
	if err != nil {
		return nil, err
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Pipeline{
		builder:  builder,
		signer:   signer,
		chain:    chain,
		recorder: recorder,
		validate: validator.New(),
		minValue: minValue,
		metrics:  opts.Metrics,
		tracer:   tracer,
		now:      time.Now,
	}, nil
}

// SignerAddress is the account that authorizes action: the recipient for
// redeem, the sender for every other action.
func SignerAddress(action types.Action, transfer *types.Transfer) (common.Address, error) {
	addr := transfer.FromAddr
	if action == types.ActionRedeem {
		addr = transfer.ToAddr
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, types.Errorf(types.ErrValidation, "signer address %q of %s is invalid", addr, action)
	}
	return common.HexToAddress(addr), nil
}

func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Submit", trace.WithAttributes(
		attribute.String("action", string(req.Action)),
	))
	defer span.End()

	result, err := p.submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.IncSubmission(string(req.Action), outcome(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("txHash", result.TxHash))
	p.metrics.IncSubmission(string(req.Action), "sent")
	return result, nil
}

func (p *Pipeline) submit(ctx context.Context, req Request) (*Result, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	transfer := req.Transfer
	from, err := SignerAddress(req.Action, transfer)
	if err != nil {
		return nil, err
	}
	tx, err := p.builder.Build(ctx, req.Action, transfer, from)
	if err != nil {
		return nil, err
	}
	if err := p.checkBalance(ctx, tx); err != nil {
		return nil, err
	}

	raw, err := p.signer.Sign(ctx, req.Credentials, tx)
	if err != nil {
		log.Warn().Err(err).Str("secretHash", transfer.SecretHash).Str("action", string(req.Action)).
			Str("wallet", req.Credentials.String()).Msg("[Pipeline] [Submit] signing failed")
		return nil, err
	}
	txHash, err := verifySender(raw, tx)
	if err != nil {
		return nil, err
	}

	if req.BeforeBroadcast != nil {
		if err := req.BeforeBroadcast(ctx, tx, txHash); err != nil {
			return nil, err
		}
	}

	accepted, err := p.chain.Submit(ctx, tx.Chain, raw)
	if err != nil {
		if !types.IsValidationError(err) {
			err = types.ClassifyRPCError(err)
		}
		log.Error().Err(err).Str("secretHash", transfer.SecretHash).Str("action", string(req.Action)).
			Str("chain", string(tx.Chain)).Str("txHash", txHash).Msg("[Pipeline] [Submit] broadcast failed")
		return nil, err
	}
	if accepted != "" {
		txHash = accepted
	}
	log.Info().Str("secretHash", transfer.SecretHash).Str("action", string(req.Action)).Str("chain", string(tx.Chain)).
		Str("txHash", txHash).Uint64("nonce", tx.Nonce).Msg("[Pipeline] [Submit] transaction broadcast")

	now := p.now()
	record := &types.TxRecord{
		SecretHash: transfer.SecretHash,
		Action:     req.Action,
		Chain:      tx.Chain,
		From:       tx.From.Hex(),
		To:         tx.To.Hex(),
		TxHash:     txHash,
		Nonce:      tx.Nonce,
		Status:     types.TxRecordPending,
		Annotate:   req.Annotate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.recorder.InsertTxRecord(ctx, record); err != nil {
		//the transaction is on the network already, losing its record must not hide the hash
		log.Error().Err(err).Str("txHash", txHash).Msg("[Pipeline] [Submit] failed to insert tx record")
	}
	return &Result{TxHash: txHash, Tx: tx, Record: record}, nil
}

// StandaloneRequest submits a contract call that belongs to no transfer.
type StandaloneRequest struct {
	Action       types.Action `validate:"required,eq=delegateClaim"`
	Chain        types.Chain  `validate:"required"`
	From         string       `validate:"required,eth_addr"`
	StoremanAddr string       `validate:"required,eth_addr"`
	Credentials  signer.Credentials
}

// SubmitStandalone runs the same pipeline for delegateClaim. The resulting tx
// record carries no secretHash.
func (p *Pipeline) SubmitStandalone(ctx context.Context, req StandaloneRequest) (*Result, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, types.Errorf(types.ErrValidation, "%v", err)
	}
	return p.Submit(ctx, Request{
		Action: req.Action,
		Transfer: &types.Transfer{
			FromChain:    types.NormalizeChain(string(req.Chain)),
			ToChain:      types.NormalizeChain(string(req.Chain)),
			FromAddr:     req.From,
			StoremanAddr: req.StoremanAddr,
			Value:        big.NewInt(0),
		},
		Credentials: req.Credentials,
		Annotate:    ANNOTATE_DELEGATE_CLAIM,
	})
}

func (p *Pipeline) validateRequest(req Request) error {
	if err := p.validate.Struct(req); err != nil {
		return types.Errorf(types.ErrValidation, "%v", err)
	}
	t := req.Transfer
	if !common.IsHexAddress(t.FromAddr) {
		return types.Errorf(types.ErrValidation, "from address %q is invalid", t.FromAddr)
	}
	switch req.Action {
	case types.ActionLock:
		if !common.IsHexAddress(t.ToAddr) {
			return types.Errorf(types.ErrValidation, "to address %q is invalid", t.ToAddr)
		}
		if !common.IsHexAddress(t.StoremanAddr) {
			return types.Errorf(types.ErrValidation, "storeman address %q is invalid", t.StoremanAddr)
		}
		if err := p.validateValue(t.Value); err != nil {
			return err
		}
	case types.ActionApprove:
		if err := p.validateValue(t.Value); err != nil {
			return err
		}
	case types.ActionRedeem:
		if !common.IsHexAddress(t.ToAddr) {
			return types.Errorf(types.ErrValidation, "to address %q is invalid", t.ToAddr)
		}
	case types.ActionDelegateClaim:
		if !common.IsHexAddress(t.StoremanAddr) {
			return types.Errorf(types.ErrValidation, "storeman address %q is invalid", t.StoremanAddr)
		}
	}
	return nil
}

func (p *Pipeline) validateValue(value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return types.Errorf(types.ErrValidation, "value must be positive")
	}
	if value.Cmp(p.minValue) < 0 {
		return types.Errorf(types.ErrValidation, "value %s is below the minimum %s", value, p.minValue)
	}
	return nil
}

// checkBalance requires the signer to cover the attached value plus the
// maximum gas fee.
func (p *Pipeline) checkBalance(ctx context.Context, tx *types.UnsignedTx) error {
	balance, err := p.chain.GetBalance(ctx, tx.Chain, tx.From)
	if err != nil {
		if types.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", types.ErrChainQuery, err)
	}
	required := tx.Fee()
	if tx.Value != nil {
		required.Add(required, tx.Value)
	}
	if balance.Cmp(required) < 0 {
		return types.Errorf(types.ErrValidation, "insufficient balance on %s: %s < %s", tx.Chain, balance, required)
	}
	return nil
}

func verifySender(raw []byte, tx *types.UnsignedTx) (string, error) {
	signed := new(ethTypes.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return "", types.Errorf(types.ErrValidation, "signer returned a malformed transaction: %v", err)
	}
	sender, err := ethTypes.Sender(ethTypes.LatestSignerForChainID(tx.ChainID), signed)
	if err != nil {
		return "", types.Errorf(types.ErrValidation, "cannot recover sender: %v", err)
	}
	if sender != tx.From {
		return "", types.Errorf(types.ErrValidation, "signed by %s, expected %s", sender.Hex(), tx.From.Hex())
	}
	return signed.Hash().Hex(), nil
}

func outcome(err error) string {
	switch {
	case types.IsValidationError(err):
		return "invalid"
	case types.IsSigningError(err):
		return "sign_failed"
	case types.IsSubmissionFailure(err):
		return "failed"
	}
	return "error"
}
