package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/clients/evm"
	"github.com/scalarorg/xtransfer/pkg/crosschain"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/scalarorg/xtransfer/pkg/events"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/scalarorg/xtransfer/pkg/pipeline"
	"github.com/scalarorg/xtransfer/pkg/reconciler"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/telemetry"
	"github.com/scalarorg/xtransfer/pkg/txbuilder"
	"github.com/scalarorg/xtransfer/pkg/types"
	"go.opentelemetry.io/otel/trace"
)

// Chain is everything the engine asks of the configured ledgers.
type Chain interface {
	txbuilder.ChainQuery
	pipeline.Broadcaster
	reconciler.ChainQuery
}

// Deps are the collaborators of a Service. NewService builds them from the
// config; tests pass in-memory doubles.
type Deps struct {
	Store     db.HistoryStore
	Chain     Chain
	Contracts *evm.ContractData
	Signer    pipeline.Signer
	Metrics   *metrics.Registry
	Tracer    trace.Tracer
}

type Service struct {
	Config     *config.Config
	Store      db.HistoryStore
	EventBus   *events.EventBus
	Contracts  *evm.ContractData
	Pipeline   *pipeline.Pipeline
	Machine    *crosschain.Machine
	Reconciler *reconciler.Reconciler
	Metrics    *metrics.Registry

	validate *validator.Validate
	release  func()
	closers  []func(context.Context) error
}

func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.App.Name, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	store, err := db.NewHistoryStore(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	router, err := evm.NewEvmClients(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create evm clients: %w", err)
	}
	contracts, err := evm.NewContractData(cfg.EvmNetworks)
	if err != nil {
		store.Close()
		return nil, err
	}
	signers, closeDevices := newSignerRegistry(cfg)
	service, err := NewServiceWithDeps(cfg, Deps{
		Store:     store,
		Chain:     router,
		Contracts: contracts,
		Signer:    signers,
		Metrics:   metrics.NewRegistry(),
		Tracer:    telemetry.Tracer(),
	})
	if err != nil {
		closeDevices()
		store.Close()
		return nil, err
	}
	service.closers = append(service.closers,
		func(context.Context) error { closeDevices(); return nil },
		func(context.Context) error { return store.Close() },
		shutdownTracer,
	)
	return service, nil
}

// newSignerRegistry registers the keystore signer and every hardware wallet
// whose hub can be opened on this host.
func newSignerRegistry(cfg *config.Config) (*signer.Registry, func()) {
	registry := signer.NewRegistry()
	registry.Register(types.WalletLocal, signer.NewLocalSigner(cfg.Keystore.Dir))

	var transports []*signer.UsbTransport
	for kind, open := range map[types.WalletKind]func() (*signer.UsbTransport, error){
		types.WalletDeviceA: signer.NewLedgerTransport,
		types.WalletDeviceB: signer.NewTrezorTransport,
	} {
		transport, err := open()
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("[Engine] [newSignerRegistry] hardware wallet unavailable")
			continue
		}
		transports = append(transports, transport)
		registry.Register(kind, signer.NewDevice(string(kind), transport, cfg.Engine.QueueWhenBusy))
	}
	return registry, func() {
		for _, transport := range transports {
			transport.Close()
		}
	}
}

func NewServiceWithDeps(cfg *config.Config, deps Deps) (*Service, error) {
	eventBus := events.NewEventBus(events.DEFAULT_BUFFER_SIZE)
	store := db.NewNotifyingStore(deps.Store, eventBus)
	builder := txbuilder.NewBuilder(deps.Chain, deps.Contracts, txbuilder.Options{
		GasCeiling: cfg.Engine.GasLimit,
		Timeout:    cfg.Engine.RPCTimeout,
		Estimate:   cfg.Engine.EstimateGas,
	})
	submitter, err := pipeline.NewPipeline(builder, deps.Signer, deps.Chain, store, pipeline.Options{
		MinValue: cfg.Engine.MinValue,
		Metrics:  deps.Metrics,
		Tracer:   deps.Tracer,
	})
	if err != nil {
		return nil, err
	}
	machine := crosschain.NewMachine(store, submitter, crosschain.Options{
		RetryCeiling: cfg.Engine.RetryCeiling,
		RetryDelay:   cfg.Engine.RetryDelay,
		DroppedAfter: cfg.Engine.DroppedAfter,
		Metrics:      deps.Metrics,
	})
	return &Service{
		Config:    cfg,
		Store:     store,
		EventBus:  eventBus,
		Contracts: deps.Contracts,
		Pipeline:  submitter,
		Machine:   machine,
		Reconciler: reconciler.NewReconciler(store, deps.Chain, machine, reconciler.Options{
			Period:       cfg.Engine.ReconcilePeriod,
			QueryTimeout: cfg.Engine.RPCTimeout,
			Metrics:      deps.Metrics,
		}),
		Metrics:  deps.Metrics,
		validate: validator.New(),
	}, nil
}

// Start resolves submissions interrupted by a previous process and keeps the
// reconciler running until Stop.
func (s *Service) Start(ctx context.Context) error {
	recovered, err := s.Machine.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted submissions: %w", err)
	}
	log.Info().Int("recovered", recovered).Msg("[Engine] [Start] engine started")
	s.release = s.Reconciler.Acquire(ctx)
	return nil
}

func (s *Service) Stop() {
	if s.release != nil {
		s.release()
	}
	s.Reconciler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, closer := range s.closers {
		if err := closer(ctx); err != nil {
			log.Warn().Err(err).Msg("[Engine] [Stop] failed to release resource")
		}
	}
	log.Info().Msg("[Engine] [Stop] engine stopped")
}

type CreateRequest struct {
	FromChain    string `json:"fromChain" validate:"required"`
	ToChain      string `json:"toChain" validate:"required,nefield=FromChain"`
	FromAddr     string `json:"fromAddr" validate:"required,eth_addr"`
	ToAddr       string `json:"toAddr" validate:"required,eth_addr"`
	StoremanAddr string `json:"storemanAddr" validate:"required,eth_addr"`
	//Decimal amount in whole units of the source asset
	Amount     string           `json:"amount" validate:"required"`
	WalletKind types.WalletKind `json:"walletKind" validate:"omitempty,oneof=local ledger trezor"`
	Path       string           `json:"path"`
}

// CreateTransfer registers a new transfer under a fresh secret. Token
// transfers start with Approve, coin transfers with Lock.
func (s *Service) CreateTransfer(ctx context.Context, req CreateRequest) (*types.Transfer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, types.Errorf(types.ErrValidation, "%s", err.Error())
	}
	fromChain := types.NormalizeChain(req.FromChain)
	value, err := pipeline.ParseAmount(req.Amount, s.Contracts.Decimals(fromChain))
	if err != nil {
		return nil, err
	}
	secret, secretHash, err := types.NewSecret()
	if err != nil {
		return nil, err
	}
	walletKind := req.WalletKind
	if walletKind == "" {
		walletKind = types.WalletLocal
	}
	now := time.Now()
	transfer := &types.Transfer{
		SecretHash:   secretHash,
		Secret:       secret,
		FromChain:    fromChain,
		ToChain:      types.NormalizeChain(req.ToChain),
		FromAddr:     req.FromAddr,
		ToAddr:       req.ToAddr,
		StoremanAddr: req.StoremanAddr,
		TokenAddr:    s.Contracts.Token(fromChain),
		Value:        value,
		Status:       types.StatusWaitingCross,
		Phase:        types.PhaseNone,
		WalletKind:   walletKind,
		Path:         req.Path,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.InsertTransfer(ctx, transfer); err != nil {
		return nil, err
	}
	log.Info().Str("secretHash", secretHash).Str("fromChain", string(transfer.FromChain)).
		Str("toChain", string(transfer.ToChain)).Str("value", value.String()).Bool("token", transfer.NeedsApprove()).
		Msg("[Engine] [CreateTransfer] transfer created")
	return s.Store.GetTransfer(ctx, secretHash)
}

// InitiatePhase is the only way to advance a transfer.
func (s *Service) InitiatePhase(ctx context.Context, secretHash string, action types.Action, creds signer.Credentials) (*types.Transfer, error) {
	return s.Machine.InitiatePhase(ctx, secretHash, action, creds)
}

func (s *Service) DelegateClaim(ctx context.Context, req pipeline.StandaloneRequest) (*pipeline.Result, error) {
	req.Action = types.ActionDelegateClaim
	return s.Pipeline.SubmitStandalone(ctx, req)
}

func (s *Service) Transfer(ctx context.Context, secretHash string) (*types.Transfer, error) {
	return s.Store.GetTransfer(ctx, secretHash)
}

func (s *Service) Transfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error) {
	return s.Store.QueryTransfers(ctx, filter)
}

func (s *Service) TxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error) {
	return s.Store.ListTxRecords(ctx, secretHash)
}
