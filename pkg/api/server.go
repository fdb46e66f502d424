package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/internal/engine"
	"github.com/scalarorg/xtransfer/pkg/pipeline"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Engine is the part of the transfer engine exposed over HTTP.
type Engine interface {
	CreateTransfer(ctx context.Context, req engine.CreateRequest) (*types.Transfer, error)
	InitiatePhase(ctx context.Context, secretHash string, action types.Action, creds signer.Credentials) (*types.Transfer, error)
	DelegateClaim(ctx context.Context, req pipeline.StandaloneRequest) (*pipeline.Result, error)
	Transfer(ctx context.Context, secretHash string) (*types.Transfer, error)
	Transfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error)
	TxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error)
	Watch(ctx context.Context, secretHash string) (*engine.View, error)
}

type Server struct {
	engine Engine
	echo   *echo.Echo
	listen string
}

func NewServer(listen string, eng Engine, metrics http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler

	s := &Server{engine: eng, echo: e, listen: listen}
	e.GET("/health", s.health)
	e.GET("/transfers", s.listTransfers)
	e.POST("/transfers", s.createTransfer)
	e.GET("/transfers/:hash", s.getTransfer)
	e.GET("/transfers/:hash/txs", s.listTxRecords)
	e.GET("/transfers/:hash/watch", s.watch)
	e.GET("/watch", s.watch)
	e.POST("/transfers/:hash/phases", s.initiatePhase)
	e.POST("/delegate-claim", s.delegateClaim)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Info().Str("listen", s.listen).Msg("[Api] [Start] listening")
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTransfers(c echo.Context) error {
	filter := types.TransferFilter{
		FromAddr:    c.QueryParam("fromAddr"),
		FromChain:   types.Chain(c.QueryParam("fromChain")),
		NonTerminal: c.QueryParam("active") == "true",
	}
	if filter.FromChain != "" {
		filter.FromChain = types.NormalizeChain(string(filter.FromChain))
	}
	if status := c.QueryParam("status"); status != "" {
		filter.Statuses = []types.Status{types.Status(status)}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return types.Errorf(types.ErrValidation, "invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	transfers, err := s.engine.Transfers(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transfers)
}

func (s *Server) createTransfer(c echo.Context) error {
	var req engine.CreateRequest
	if err := c.Bind(&req); err != nil {
		return types.Errorf(types.ErrValidation, "invalid body: %v", err)
	}
	transfer, err := s.engine.CreateTransfer(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, transfer)
}

func (s *Server) getTransfer(c echo.Context) error {
	transfer, err := s.engine.Transfer(c.Request().Context(), c.Param("hash"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transfer)
}

func (s *Server) listTxRecords(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.engine.Transfer(ctx, c.Param("hash")); err != nil {
		return err
	}
	records, err := s.engine.TxRecords(ctx, c.Param("hash"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

type credentialsBody struct {
	Kind       types.WalletKind `json:"kind"`
	Path       string           `json:"path"`
	Passphrase string           `json:"passphrase"`
}

func (b credentialsBody) credentials() signer.Credentials {
	return signer.Credentials{Kind: b.Kind, Path: b.Path, Passphrase: b.Passphrase}
}

type phaseRequest struct {
	Action      string          `json:"action"`
	Credentials credentialsBody `json:"credentials"`
}

func (s *Server) initiatePhase(c echo.Context) error {
	var req phaseRequest
	if err := c.Bind(&req); err != nil {
		return types.Errorf(types.ErrValidation, "invalid body: %v", err)
	}
	action, err := types.ParseAction(req.Action)
	if err != nil {
		return err
	}
	transfer, err := s.engine.InitiatePhase(c.Request().Context(), c.Param("hash"), action, req.Credentials.credentials())
	if err != nil {
		// Exhausted retries still return the updated transfer
		if transfer != nil && types.IsSubmissionFailure(err) {
			return c.JSON(http.StatusBadGateway, map[string]any{"error": err.Error(), "transfer": transfer})
		}
		return err
	}
	return c.JSON(http.StatusOK, transfer)
}

type delegateClaimRequest struct {
	Chain        string          `json:"chain"`
	From         string          `json:"from"`
	StoremanAddr string          `json:"storemanAddr"`
	Credentials  credentialsBody `json:"credentials"`
}

func (s *Server) delegateClaim(c echo.Context) error {
	var req delegateClaimRequest
	if err := c.Bind(&req); err != nil {
		return types.Errorf(types.ErrValidation, "invalid body: %v", err)
	}
	result, err := s.engine.DelegateClaim(c.Request().Context(), pipeline.StandaloneRequest{
		Chain:        types.Chain(req.Chain),
		From:         req.From,
		StoremanAddr: req.StoremanAddr,
		Credentials:  req.Credentials.credentials(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result.Record)
}

// watch streams the transfer view as server-sent events: one snapshot event
// per transfer, then every change until the client goes away.
func (s *Server) watch(c echo.Context) error {
	ctx := c.Request().Context()
	view, err := s.engine.Watch(ctx, c.Param("hash"))
	if err != nil {
		return err
	}
	defer view.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	for _, transfer := range view.Snapshot {
		if err := writeEvent(res, "snapshot", transfer); err != nil {
			return nil
		}
	}
	res.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case event, ok := <-view.Events:
			if !ok {
				return nil
			}
			var payload any = event.Transfer
			if event.Transfer == nil {
				payload = event.TxRecord
			}
			if err := writeEvent(res, event.Event, payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(res *echo.Response, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data)
	return err
}
