package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/internal/engine"
	"github.com/scalarorg/xtransfer/internal/testkit"
	"github.com/scalarorg/xtransfer/pkg/api"
	"github.com/scalarorg/xtransfer/pkg/clients/evm"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/stretchr/testify/require"
)

const (
	WAN_HTLC = "0x1111111111111111111111111111111111111111"
	ETH_HTLC = "0x2222222222222222222222222222222222222222"
	STOREMAN = "0x0000000000000000000000000000000000000001"
)

type fixture struct {
	service *engine.Service
	keys    *testkit.KeySigner
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	cfg := &config.Config{
		Engine: config.EngineConfig{
			RetryCeiling:    3,
			RPCTimeout:      time.Second,
			ReconcilePeriod: 10 * time.Millisecond,
			GasLimit:        200000,
			MinValue:        "1",
		},
		EvmNetworks: []config.EvmNetworkConfig{
			{Chain: "WAN", ChainID: 999, HtlcContract: WAN_HTLC, Decimals: 18},
			{Chain: "ETH", ChainID: 1, HtlcContract: ETH_HTLC, Decimals: 18},
		},
	}
	contracts, err := evm.NewContractData(cfg.EvmNetworks)
	require.NoError(t, err)
	keys := testkit.NewKeySigner()
	registry := metrics.NewRegistry()
	service, err := engine.NewServiceWithDeps(cfg, engine.Deps{
		Store:     db.NewMemoryStore(),
		Chain:     testkit.NewFakeChain(),
		Contracts: contracts,
		Signer:    keys,
		Metrics:   registry,
	})
	require.NoError(t, err)
	t.Cleanup(service.Stop)
	server := api.NewServer(":0", service, registry.Handler())
	return &fixture{service: service, keys: keys, handler: server.Handler()}
}

func (f *fixture) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T) *types.Transfer {
	rec := f.do(t, http.MethodPost, "/transfers", map[string]string{
		"fromChain":    "WAN",
		"toChain":      "ETH",
		"fromAddr":     f.keys.NewAccount().Hex(),
		"toAddr":       f.keys.NewAccount().Hex(),
		"storemanAddr": STOREMAN,
		"amount":       "0.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var transfer types.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfer))
	return &transfer
}

var lockBody = map[string]any{
	"action":      "lock",
	"credentials": map[string]string{"kind": "local", "path": "0x0000000000000000000000000000000000000abc"},
}

func TestCreateAndQueryTransfer(t *testing.T) {
	f := newFixture(t)
	transfer := f.create(t)
	require.Equal(t, types.StatusWaitingCross, transfer.Status)
	require.Equal(t, "500000000000000000", transfer.Value.String())
	require.Empty(t, transfer.Secret)

	rec := f.do(t, http.MethodGet, "/transfers/"+transfer.SecretHash, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret\"")

	rec = f.do(t, http.MethodGet, "/transfers?fromChain=wan&active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var transfers []*types.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfers))
	require.Len(t, transfers, 1)

	rec = f.do(t, http.MethodGet, "/transfers/0xmissing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/transfers?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransferRejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/transfers", map[string]string{
		"fromChain":    "WAN",
		"toChain":      "ETH",
		"fromAddr":     f.keys.NewAccount().Hex(),
		"toAddr":       f.keys.NewAccount().Hex(),
		"storemanAddr": STOREMAN,
		"amount":       "abc",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiatePhase(t *testing.T) {
	f := newFixture(t)
	transfer := f.create(t)
	path := "/transfers/" + transfer.SecretHash + "/phases"

	rec := f.do(t, http.MethodPost, path, lockBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var locked types.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locked))
	require.Equal(t, types.StatusLockSent, locked.Status)
	require.NotEmpty(t, locked.LockTxHash)

	rec = f.do(t, http.MethodPost, path, lockBody)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, path, map[string]any{"action": "teleport"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/transfers/"+transfer.SecretHash+"/txs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []*types.TxRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	require.Equal(t, locked.LockTxHash, records[0].TxHash)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "xtransfer_submissions_total")
}

func TestDelegateClaim(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/delegate-claim", map[string]any{
		"chain":        "wan",
		"from":         f.keys.NewAccount().Hex(),
		"storemanAddr": STOREMAN,
		"credentials":  map[string]string{"kind": "local", "path": "0x0000000000000000000000000000000000000abc"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var record types.TxRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.Equal(t, types.ActionDelegateClaim, record.Action)
	require.NotEmpty(t, record.TxHash)

	rec = f.do(t, http.MethodPost, "/delegate-claim", map[string]any{"chain": "wan", "from": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchStreamsChanges(t *testing.T) {
	f := newFixture(t)
	transfer := f.create(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/transfers/"+transfer.SecretHash+"/watch", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	lines := bufio.NewScanner(res.Body)
	readUntil := func(substr string) {
		for lines.Scan() {
			if strings.Contains(lines.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", substr, lines.Err())
	}
	readUntil("event: snapshot")
	readUntil(string(types.StatusWaitingCross))
	require.True(t, f.service.Reconciler.Running())

	rec := f.do(t, http.MethodPost, "/transfers/"+transfer.SecretHash+"/phases", lockBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	readUntil(string(types.StatusLockSent))

	cancel()
	require.Eventually(t, func() bool {
		return !f.service.Reconciler.Running()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchUnknownTransfer(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/transfers/0xmissing/watch", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
