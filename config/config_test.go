package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/scalarorg/xtransfer/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"database": {"driver": "sqlite", "url": "file::memory:"},
	"engine": {"retry_delay": "1s"},
	"evm_networks": [
		{"chain": "WAN", "chain_id": 999, "rpc_url": "http://localhost:8545", "htlc_contract": "0x2d6a3e1b1d4f5e6a7b8c9d0e1f2a3b4c5d6e7f80"},
		{"chain": "ETH", "chain_id": 1, "rpc_url": "http://localhost:8546", "htlc_contract": "0x1d6a3e1b1d4f5e6a7b8c9d0e1f2a3b4c5d6e7f80", "finality": 12, "decimals": 6}
	]
}`

func readSample(t *testing.T, raw string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	require.NoError(t, v.ReadConfig(strings.NewReader(raw)))
	return v
}

func TestUnmarshalAppliesDefaults(t *testing.T) {
	cfg, err := config.Unmarshal(readSample(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, config.DEFAULT_RETRY_CEILING, cfg.Engine.RetryCeiling)
	require.Equal(t, config.DEFAULT_RECONCILE_PERIOD, cfg.Engine.ReconcilePeriod)
	require.Equal(t, time.Second, cfg.Engine.RetryDelay)
	require.EqualValues(t, config.DEFAULT_GAS_LIMIT, cfg.Engine.GasLimit)
	require.True(t, cfg.Engine.EstimateGas)

	wan, err := cfg.GetEvmNetwork("wan")
	require.NoError(t, err)
	require.EqualValues(t, 1, wan.Finality)
	require.EqualValues(t, 18, wan.Decimals)
	require.EqualValues(t, config.DEFAULT_GAS_LIMIT, wan.GasLimit)

	eth, err := cfg.GetEvmNetwork("ETH")
	require.NoError(t, err)
	require.EqualValues(t, 12, eth.Finality)
	require.EqualValues(t, 6, eth.Decimals)

	_, err = cfg.GetEvmNetwork("BTC")
	require.Error(t, err)
}

func TestUnmarshalEstimateGasOptOut(t *testing.T) {
	raw := strings.Replace(sampleConfig, `"retry_delay": "1s"`, `"retry_delay": "1s", "estimate_gas": false`, 1)
	cfg, err := config.Unmarshal(readSample(t, raw))
	require.NoError(t, err)
	require.False(t, cfg.Engine.EstimateGas)
}

func TestUnmarshalRejectsBadContract(t *testing.T) {
	raw := `{"evm_networks": [{"chain": "WAN", "chain_id": 999, "rpc_url": "http://localhost:8545", "htlc_contract": "not-an-address"}]}`
	_, err := config.Unmarshal(readSample(t, raw))
	require.Error(t, err)
}

func TestUnmarshalRejectsUnknownDriver(t *testing.T) {
	raw := `{"database": {"driver": "redis", "url": "redis://localhost"}}`
	_, err := config.Unmarshal(readSample(t, raw))
	require.Error(t, err)
}
