package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DEFAULT_RETRY_CEILING    = 3
	DEFAULT_RETRY_DELAY      = 2 * time.Second
	DEFAULT_RPC_TIMEOUT      = 10 * time.Second
	DEFAULT_RECONCILE_PERIOD = 5 * time.Second
	DEFAULT_DROPPED_AFTER    = 10 * time.Minute
	DEFAULT_GAS_LIMIT        = 200000
	DEFAULT_FINALITY         = 1
	DEFAULT_DECIMALS         = 18
)

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Env   string `mapstructure:"env"`
	IsDev bool   `mapstructure:"is_dev"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres sqlite mongo memory"`
	URL      string `mapstructure:"url" validate:"required_unless=Driver memory"`
	Database string `mapstructure:"database" validate:"required_if=Driver mongo"`
}

type EngineConfig struct {
	RetryCeiling    int           `mapstructure:"retry_ceiling" validate:"gte=1"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RPCTimeout      time.Duration `mapstructure:"rpc_timeout" validate:"gt=0"`
	ReconcilePeriod time.Duration `mapstructure:"reconcile_period" validate:"gt=0"`
	GasLimit        uint64        `mapstructure:"gas_limit" validate:"gt=0"`
	//A broadcast the node no longer knows after this long counts as a failed submission
	DroppedAfter time.Duration `mapstructure:"dropped_after"`
	//Minimum transfer value in the smallest unit, decimal string
	MinValue string `mapstructure:"min_value"`
	//Queue a second signing request for a busy device instead of failing with DeviceBusy
	QueueWhenBusy bool `mapstructure:"queue_when_busy"`
	//Ask the node for a gas estimate, capped by the chain's gas limit
	EstimateGas bool `mapstructure:"estimate_gas"`
}

type EvmNetworkConfig struct {
	Chain         string `mapstructure:"chain" validate:"required"`
	ChainID       uint64 `mapstructure:"chain_id" validate:"required"`
	RPCUrl        string `mapstructure:"rpc_url" validate:"required"`
	HtlcContract  string `mapstructure:"htlc_contract" validate:"required,eth_addr"`
	TokenContract string `mapstructure:"token_contract" validate:"omitempty,eth_addr"`
	Decimals      int32  `mapstructure:"decimals"`
	Finality      uint64 `mapstructure:"finality"`
	GasLimit      uint64 `mapstructure:"gas_limit"`
}

type KeystoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type ApiConfig struct {
	Listen string `mapstructure:"listen"`
}

type TelemetryConfig struct {
	OtlpEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Engine      EngineConfig       `mapstructure:"engine"`
	EvmNetworks []EvmNetworkConfig `mapstructure:"evm_networks" validate:"dive"`
	Keystore    KeystoreConfig     `mapstructure:"keystore"`
	Api         ApiConfig          `mapstructure:"api"`
	Telemetry   TelemetryConfig    `mapstructure:"telemetry"`
}

var GlobalConfig *Config

// LoadEnv reads the optional .env file into the process environment and lets
// viper resolve keys such as DATABASE_URL from it.
func LoadEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return nil
}

// Load reads config/<environment>.json (or the file given by configFile),
// applies defaults and validates the result.
func Load(environment string, configFile string) error {
	if err := LoadEnv(); err != nil {
		return err
	}
	setDefaults()
	if configFile == "" {
		configFile = fmt.Sprintf("data/%s/config.json", environment)
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	cfg, err := Unmarshal(viper.GetViper())
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

func setDefaults() {
	viper.SetDefault("app.name", "xtransfer")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("engine.retry_ceiling", DEFAULT_RETRY_CEILING)
	viper.SetDefault("engine.retry_delay", DEFAULT_RETRY_DELAY)
	viper.SetDefault("engine.rpc_timeout", DEFAULT_RPC_TIMEOUT)
	viper.SetDefault("engine.reconcile_period", DEFAULT_RECONCILE_PERIOD)
	viper.SetDefault("engine.dropped_after", DEFAULT_DROPPED_AFTER)
	viper.SetDefault("engine.gas_limit", DEFAULT_GAS_LIMIT)
	viper.SetDefault("engine.min_value", "1")
	viper.SetDefault("engine.estimate_gas", true)
	viper.SetDefault("api.listen", ":8080")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.database", "MONGODB_DATABASE")
	viper.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	viper.BindEnv("app.env", "ENV")
	viper.BindEnv("app.is_dev", "IS_DEV")
}

// Unmarshal decodes a viper instance into a validated Config.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if !v.IsSet("engine.estimate_gas") {
		cfg.Engine.EstimateGas = true
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Engine.RetryCeiling == 0 {
		c.Engine.RetryCeiling = DEFAULT_RETRY_CEILING
	}
	if c.Engine.RPCTimeout == 0 {
		c.Engine.RPCTimeout = DEFAULT_RPC_TIMEOUT
	}
	if c.Engine.ReconcilePeriod == 0 {
		c.Engine.ReconcilePeriod = DEFAULT_RECONCILE_PERIOD
	}
	if c.Engine.DroppedAfter == 0 {
		c.Engine.DroppedAfter = DEFAULT_DROPPED_AFTER
	}
	if c.Engine.GasLimit == 0 {
		c.Engine.GasLimit = DEFAULT_GAS_LIMIT
	}
	for i := range c.EvmNetworks {
		network := &c.EvmNetworks[i]
		if network.Finality == 0 {
			network.Finality = DEFAULT_FINALITY
		}
		if network.GasLimit == 0 {
			network.GasLimit = c.Engine.GasLimit
		}
		if network.Decimals == 0 {
			network.Decimals = DEFAULT_DECIMALS
		}
	}
}

func (c *Config) GetEvmNetwork(chain string) (*EvmNetworkConfig, error) {
	for i := range c.EvmNetworks {
		if strings.EqualFold(c.EvmNetworks[i].Chain, chain) {
			return &c.EvmNetworks[i], nil
		}
	}
	return nil, fmt.Errorf("no evm network configured for chain %s", chain)
}
