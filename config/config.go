package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/ClipFinance/swap-lib/bridgepoller"
	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/settlement"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "swap"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the configuration of the swap engine.
type Config struct {
	Log        LogConfig           `mapstructure:"log"`
	Chains     []types.ChainConfig `mapstructure:"chains"`
	ChainsDB   ChainsDBConfig      `mapstructure:"chains_db"`
	Monitor    MonitorConfig       `mapstructure:"monitor"`
	Store      StoreConfig         `mapstructure:"store"`
	Settlement settlement.Config   `mapstructure:"settlement"`
	Bridge     bridgepoller.Config `mapstructure:"bridge"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error.
	Format string `mapstructure:"format"` // text or json.
}

// ChainsDBConfig points at a configuration database holding the chain
// definitions. Keys are never stored there, PrivateKeys maps decimal chain ids to keys.
type ChainsDBConfig struct {
	DSN         string            `mapstructure:"dsn"`
	PrivateKeys map[string]string `mapstructure:"private_keys"`
}

// MonitorConfig configures the RPC health checks of every chain.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// StoreConfig selects the local transaction-state store.
type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig is the connection of the redis store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads the configuration file at path (optional, yaml/json/toml by
// extension), applies SWAP_* environment overrides and validates the result.
// A .env file in the working directory is loaded first when present.
//
// Parameters:
// - path: the configuration file, empty for environment only.
//
// Returns:
// - *Config: the validated configuration.
// - error: an error if the file cannot be read or the configuration is invalid.
func Load(path string) (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	cfg.applyChainDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("chains_db.dsn", "")

	v.SetDefault("monitor.interval", "30s")

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("settlement.base_url", "")
	v.SetDefault("settlement.api_key", "")
	v.SetDefault("settlement.timeout", "15s")
	v.SetDefault("settlement.supported_chains", []uint64{})

	defaults := bridgepoller.DefaultConfig()
	v.SetDefault("bridge.grace_delay", defaults.GraceDelay.String())
	v.SetDefault("bridge.base_interval", defaults.BaseInterval.String())
	v.SetDefault("bridge.backoff_factor", defaults.BackoffFactor)
	v.SetDefault("bridge.max_retries", defaults.MaxRetries)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// applyChainDefaults copies the shared monitor interval into chains without their own.
func (c *Config) applyChainDefaults() {
	for i := range c.Chains {
		if c.Chains[i].MonitorInterval == 0 {
			c.Chains[i].MonitorInterval = c.Monitor.Interval
		}
		c.Chains[i].ChainType = types.ChainType(strings.ToUpper(c.Chains[i].ChainType.String()))
	}
}

// MergeChains appends chains loaded from another source. Chains whose id is
// already configured keep the file or environment definition.
func (c *Config) MergeChains(chains []types.ChainConfig) {
	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, chain := range c.Chains {
		seen[chain.ChainID] = struct{}{}
	}
	for _, chain := range chains {
		if _, ok := seen[chain.ChainID]; ok {
			continue
		}
		seen[chain.ChainID] = struct{}{}
		c.Chains = append(c.Chains, chain)
	}
	c.applyChainDefaults()
}

// Validate checks the configuration for values the engine cannot run with.
//
// Returns:
// - error: an ErrInvalidConfig wrapped description of the first problem found.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 && c.ChainsDB.DSN == "" {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "no chains configured")
	}

	seen := make(map[uint64]struct{}, len(c.Chains))
	for i, chain := range c.Chains {
		if chain.ChainID == 0 {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains[%d]: chain_id is required", i)
		}
		if _, ok := seen[chain.ChainID]; ok {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains[%d]: duplicate chain id %d", i, chain.ChainID)
		}
		seen[chain.ChainID] = struct{}{}

		if types.ParseChainType(chain.ChainType.String()) == types.UNKNOWN {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains[%d]: unknown chain type %q", i, chain.ChainType)
		}
		if chain.RpcUrl == "" {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains[%d]: rpc_url is required", i)
		}
	}

	for id := range c.ChainsDB.PrivateKeys {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains_db.private_keys: %q is not a chain id", id)
		}
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.Wrap(commonerrors.ErrInvalidConfig, "store.dsn is required for postgres")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.Wrap(commonerrors.ErrInvalidConfig, "store.redis.addr is required for redis")
		}
	default:
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "unknown store driver %q", c.Store.Driver)
	}

	if c.Monitor.Interval <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "monitor.interval must be positive")
	}
	if c.Settlement.Timeout <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "settlement.timeout must be positive")
	}
	if c.Bridge.GraceDelay < 0 || c.Bridge.BaseInterval <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "bridge intervals must be positive")
	}
	if c.Bridge.BackoffFactor < 1 || c.Bridge.MaxRetries < 1 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "bridge.backoff_factor and bridge.max_retries must be at least 1")
	}

	return nil
}
