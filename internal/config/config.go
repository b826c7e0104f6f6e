package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration for proverd.
//
// Precedence: runtime overrides > environment (PROVERD_*) > config file >
// defaults. Required settings are validated per entry point (the control
// service and the poller need different subsets) rather than globally.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Ethproofs EthproofsConfig `mapstructure:"ethproofs"`
	Prover    ProverConfig    `mapstructure:"prover"`
	Keys      KeysConfig      `mapstructure:"keys"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ChainConfig describes the Ethereum RPC endpoint the poller watches.
type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// EthproofsConfig describes the attestation API account.
//
// Env selects which deployment the harness reports to; the staging and
// production deployments use distinct base URLs and API keys.
type EthproofsConfig struct {
	Env        string `mapstructure:"env"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	ClusterID  int64  `mapstructure:"cluster_id"`
	VerifierID string `mapstructure:"verifier_id"`
}

// ProverConfig describes the external proving pipeline and poller cadence.
type ProverConfig struct {
	JobsDir         string        `mapstructure:"jobs_dir"`
	Script          string        `mapstructure:"script"`
	ConfigTag       string        `mapstructure:"config_tag"`
	Interval        uint64        `mapstructure:"interval"`
	BlockTime       time.Duration `mapstructure:"block_time"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	PrepareBackoff  time.Duration `mapstructure:"prepare_backoff"`
	PrepareAttempts int           `mapstructure:"prepare_attempts"`
}

// KeysConfig lists proving-key artifacts to download at startup.
type KeysConfig struct {
	AppURI  string `mapstructure:"app_uri"`
	AppPath string `mapstructure:"app_path"`
	AggURI  string `mapstructure:"agg_uri"`
	AggPath string `mapstructure:"agg_path"`
}

const envPrefix = "PROVERD"

var (
	configMu  sync.Mutex
	appConfig *Config
)

// Load builds the configuration from defaults, an optional config file, the
// environment, and finally any runtime override maps (last wins). The result
// is retained for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("proverd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/proverd")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("merge overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil before the
// first Load.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("chain.rpc_url", "")

	v.SetDefault("ethproofs.env", "staging")
	v.SetDefault("ethproofs.base_url", "")
	v.SetDefault("ethproofs.api_key", "")
	v.SetDefault("ethproofs.cluster_id", 1)
	v.SetDefault("ethproofs.verifier_id", "powdr_verifier")

	v.SetDefault("prover.jobs_dir", "/app/jobs")
	v.SetDefault("prover.script", "/app/prove_block.sh")
	v.SetDefault("prover.config_tag", "default")
	v.SetDefault("prover.interval", uint64(100))
	v.SetDefault("prover.block_time", 12*time.Second)
	v.SetDefault("prover.error_backoff", 10*time.Second)
	v.SetDefault("prover.prepare_backoff", 5*time.Second)
	// <= 0 retries the prepare phase forever, the production default.
	v.SetDefault("prover.prepare_attempts", 0)

	v.SetDefault("keys.app_uri", "")
	v.SetDefault("keys.app_path", "/app/app_pk")
	v.SetDefault("keys.agg_uri", "")
	v.SetDefault("keys.agg_path", "/app/agg_pk")
}

// EthproofsBaseURL resolves the effective attestation API base URL: an
// explicit base_url wins, otherwise the env name selects a deployment.
func (c *Config) EthproofsBaseURL() string {
	if c.Ethproofs.BaseURL != "" {
		return c.Ethproofs.BaseURL
	}
	if strings.EqualFold(c.Ethproofs.Env, "production") {
		return "https://ethproofs.org/api/v0"
	}
	return "https://staging--ethproofs.netlify.app/api/v0"
}

// ValidateForServer checks settings the control service cannot run without.
func (c *Config) ValidateForServer() error {
	if strings.TrimSpace(c.Prover.JobsDir) == "" {
		return fmt.Errorf("prover.jobs_dir is required (PROVERD_PROVER_JOBS_DIR)")
	}
	if strings.TrimSpace(c.Prover.Script) == "" {
		return fmt.Errorf("prover.script is required (PROVERD_PROVER_SCRIPT)")
	}
	return nil
}

// ValidateForPoller checks settings the block interval poller cannot run
// without. Missing values here are fatal at startup.
func (c *Config) ValidateForPoller() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required (PROVERD_CHAIN_RPC_URL)")
	}
	if strings.TrimSpace(c.Ethproofs.APIKey) == "" {
		return fmt.Errorf("ethproofs.api_key is required (PROVERD_ETHPROOFS_API_KEY)")
	}
	if c.Ethproofs.ClusterID <= 0 {
		return fmt.Errorf("ethproofs.cluster_id must be positive")
	}
	if c.Prover.Interval == 0 {
		return fmt.Errorf("prover.interval must be positive")
	}
	return c.ValidateForServer()
}
