// Package config loads the relayer's TOML configuration document, applying
// ${VAR}-style environment variable substitution before decoding, the same
// technique the validator's YAML config loader used.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// DefaultConfigPath is used when RELAYER_CONFIG is unset.
const DefaultConfigPath = "config/default.toml"

// GasPriceStrategy selects how a chain's gas price is computed.
type GasPriceStrategy string

const (
	GasPriceLegacy   GasPriceStrategy = "legacy"
	GasPriceEIP1559  GasPriceStrategy = "eip1559"
	GasPriceArbitrum GasPriceStrategy = "arbitrum"
	GasPriceOptimism GasPriceStrategy = "optimism"
)

// Settings is the root configuration document.
type Settings struct {
	Relayer  RelayerConfig          `toml:"relayer"`
	Database DatabaseConfig         `toml:"database"`
	API      APIConfig              `toml:"api"`
	Metrics  MetricsConfig          `toml:"metrics"`
	Chains   map[string]ChainConfig `toml:"chains"`
	Wallet   WalletConfig           `toml:"wallet"`
	Alerts   AlertsConfig           `toml:"alerts"`
}

type RelayerConfig struct {
	InstanceID              string `toml:"instance_id"`
	PollIntervalMs          uint64 `toml:"poll_interval_ms"`
	MaxConcurrentTxs        int    `toml:"max_concurrent_txs"`
	MaxRetries              uint32 `toml:"max_retries"`
	RetryDelayMs            uint64 `toml:"retry_delay_ms"`
	HealthCheckIntervalSecs uint64 `toml:"health_check_interval_secs"`
}

type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConnections uint32 `toml:"max_connections"`
	MinConnections uint32 `toml:"min_connections"`
}

type APIConfig struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    uint16 `toml:"port"`
}

// ChainConfig describes one configured chain, including the rollup registry
// entry used to resolve a TransactionBuffered event's target chain.
type ChainConfig struct {
	ChainID            uint64           `toml:"chain_id"`
	Name               string           `toml:"name"`
	RPCURLs            []string         `toml:"rpc_urls"`
	WSURL              string           `toml:"ws_url"`
	ContractAddress    string           `toml:"contract_address"`
	CoordinatorAddress string           `toml:"coordinator_address"`
	ConfirmationBlocks uint64           `toml:"confirmation_blocks"`
	GasPriceStrategy   GasPriceStrategy `toml:"gas_price_strategy"`
	MaxGasPriceGwei    uint64           `toml:"max_gas_price_gwei"`
	RollupAddress      string           `toml:"rollup_address"`
	Enabled            bool             `toml:"enabled"`
}

type WalletConfig struct {
	KeystorePath  string `toml:"keystore_path"`
	PrivateKeyEnv string `toml:"private_key_env"`
}

type AlertsConfig struct {
	MinBalanceEth   float64 `toml:"min_balance_eth"`
	SlackWebhookURL string  `toml:"slack_webhook_url"`
	PagerdutyKey    string  `toml:"pagerduty_key"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} occurrences with the value of the
// matching environment variable, leaving unset variables as an empty string.
func substituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Load reads the config file named by RELAYER_CONFIG (or DefaultConfigPath),
// substitutes environment variables, decodes the TOML, and validates it.
func Load() (*Settings, error) {
	path := os.Getenv("RELAYER_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile loads and validates a specific config file path.
func LoadFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, relayererr.Wrap(relayererr.KindConfig, fmt.Sprintf("failed to read config file: %s", path), err)
	}

	substituted := substituteEnvVars(string(raw))

	var settings Settings
	if _, err := toml.Decode(substituted, &settings); err != nil {
		return nil, relayererr.Wrap(relayererr.KindConfig, "failed to parse configuration", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if settings.Relayer.InstanceID == "" {
		settings.Relayer.InstanceID = "relayer-" + uuid.NewString()
	}

	return &settings, nil
}

// Validate checks that the configuration is internally consistent.
func (s *Settings) Validate() error {
	if len(s.EnabledChains()) == 0 {
		return relayererr.New(relayererr.KindConfig, "at least one chain must be enabled")
	}

	for name, chain := range s.Chains {
		if !chain.Enabled {
			continue
		}
		if len(chain.RPCURLs) == 0 {
			return relayererr.New(relayererr.KindConfig, fmt.Sprintf("chain %s has no RPC URLs configured", name))
		}
		if strings.TrimSpace(chain.ContractAddress) == "" {
			return relayererr.New(relayererr.KindConfig, fmt.Sprintf("chain %s has no contract address configured", name))
		}
	}

	return nil
}

// EnabledChains returns the configured chains with Enabled set, keyed by
// their config section name.
func (s *Settings) EnabledChains() map[string]ChainConfig {
	out := make(map[string]ChainConfig)
	for name, chain := range s.Chains {
		if chain.Enabled {
			out[name] = chain
		}
	}
	return out
}

// ChainByID returns the chain config with the given on-chain ID, if any.
func (s *Settings) ChainByID(chainID uint64) (ChainConfig, bool) {
	for _, chain := range s.Chains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return ChainConfig{}, false
}

// ResolveTargetChain maps a rollup contract address to the chain ID that
// owns it, per the configured rollup registry. Addresses are compared as
// 20-byte values, so case and leading-zero padding do not matter; chains
// with no rollup_address never match. Unmapped addresses return
// ok=false so callers can drop the transaction with a warning rather than
// guessing a default chain.
func (s *Settings) ResolveTargetChain(rollupAddress string) (uint64, bool) {
	target := common.HexToAddress(rollupAddress)
	for _, chain := range s.Chains {
		if strings.TrimSpace(chain.RollupAddress) == "" {
			continue
		}
		if common.HexToAddress(chain.RollupAddress) == target {
			return chain.ChainID, true
		}
	}
	return 0, false
}
