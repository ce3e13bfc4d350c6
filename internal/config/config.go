package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/registry"
)

// GasStrategy fixes both the fee-bidding profile and how long the client waits
// for a broadcast transaction to confirm.
type GasStrategy string

const (
	GasFast    GasStrategy = "fast"    // mined within ~60 seconds
	GasMedium  GasStrategy = "medium"  // mined within ~5 minutes
	GasSlow    GasStrategy = "slow"    // mined within ~1 hour
	GasGlacial GasStrategy = "glacial" // mined within ~24 hours
)

var confirmationTimeouts = map[GasStrategy]time.Duration{
	GasFast:    60 * time.Second,
	GasMedium:  5 * time.Minute,
	GasSlow:    time.Hour,
	GasGlacial: 24 * time.Hour,
}

// tipPercents scales the node-suggested priority fee per strategy.
var tipPercents = map[GasStrategy]int64{
	GasFast:    200,
	GasMedium:  100,
	GasSlow:    80,
	GasGlacial: 50,
}

func (g GasStrategy) ConfirmationTimeout() time.Duration {
	return confirmationTimeouts[g]
}

func (g GasStrategy) TipPercent() int64 {
	return tipPercents[g]
}

func (g GasStrategy) valid() bool {
	_, ok := confirmationTimeouts[g]
	return ok
}

// Options are the caller-facing construction inputs. Zero values fall back to
// the config file and environment.
type Options struct {
	ConfigPath    string
	MainnetRPCURL string
	GoerliRPCURL  string
	WalletAddress string
	PrivateKey    string
	KeystorePath  string
	GasStrategy   string
}

// Settings is the validated configuration for one client instance. Exactly
// one network is active.
type Settings struct {
	Network          registry.Network
	RPCURL           string
	WalletAddress    string
	PrivateKey       string
	KeystorePath     string
	KeystorePassword string
	GasStrategy      GasStrategy
	HTTPTimeout      time.Duration
	HTTPRetries      int
	TradeStorePath   string
	TradeLockPath    string
}

type fileConfig struct {
	RPC struct {
		Mainnet string `yaml:"mainnet"`
		Goerli  string `yaml:"goerli"`
	} `yaml:"rpc"`
	GasStrategy string `yaml:"gas_strategy"`
	Wallet      struct {
		Address      string `yaml:"address"`
		KeystorePath string `yaml:"keystore_path"`
	} `yaml:"wallet"`
	HTTP struct {
		Timeout string `yaml:"timeout"`
		Retries *int   `yaml:"retries"`
	} `yaml:"http"`
	Trades struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"trades"`
}

// Load merges defaults, the optional yaml config file, environment variables,
// and explicit options (highest precedence), then validates. Network and gas
// strategy mistakes fail here, before any network call is attempted.
func Load(opts Options) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return Settings{}, clierr.Wrap(clierr.CodeConfig, "resolve config path", err)
	}
	var mainnetURL, goerliURL string
	if err := applyFileConfig(cfgPath, &settings, &mainnetURL, &goerliURL); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings, &mainnetURL, &goerliURL)

	if strings.TrimSpace(opts.MainnetRPCURL) != "" {
		mainnetURL = strings.TrimSpace(opts.MainnetRPCURL)
	}
	if strings.TrimSpace(opts.GoerliRPCURL) != "" {
		goerliURL = strings.TrimSpace(opts.GoerliRPCURL)
	}
	if strings.TrimSpace(opts.WalletAddress) != "" {
		settings.WalletAddress = strings.TrimSpace(opts.WalletAddress)
	}
	if strings.TrimSpace(opts.PrivateKey) != "" {
		settings.PrivateKey = strings.TrimSpace(opts.PrivateKey)
	}
	if strings.TrimSpace(opts.KeystorePath) != "" {
		settings.KeystorePath = strings.TrimSpace(opts.KeystorePath)
	}
	if strings.TrimSpace(opts.GasStrategy) != "" {
		settings.GasStrategy = GasStrategy(strings.ToLower(strings.TrimSpace(opts.GasStrategy)))
	}

	switch {
	case mainnetURL == "" && goerliURL == "":
		return Settings{}, clierr.New(clierr.CodeConfig,
			"missing RPC URL: configure exactly one of the mainnet or goerli endpoints")
	case mainnetURL != "" && goerliURL != "":
		return Settings{}, clierr.New(clierr.CodeConfig,
			"only one active network is supported at a time: configure either the mainnet or the goerli endpoint, not both")
	case mainnetURL != "":
		settings.Network = registry.Mainnet
		settings.RPCURL = mainnetURL
	default:
		settings.Network = registry.Goerli
		settings.RPCURL = goerliURL
	}

	if !settings.GasStrategy.valid() {
		return Settings{}, clierr.New(clierr.CodeConfig,
			fmt.Sprintf("invalid gas strategy %q: available strategies are fast, medium, slow, or glacial", settings.GasStrategy))
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	tradePath, lockPath, err := defaultTradePaths()
	if err != nil {
		return Settings{}, clierr.Wrap(clierr.CodeConfig, "resolve data directory", err)
	}
	return Settings{
		GasStrategy:    GasMedium,
		HTTPTimeout:    10 * time.Second,
		HTTPRetries:    2,
		TradeStorePath: tradePath,
		TradeLockPath:  lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "aaveclient", "config.yaml"), nil
}

func defaultTradePaths() (string, string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "aaveclient")
	return filepath.Join(dir, "trades.db"), filepath.Join(dir, "trades.lock"), nil
}

func applyFileConfig(path string, settings *Settings, mainnetURL, goerliURL *string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return clierr.Wrap(clierr.CodeConfig, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse config yaml", err)
	}

	if cfg.RPC.Mainnet != "" {
		*mainnetURL = cfg.RPC.Mainnet
	}
	if cfg.RPC.Goerli != "" {
		*goerliURL = cfg.RPC.Goerli
	}
	if cfg.GasStrategy != "" {
		settings.GasStrategy = GasStrategy(strings.ToLower(cfg.GasStrategy))
	}
	if cfg.Wallet.Address != "" {
		settings.WalletAddress = cfg.Wallet.Address
	}
	if cfg.Wallet.KeystorePath != "" {
		settings.KeystorePath = cfg.Wallet.KeystorePath
	}
	if cfg.HTTP.Timeout != "" {
		d, err := time.ParseDuration(cfg.HTTP.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "config http.timeout", err)
		}
		settings.HTTPTimeout = d
	}
	if cfg.HTTP.Retries != nil {
		settings.HTTPRetries = *cfg.HTTP.Retries
	}
	if cfg.Trades.Path != "" {
		settings.TradeStorePath = cfg.Trades.Path
	}
	if cfg.Trades.LockPath != "" {
		settings.TradeLockPath = cfg.Trades.LockPath
	}
	return nil
}

func applyEnv(settings *Settings, mainnetURL, goerliURL *string) {
	if v := os.Getenv("AAVE_MAINNET_RPC_URL"); v != "" {
		*mainnetURL = v
	}
	if v := os.Getenv("AAVE_GOERLI_RPC_URL"); v != "" {
		*goerliURL = v
	}
	if v := os.Getenv("AAVE_WALLET_ADDRESS"); v != "" {
		settings.WalletAddress = v
	}
	if v := os.Getenv("AAVE_PRIVATE_KEY"); v != "" {
		settings.PrivateKey = v
	}
	if v := os.Getenv("AAVE_KEYSTORE_PATH"); v != "" {
		settings.KeystorePath = v
	}
	if v := os.Getenv("AAVE_KEYSTORE_PASSWORD"); v != "" {
		settings.KeystorePassword = v
	}
	if v := os.Getenv("AAVE_GAS_STRATEGY"); v != "" {
		settings.GasStrategy = GasStrategy(strings.ToLower(v))
	}
	if v := os.Getenv("AAVE_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.HTTPTimeout = d
		}
	}
	if v := os.Getenv("AAVE_HTTP_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			settings.HTTPRetries = n
		}
	}
	if v := os.Getenv("AAVE_TRADES_PATH"); v != "" {
		settings.TradeStorePath = v
	}
	if v := os.Getenv("AAVE_TRADES_LOCK_PATH"); v != "" {
		settings.TradeLockPath = v
	}
}
