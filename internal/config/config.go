package config

import (
	"flag"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"icgateway/internal/constants"
	"icgateway/internal/utils"
)

const (
	EnvListenAddr           = "ICGW_LISTEN_ADDR"
	EnvNetworkURL           = "ICGW_NETWORK_URL"
	EnvFetchRootKey         = "ICGW_FETCH_ROOT_KEY"
	EnvPollingInterval      = "ICGW_POLLING_INTERVAL"
	EnvCallTimeout          = "ICGW_CALL_TIMEOUT"
	EnvRedisURL             = "REDIS_URL"
	EnvSessionTTL           = "ICGW_SESSION_TTL"
	EnvMaxConnPerIP         = "ICGW_MAX_CONN_PER_IP"
	EnvMaxHandshakeFailures = "ICGW_MAX_HANDSHAKE_FAILURES"
	EnvAllowedOrigins       = "ICGW_ALLOWED_ORIGINS"
	EnvLogLevel             = "ICGW_LOG_LEVEL"
	EnvLogPretty            = "ICGW_LOG_PRETTY"
	EnvLogFile              = "ICGW_LOG_FILE"
)

// Config is built once at startup and passed by value to every component.
type Config struct {
	ListenAddr           string
	NetworkURL           string
	FetchRootKey         bool
	PollingInterval      time.Duration
	CallTimeout          time.Duration
	RedisURL             string
	SessionTTL           time.Duration
	MaxConnectionsPerIP  int
	MaxHandshakeFailures int
	AllowedOrigins       []string
	LogLevel             string
	LogPretty            bool
	LogFile              bool
}

func Default() Config {
	return Config{
		ListenAddr:           constants.DefaultListenAddr,
		NetworkURL:           constants.DefaultNetworkURL,
		FetchRootKey:         true,
		PollingInterval:      constants.DefaultPollingInterval,
		CallTimeout:          constants.DefaultCallTimeout,
		RedisURL:             constants.DefaultRedisURL,
		SessionTTL:           constants.DefaultSessionTTL,
		MaxConnectionsPerIP:  constants.DefaultMaxConnectionsPerIP,
		MaxHandshakeFailures: constants.DefaultMaxHandshakeFailures,
		LogLevel:             "info",
	}
}

// FromEnv overlays environment variables on the defaults.
func FromEnv() Config {
	def := Default()
	return Config{
		ListenAddr:           utils.GetEnv(EnvListenAddr, def.ListenAddr),
		NetworkURL:           utils.GetEnv(EnvNetworkURL, def.NetworkURL),
		FetchRootKey:         utils.GetEnvBool(EnvFetchRootKey, def.FetchRootKey),
		PollingInterval:      utils.GetEnvDuration(EnvPollingInterval, def.PollingInterval),
		CallTimeout:          utils.GetEnvDuration(EnvCallTimeout, def.CallTimeout),
		RedisURL:             utils.GetEnv(EnvRedisURL, def.RedisURL),
		SessionTTL:           utils.GetEnvDuration(EnvSessionTTL, def.SessionTTL),
		MaxConnectionsPerIP:  utils.GetEnvInt(EnvMaxConnPerIP, def.MaxConnectionsPerIP),
		MaxHandshakeFailures: utils.GetEnvInt(EnvMaxHandshakeFailures, def.MaxHandshakeFailures),
		AllowedOrigins:       utils.GetEnvList(EnvAllowedOrigins),
		LogLevel:             utils.GetEnv(EnvLogLevel, def.LogLevel),
		LogPretty:            utils.GetEnvBool(EnvLogPretty, def.LogPretty),
		LogFile:              utils.GetEnvBool(EnvLogFile, def.LogFile),
	}
}

// Load reads an optional dotenv file, then the environment, then command
// line flags. A missing envFile is not an error.
func Load(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	cfg := FromEnv()

	flags := flag.NewFlagSet(constants.AppName, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address the websocket server listens on")
	flags.StringVar(&cfg.NetworkURL, "network-url", cfg.NetworkURL, "replica endpoint URL")
	flags.BoolVar(&cfg.FetchRootKey, "fetch-root-key", cfg.FetchRootKey, "fetch the network root key on startup (local replicas only)")
	flags.DurationVar(&cfg.PollingInterval, "polling-interval", cfg.PollingInterval, "interval between canister message polls")
	flags.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "timeout applied to every canister call")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "session store connection string")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse flags")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen address is empty")
	}
	u, err := url.Parse(c.NetworkURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid network url %q", c.NetworkURL)
	}
	if c.PollingInterval <= 0 {
		return errors.Errorf("polling interval must be positive, got %s", c.PollingInterval)
	}
	if c.CallTimeout <= 0 {
		return errors.Errorf("call timeout must be positive, got %s", c.CallTimeout)
	}
	if c.SessionTTL <= 0 {
		return errors.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.MaxConnectionsPerIP <= 0 {
		return errors.Errorf("max connections per ip must be positive, got %d", c.MaxConnectionsPerIP)
	}
	if c.MaxHandshakeFailures <= 0 {
		return errors.Errorf("max handshake failures must be positive, got %d", c.MaxHandshakeFailures)
	}
	return nil
}
