package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// RPCURL, ContractAddress, and PrivateKey select the live gateway; leaving
// them empty selects demo mode.
type Config struct {
	RPCURL          string
	WSURL           string
	ContractAddress string
	PrivateKey      string
	ChainID         int64

	F1APIURL string
	Season   string

	LookbackBlocks  uint64
	ConfirmTimeout  time.Duration
	RefreshInterval time.Duration
	SimDelay        time.Duration

	FeedPath    string
	PGDSN       string
	RedisAddr   string
	RedisTTL    time.Duration
	MetricsPort int

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLAREBETS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", int64(114))
	v.SetDefault("f1-api-url", "https://api.jolpi.ca/ergast/f1")
	v.SetDefault("season", "2025")
	v.SetDefault("lookback-blocks", uint64(50000))
	v.SetDefault("confirm-timeout", 2*time.Minute)
	v.SetDefault("refresh-interval", 30*time.Second)
	v.SetDefault("sim-delay", 1500*time.Millisecond)
	v.SetDefault("redis-ttl", 10*time.Minute)
	v.SetDefault("metrics-port", 9090)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		WSURL:           v.GetString("ws-rpc"),
		ContractAddress: v.GetString("contract-address"),
		PrivateKey:      v.GetString("private-key"),
		ChainID:         v.GetInt64("chain-id"),
		F1APIURL:        v.GetString("f1-api-url"),
		Season:          v.GetString("season"),
		LookbackBlocks:  v.GetUint64("lookback-blocks"),
		ConfirmTimeout:  v.GetDuration("confirm-timeout"),
		RefreshInterval: v.GetDuration("refresh-interval"),
		SimDelay:        v.GetDuration("sim-delay"),
		FeedPath:        v.GetString("feed-path"),
		PGDSN:           v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisTTL:        v.GetDuration("redis-ttl"),
		MetricsPort:     v.GetInt("metrics-port"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Live reports whether the configuration selects the live gateway.
func (c Config) Live() bool {
	return c.RPCURL != "" && c.ContractAddress != ""
}
