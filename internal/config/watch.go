package config

import (
	"time"

	"github.com/spf13/pflag"
)

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	Config
	Shadow

	RPCURL        string
	Interval      time.Duration
	MaxBlockRange uint64
	MetricsAddr   string
	MaxRetries    int
	RetryBackoff  time.Duration
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := newViper(cfgFile, flags, withShadowDefaults(map[string]interface{}{
		"interval":        15 * time.Second,
		"max-block-range": 2000,
		"metrics-addr":    ":9102",
		"max-retries":     5,
		"retry-backoff":   500 * time.Millisecond,
	}))
	if err != nil {
		return WatchConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return WatchConfig{}, err
	}
	shadow, err := shadowFromViper(v)
	if err != nil {
		return WatchConfig{}, err
	}

	return WatchConfig{
		Config:        base,
		Shadow:        shadow,
		RPCURL:        v.GetString("rpc"),
		Interval:      v.GetDuration("interval"),
		MaxBlockRange: v.GetUint64("max-block-range"),
		MetricsAddr:   v.GetString("metrics-addr"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
	}, nil
}
