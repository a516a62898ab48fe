package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Config
	Shadow

	Input     string
	StateFile string
	StateName string
	From      uint64
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, withShadowDefaults(map[string]interface{}{
		"state-name": "replay",
	}))
	if err != nil {
		return ReplayConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return ReplayConfig{}, err
	}
	shadow, err := shadowFromViper(v)
	if err != nil {
		return ReplayConfig{}, err
	}

	from, err := ParseTimestamp(v.GetString("from"))
	if err != nil {
		return ReplayConfig{}, fmt.Errorf("parse from: %w", err)
	}

	return ReplayConfig{
		Config:    base,
		Shadow:    shadow,
		Input:     v.GetString("in"),
		StateFile: v.GetString("state-file"),
		StateName: v.GetString("state-name"),
		From:      from,
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
