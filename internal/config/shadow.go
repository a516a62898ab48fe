package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"spotHook/internal/model"
)

// Shadow holds the settings of a shadow pool run, shared by replay and watch.
type Shadow struct {
	Pool         string
	Hooks        common.Address
	Out          string
	PGDSN        string
	BatchSize    int
	Initial0     *uint256.Int
	Initial1     *uint256.Int
	ProcessEvery time.Duration
}

var shadowDefaults = map[string]interface{}{
	"out":           "./data/snapshots.jsonl",
	"batch-size":    500,
	"initial0":      "1000000000000000000000",
	"initial1":      "1000000000000000000000",
	"process-every": time.Hour,
}

func withShadowDefaults(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(shadowDefaults)+len(extra))
	for k, v := range shadowDefaults {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func shadowFromViper(v *viper.Viper) (Shadow, error) {
	s := Shadow{
		Pool:         strings.TrimSpace(v.GetString("pool")),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		BatchSize:    v.GetInt("batch-size"),
		ProcessEvery: v.GetDuration("process-every"),
	}
	if s.Pool != "" && !common.IsHexAddress(s.Pool) {
		return Shadow{}, fmt.Errorf("pool %q is not an address: %w", s.Pool, model.ErrRange)
	}
	if raw := strings.TrimSpace(v.GetString("hooks")); raw != "" {
		if !common.IsHexAddress(raw) {
			return Shadow{}, fmt.Errorf("hooks %q is not an address: %w", raw, model.ErrRange)
		}
		s.Hooks = common.HexToAddress(raw)
	}
	if s.BatchSize <= 0 {
		return Shadow{}, fmt.Errorf("batch-size %d: %w", s.BatchSize, model.ErrRange)
	}
	if s.ProcessEvery < 0 {
		return Shadow{}, fmt.Errorf("process-every %s: %w", s.ProcessEvery, model.ErrRange)
	}

	var err error
	if s.Initial0, err = parseAmount("initial0", v.GetString("initial0")); err != nil {
		return Shadow{}, err
	}
	if s.Initial1, err = parseAmount("initial1", v.GetString("initial1")); err != nil {
		return Shadow{}, err
	}
	return s, nil
}

func parseAmount(key, raw string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", key, raw, model.ErrRange)
	}
	return amount, nil
}
