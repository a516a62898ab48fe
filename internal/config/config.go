package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/spot"
)

// EnvPrefix prefixes every environment variable, e.g. SPOT_LOG_LEVEL or
// SPOT_POLICY_BASE_FEE_STEP_PPM.
const EnvPrefix = "SPOT"

// Config holds the settings shared by every command.
type Config struct {
	LogLevel        string
	ProtocolAccount common.Address
	Policy          policy.PoolPolicy
	Pools           map[model.PoolID]policy.PoolPolicy
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

// PolicyStore builds a policy store from the defaults and overrides in c.
func (c Config) PolicyStore(logger *zap.Logger) (*policy.Store, error) {
	s, err := policy.NewStore(c.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("policy defaults: %w", err)
	}
	ids := make([]model.PoolID, 0, len(c.Pools))
	for id := range c.Pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	for _, id := range ids {
		if err := s.Set(id, c.Pools[id]); err != nil {
			return nil, fmt.Errorf("policy override %s: %w", id.Hex(), err)
		}
	}
	return s, nil
}

// settings mirrors the nested sections of the config file.
type settings struct {
	Policy policy.PoolPolicy                 `mapstructure:"policy"`
	Pools  map[string]map[string]interface{} `mapstructure:"pools"`
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:        v.GetString("log-level"),
		ProtocolAccount: spot.DefaultProtocolAccount,
		Pools:           make(map[model.PoolID]policy.PoolPolicy),
	}

	if raw := strings.TrimSpace(v.GetString("protocol-account")); raw != "" {
		if !common.IsHexAddress(raw) {
			return Config{}, fmt.Errorf("protocol-account %q is not an address: %w", raw, model.ErrRange)
		}
		cfg.ProtocolAccount = common.HexToAddress(raw)
	}

	// Unmarshal goes through AllSettings, which resolves SPOT_POLICY_* per key.
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return Config{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := policy.Validate(s.Policy); err != nil {
		return Config{}, fmt.Errorf("policy: %w", err)
	}
	cfg.Policy = s.Policy

	for key, fields := range s.Pools {
		id, err := ParsePoolID(key)
		if err != nil {
			return Config{}, err
		}
		p, err := overridePolicy(cfg.Policy, fields)
		if err != nil {
			return Config{}, fmt.Errorf("decode pool %s: %w", key, err)
		}
		cfg.Pools[id] = p
	}
	return cfg, nil
}

// overridePolicy decodes a partial pool section over base.
func overridePolicy(base policy.PoolPolicy, fields map[string]interface{}) (policy.PoolPolicy, error) {
	p := base.Clone()
	if _, ok := fields["supported-tick-spacings"]; ok {
		p.SupportedTickSpacings = nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &p,
	})
	if err != nil {
		return policy.PoolPolicy{}, err
	}
	if err := dec.Decode(fields); err != nil {
		return policy.PoolPolicy{}, err
	}
	return p, nil
}

// ParsePoolID parses a 0x-prefixed 32-byte pool id.
func ParsePoolID(input string) (model.PoolID, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(input))
	if err != nil {
		return model.PoolID{}, fmt.Errorf("pool id %q: %w", input, err)
	}
	if len(raw) != common.HashLength {
		return model.PoolID{}, fmt.Errorf("pool id %q has %d bytes: %w", input, len(raw), model.ErrRange)
	}
	return common.BytesToHash(raw), nil
}

// newViper reads an optional .env file, then layers defaults, the config
// file, SPOT_ environment variables and bound flags.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("protocol-account", "")
	if err := setPolicyDefaults(v, policy.Default()); err != nil {
		return nil, err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// setPolicyDefaults registers every policy key so SPOT_POLICY_* variables
// are picked up by Unmarshal.
func setPolicyDefaults(v *viper.Viper, p policy.PoolPolicy) error {
	fields := make(map[string]interface{})
	if err := mapstructure.Decode(p, &fields); err != nil {
		return fmt.Errorf("policy defaults: %w", err)
	}
	for key, value := range fields {
		v.SetDefault("policy."+key, value)
	}
	return nil
}
