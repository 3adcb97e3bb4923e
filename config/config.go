// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the configuration of the adjudicator demo. Values are
// read with viper from defaults, an optional config file and NITRO_ prefixed
// environment variables, in increasing order of precedence.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. NITRO_STORE_BACKEND.
const EnvPrefix = "NITRO"

const (
	// StoreBackendMem keeps custody in memory.
	StoreBackendMem = "mem"
	// StoreBackendBolt keeps custody in a bbolt database file.
	StoreBackendBolt = "bolt"
)

// Config is the top level configuration.
type Config struct {
	Ledger          *LedgerConfig          `mapstructure:"ledger"`
	Store           *StoreConfig           `mapstructure:"store"`
	Payment         *PaymentConfig         `mapstructure:"payment"`
	Log             *LogConfig             `mapstructure:"log"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ledger:          DefaultLedgerConfig(),
		Store:           DefaultStoreConfig(),
		Payment:         DefaultPaymentConfig(),
		Log:             DefaultLogConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.Ledger.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [ledger] section")
	}
	if err := cfg.Store.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [store] section")
	}
	if err := cfg.Payment.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [payment] section")
	}
	return errors.Wrap(cfg.Log.ValidateBasic(), "error in [log] section")
}

// SetDefaults registers every key of the default configuration with v, so
// that v resolves them from the environment.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("ledger.chain_id", d.Ledger.ChainID)
	v.SetDefault("ledger.challenge_duration", d.Ledger.ChallengeDuration)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("payment.mode", d.Payment.Mode)
	v.SetDefault("payment.initial_balance", d.Payment.InitialBalance)
	v.SetDefault("payment.ledger_deposit", d.Payment.LedgerDeposit)
	v.SetDefault("payment.virtual_deposit", d.Payment.VirtualDeposit)
	v.SetDefault("payment.amount", d.Payment.Amount)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("instrumentation.prometheus", d.Instrumentation.Prometheus)
	v.SetDefault("instrumentation.prometheus_listen_addr", d.Instrumentation.PrometheusListenAddr)
	v.SetDefault("instrumentation.namespace", d.Instrumentation.Namespace)
}

// InitEnv makes v read NITRO_ prefixed environment variables. Dots and dashes
// in keys become underscores.
func InitEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v. If configFile is not empty, it is read
// first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	InitEnv(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//-----------------------------------------------------------------------------
// LedgerConfig

// LedgerConfig defines the simulated ledger.
type LedgerConfig struct {
	// ChainID is part of every channel id.
	ChainID uint64 `mapstructure:"chain_id"`
	// ChallengeDuration is the time in ledger seconds a challenge stays open.
	ChallengeDuration uint64 `mapstructure:"challenge_duration"`
}

// DefaultLedgerConfig returns the default ledger configuration.
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{ChainID: 0x1234, ChallengeDuration: 1}
}

// ValidateBasic performs basic validation.
func (cfg *LedgerConfig) ValidateBasic() error {
	if cfg.ChallengeDuration == 0 {
		return errors.New("challenge_duration must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StoreConfig

// StoreConfig selects where custody is kept.
type StoreConfig struct {
	// Backend is "mem" or "bolt".
	Backend string `mapstructure:"backend"`
	// Path is the database file of the bolt backend.
	Path string `mapstructure:"path"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Backend: StoreBackendMem, Path: "data/ledger.db"}
}

// ValidateBasic performs basic validation.
func (cfg *StoreConfig) ValidateBasic() error {
	switch cfg.Backend {
	case StoreBackendMem:
		return nil
	case StoreBackendBolt:
		if cfg.Path == "" {
			return errors.New("path is required for the bolt backend")
		}
		return nil
	default:
		return errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

//-----------------------------------------------------------------------------
// PaymentConfig

// PaymentConfig defines the amounts of the demo payment.
type PaymentConfig struct {
	// Mode is "dispute" or "cooperative".
	Mode           string `mapstructure:"mode"`
	InitialBalance int64  `mapstructure:"initial_balance"`
	LedgerDeposit  int64  `mapstructure:"ledger_deposit"`
	VirtualDeposit int64  `mapstructure:"virtual_deposit"`
	// Amount is paid by Bob to Alice.
	Amount int64 `mapstructure:"amount"`
}

// DefaultPaymentConfig returns the default payment configuration.
func DefaultPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		Mode:           "dispute",
		InitialBalance: 10_000,
		LedgerDeposit:  1_000,
		VirtualDeposit: 100,
		Amount:         90,
	}
}

// ValidateBasic performs basic validation. The relation between the amounts
// is checked when the payment is set up.
func (cfg *PaymentConfig) ValidateBasic() error {
	if cfg.Mode != "dispute" && cfg.Mode != "cooperative" {
		return errors.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.InitialBalance < 0 || cfg.LedgerDeposit < 0 || cfg.VirtualDeposit < 0 || cfg.Amount < 0 {
		return errors.New("amounts can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// LogConfig

// LogConfig defines the logger.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `mapstructure:"level"`
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info"}
}

// ValidateBasic performs basic validation.
func (cfg *LogConfig) ValidateBasic() error {
	_, err := cfg.ParseLevel()
	return err
}

// ParseLevel returns the configured logrus level.
func (cfg *LogConfig) ParseLevel() (logrus.Level, error) {
	return logrus.ParseLevel(cfg.Level)
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the metrics exposed by the adjudicator.
type InstrumentationConfig struct {
	// When true, metrics are served under /metrics on PrometheusListenAddr.
	Prometheus           bool   `mapstructure:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`
	// Namespace prefixes all metric names.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns the default instrumentation
// configuration.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "nitro",
	}
}
