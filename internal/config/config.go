// Package config loads the netonboard configuration.
//
// Values come from, in increasing precedence: built-in defaults, the config
// file, NETONBOARD_* environment variables and command line flags.
//
// Config file locations (priority order):
//  1. the --config flag
//  2. $NETONBOARD_CONFIG
//  3. ./netonboard.yaml
//  4. ~/.config/netonboard/config.yaml
//  5. /etc/netonboard/config.yaml
package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"netonboard/internal/driver"
)

var (
	ErrConfig = errors.New("configuration error")
)

const envPrefix = "netonboard"

// Configuration is the root configuration structure.
type Configuration struct {
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	// Concurrency bounds the number of onboarding jobs running at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Connector   ConnectorConfig   `mapstructure:"connector" yaml:"connector"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile" yaml:"reconcile"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

// DatabaseConfig points at the inventory store.
type DatabaseConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ConnectorConfig tunes device sessions.
type ConnectorConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	SSHPort        int           `mapstructure:"ssh_port" yaml:"ssh_port"`
	SNMPPort       int           `mapstructure:"snmp_port" yaml:"snmp_port"`
	ProbeOrder     []string      `mapstructure:"probe_order" yaml:"probe_order"`
	// Reachability is one of tcp, nmap or none.
	Reachability string `mapstructure:"reachability" yaml:"reachability"`
}

// RetryConfig bounds retries of unreachable and store failures.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// ReconcileConfig is the reconcile policy.
type ReconcileConfig struct {
	Timeout                     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DefaultSite                 string        `mapstructure:"default_site" yaml:"default_site"`
	DefaultRole                 string        `mapstructure:"default_role" yaml:"default_role"`
	CreateSiteIfMissing         bool          `mapstructure:"create_site_if_missing" yaml:"create_site_if_missing"`
	CreateManufacturerIfMissing bool          `mapstructure:"create_manufacturer_if_missing" yaml:"create_manufacturer_if_missing"`
	CreateDeviceTypeIfMissing   bool          `mapstructure:"create_device_type_if_missing" yaml:"create_device_type_if_missing"`
	CreatePlatformIfMissing     bool          `mapstructure:"create_platform_if_missing" yaml:"create_platform_if_missing"`
	CreateDeviceRoleIfMissing   bool          `mapstructure:"create_device_role_if_missing" yaml:"create_device_role_if_missing"`
	GuessRoleFromHostname       bool          `mapstructure:"guess_role_from_hostname" yaml:"guess_role_from_hostname"`
}

// CredentialsConfig locates mounted secrets.
type CredentialsConfig struct {
	Paths     []string `mapstructure:"paths" yaml:"paths"`
	EnvPrefix string   `mapstructure:"env_prefix" yaml:"env_prefix"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		LogLevel:      "info",
		ListenAddress: ":8080",
		Concurrency:   4,
		Database: DatabaseConfig{
			Path:    "./netonboard.db",
			Timeout: 10 * time.Second,
		},
		Connector: ConnectorConfig{
			Timeout:        30 * time.Second,
			CommandTimeout: 20 * time.Second,
			SSHPort:        22,
			SNMPPort:       161,
			ProbeOrder:     append([]string(nil), driver.DefaultProbeOrder...),
			Reachability:   driver.ReachabilityTCP,
		},
		Retry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Timeout:                     30 * time.Second,
			DefaultRole:                 "network",
			CreateManufacturerIfMissing: true,
			CreateDeviceTypeIfMissing:   true,
			CreatePlatformIfMissing:     true,
			CreateDeviceRoleIfMissing:   true,
		},
		Credentials: CredentialsConfig{
			Paths:     []string{"/secrets", "/run/secrets"},
			EnvPrefix: "NETONBOARD",
		},
	}
}

// Load reads the config file at cfgFilePath, or the first one found by
// FindConfigPath, and applies environment overrides. A non-empty loglevel
// overrides the configured level.
func Load(cfgFilePath, loglevel string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	// decode onto an empty struct so lists from the file replace the defaults
	cfg := &Configuration{}
	if err := cfg.envBindVars(v); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	if cfgFilePath == "" {
		cfgFilePath = FindConfigPath()
	}

	if err := readInFile(v, cfg, cfgFilePath); err != nil {
		return nil, err
	}

	if loglevel != "" {
		cfg.LogLevel = loglevel
	}

	return cfg, cfg.validate()
}

// setDefaults registers the built-in values so file and env layers merge
// over them key by key.
func setDefaults(v *viper.Viper, cfg *Configuration) error {
	flat, err := flatMap(cfg)
	if err != nil {
		return err
	}
	for k, val := range flat {
		v.SetDefault(k, val)
	}
	return nil
}

// Reads in the cfgFile when available and overrides from environment variables.
func readInFile(v *viper.Viper, cfg *Configuration, path string) error {
	if cfg == nil {
		return ErrConfig
	}

	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}
		defer fh.Close()

		if err = v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error:"+err.Error())
	}

	return nil
}

func (cfg *Configuration) validate() error {
	if cfg == nil {
		return ErrConfig
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return errors.Wrap(ErrConfig, "invalid log_level "+cfg.LogLevel)
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	if cfg.Database.Path == "" {
		return errors.Wrap(ErrConfig, "no database path")
	}

	switch cfg.Connector.Reachability {
	case driver.ReachabilityTCP, driver.ReachabilityNmap, driver.ReachabilityNone:
	default:
		return errors.Wrap(ErrConfig, "invalid connector.reachability "+cfg.Connector.Reachability)
	}

	if cfg.Connector.Timeout <= 0 {
		return errors.Wrap(ErrConfig, "connector.timeout must be positive")
	}

	known := map[string]bool{}
	for _, p := range driver.Profiles() {
		known[p.Name] = true
	}
	known[driver.DriverSNMP] = true
	for _, name := range cfg.Connector.ProbeOrder {
		if !known[name] {
			return errors.Wrap(ErrConfig, "unknown driver in connector.probe_order: "+name)
		}
	}

	if cfg.Retry.MaxRetries < 0 {
		return errors.Wrap(ErrConfig, "retry.max_retries must not be negative")
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		cfg.Retry.MaxBackoff = cfg.Retry.InitialBackoff
	}

	return nil
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (cfg *Configuration) envBindVars(v *viper.Viper) error {
	flat, err := flatMap(cfg)
	if err != nil {
		return err
	}

	for k := range flat {
		if err := v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

func flatMap(cfg *Configuration) (map[string]interface{}, error) {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(cfg, &envKeysMap); err != nil {
		return nil, err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to flatten config")
	}
	return flat, nil
}

// AsLogFields returns the settings worth logging at startup.
func (cfg *Configuration) AsLogFields() logrus.Fields {
	return logrus.Fields{
		"log_level":      cfg.LogLevel,
		"listen_address": cfg.ListenAddress,
		"concurrency":    cfg.Concurrency,
		"database":       cfg.Database.Path,
		"probe_order":    strings.Join(cfg.Connector.ProbeOrder, ","),
		"reachability":   cfg.Connector.Reachability,
		"max_retries":    cfg.Retry.MaxRetries,
		"default_site":   cfg.Reconcile.DefaultSite,
	}
}

// YAML renders the configuration.
func (cfg *Configuration) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return buf.Bytes(), enc.Close()
}

// Save writes the configuration to path.
func (cfg *Configuration) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return errors.Wrap(err, "create config dir")
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
