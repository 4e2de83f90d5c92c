// Package sppconfig loads and validates the JSON configuration file that
// names the TSDB connection, the backup server's REST endpoint, and the
// optional SSH appliance, Redis cache and sizing-reference connections;
// which collectors run is chosen by CLI flags, not by this file. It is
// grounded on the teacher's config
// package's viper-based loader, adapted from YAML to the JSON format
// this system's configuration file actually ships in (§6).
package sppconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InfluxDB holds the storage backend connection settings.
type InfluxDB struct {
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	SSL           bool   `mapstructure:"ssl"`
	VerifySSL     bool   `mapstructure:"verifySSL"`
	SrvAddress    string `mapstructure:"srvAddress"`
	SrvPort       int    `mapstructure:"srvPort"`
	Database      string `mapstructure:"dbName"`
	ReadOnlyUser  string `mapstructure:"readOnlyUser"`
}

// SppServer holds the backup server REST API connection settings.
type SppServer struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	SSL        bool   `mapstructure:"ssl"`
	VerifySSL  bool   `mapstructure:"verifySSL"`
	SrvAddress string `mapstructure:"srvAddress"`
	SrvPort    int    `mapstructure:"srvPort"`

	// JobLogRetention bounds how far back the harvester looks for
	// unharvested sessions, e.g. "60d". Empty means the default applies
	// (DefaultJobLogRetention).
	JobLogRetention string `mapstructure:"jobLog_retention"`
}

// DefaultJobLogRetention is used when the config file omits
// sppServer.jobLog_retention (§6).
const DefaultJobLogRetention = "60d"

// SSHAppliance holds the optional appliance SSH diagnostics connection.
type SSHAppliance struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	SrvAddress string `mapstructure:"srvAddress"`
	SrvPort    int    `mapstructure:"srvPort"`
}

// Redis holds the optional schema read-through cache connection. An
// empty SrvAddress disables caching and Reconcile reads the TSDB
// directly on every run.
type Redis struct {
	SrvAddress string `mapstructure:"srvAddress"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
}

// SizingRef holds the optional Postgres DSN for the appliance sizing
// reference table. An empty DSN disables throughput-range checks.
type SizingRef struct {
	DSN string `mapstructure:"dsn"`
}

// Config is the full decoded configuration file.
type Config struct {
	InfluxDB     InfluxDB     `mapstructure:"influxDB"`
	SppServer    SppServer    `mapstructure:"sppServer"`
	SSHAppliance SSHAppliance `mapstructure:"sshclients"`
	Redis        Redis        `mapstructure:"redis"`
	SizingRef    SizingRef    `mapstructure:"sizingRef"`
}

// ConfigError reports a missing or invalid critical configuration key,
// the §7 "configuration error" category, fatal at startup (exit code 3;
// a missing --cfg argument exits with 2).
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sppconfig: %s: %s", e.Key, e.Reason)
}

// envPrefix is the prefix viper uses to override config file keys from
// the environment, e.g. SPPMON_INFLUXDB_PASSWORD overrides
// influxDB.password. Lets a container deployment inject secrets without
// baking them into the config file.
const envPrefix = "SPPMON"

// Load reads and decodes the JSON config file at path, letting any
// SPPMON_-prefixed environment variable override the matching key.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("sppconfig: reading %s: %w", path, err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("sppconfig: decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every critical key is present; it does not attempt to
// connect to either endpoint, only that the configuration is internally
// complete enough to try.
func Validate(cfg *Config) error {
	required := []struct {
		key   string
		value string
	}{
		{"influxDB.srvAddress", cfg.InfluxDB.SrvAddress},
		{"influxDB.dbName", cfg.InfluxDB.Database},
		{"sppServer.srvAddress", cfg.SppServer.SrvAddress},
		{"sppServer.username", cfg.SppServer.Username},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Key: strings.Join(missing, ", "), Reason: "required but empty"}
	}
	if cfg.InfluxDB.SrvPort == 0 {
		return &ConfigError{Key: "influxDB.srvPort", Reason: "must be non-zero"}
	}
	if cfg.SppServer.SrvPort == 0 {
		return &ConfigError{Key: "sppServer.srvPort", Reason: "must be non-zero"}
	}
	return nil
}
