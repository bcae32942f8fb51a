// Package config loads and validates loglite's configuration document.
//
// Loading is built on github.com/spf13/viper, which auto-detects
// YAML/TOML/JSON by file extension and lets every key be overridden by an
// LOGLITE_-prefixed environment variable.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
)

// Migration is one entry of the configured migration sequence.
type Migration struct {
	Version  int      `mapstructure:"version"`
	Rollout  []string `mapstructure:"rollout"`
	Rollback []string `mapstructure:"rollback"`
}

// Compression configures which columns are zstd-compressed before storage.
type Compression struct {
	Enabled bool     `mapstructure:"enabled"`
	Columns []string `mapstructure:"columns"`
}

// Harvester is a single harvester declaration. Fields beyond Type/Name are
// harvester-specific and are decoded later by the harvester registry, so
// they are kept here as a generic map (mapstructure leaves unrecognized
// keys in ",remain").
type Harvester struct {
	Type   string         `mapstructure:"type"`
	Name   string         `mapstructure:"name"`
	Fields map[string]any `mapstructure:",remain"`
}

// Config is loglite's fully decoded configuration document.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	DBPath       string            `mapstructure:"db_path"`
	LogTableName string            `mapstructure:"log_table_name"`
	SqliteParams map[string]string `mapstructure:"sqlite_params"`

	Migrations []Migration `mapstructure:"migrations"`
	Harvesters []Harvester `mapstructure:"harvesters"`

	// DictionaryColumns names the columns whose values are interned through
	// internal/dictionary instead of stored inline. The retrieved Python
	// snapshot never wires column_dict.py into the insert path explicitly,
	// so this key is this port's resolution of that open question (see
	// DESIGN.md).
	DictionaryColumns []string `mapstructure:"dictionary_columns"`

	Compression Compression `mapstructure:"compression"`

	SSEDebounceMS int `mapstructure:"sse_debounce_ms"`
	SSELimit      int `mapstructure:"sse_limit"`

	TaskVacuumInterval int `mapstructure:"task_vacuum_interval"`
	VacuumMaxDays      int `mapstructure:"vacuum_max_days"`
	VacuumMaxSizeMB    int `mapstructure:"vacuum_max_size_mb"`
	VacuumTargetSizeMB int `mapstructure:"vacuum_target_size_mb"`

	LogTimestampField string `mapstructure:"log_timestamp_field"`
	WriteBatchSize    int    `mapstructure:"write_batch_size"`
	BacklogCapacity   int    `mapstructure:"backlog_capacity"`
}

// Defaults returns a config pre-populated with the same conservative
// defaults the Python original shipped (batch size, debounce window,
// vacuum thresholds), so a config file only needs to name overrides.
func Defaults() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		DBPath:       "./loglite.db",
		LogTableName: "logs",
		SqliteParams: map[string]string{
			"journal_mode": "WAL",
			"synchronous":  "NORMAL",
			"busy_timeout": "5000",
		},
		SSEDebounceMS:      500,
		SSELimit:           200,
		TaskVacuumInterval: 3600,
		VacuumMaxDays:      30,
		VacuumMaxSizeMB:    1024,
		VacuumTargetSizeMB: 768,
		LogTimestampField:  "timestamp",
		WriteBatchSize:     200,
		BacklogCapacity:    10_000,
	}
}

// Load reads and decodes the configuration document at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LOGLITE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := Defaults()
	for key, value := range map[string]any{
		"host":                  cfg.Host,
		"port":                  cfg.Port,
		"db_path":               cfg.DBPath,
		"log_table_name":        cfg.LogTableName,
		"sqlite_params":         cfg.SqliteParams,
		"sse_debounce_ms":       cfg.SSEDebounceMS,
		"sse_limit":             cfg.SSELimit,
		"task_vacuum_interval":  cfg.TaskVacuumInterval,
		"vacuum_max_days":       cfg.VacuumMaxDays,
		"vacuum_max_size_mb":    cfg.VacuumMaxSizeMB,
		"vacuum_target_size_mb": cfg.VacuumTargetSizeMB,
		"log_timestamp_field":   cfg.LogTimestampField,
		"write_batch_size":      cfg.WriteBatchSize,
		"backlog_capacity":      cfg.BacklogCapacity,
	} {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, apperr.Config("reading config file "+path, err)
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return nil, apperr.Config("decoding config file "+path, err)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks required fields and internally-consistent values.
// Invalid configuration is fatal at startup (apperr.KindConfig).
func (c *Config) Validate() error {
	var problems []string
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.LogTableName == "" {
		problems = append(problems, "log_table_name is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, "port must be in 1..65535")
	}
	if c.WriteBatchSize <= 0 {
		problems = append(problems, "write_batch_size must be > 0")
	}
	if c.BacklogCapacity <= 0 {
		problems = append(problems, "backlog_capacity must be > 0")
	}
	if c.VacuumTargetSizeMB > c.VacuumMaxSizeMB && c.VacuumMaxSizeMB > 0 {
		problems = append(problems, "vacuum_target_size_mb must be <= vacuum_max_size_mb")
	}
	seen := map[int]bool{}
	for _, m := range c.Migrations {
		if seen[m.Version] {
			problems = append(problems, fmt.Sprintf("duplicate migration version %d", m.Version))
		}
		seen[m.Version] = true
	}
	for i, h := range c.Harvesters {
		if h.Type == "" {
			problems = append(problems, fmt.Sprintf("harvesters[%d].type is required", i))
		}
	}
	if len(problems) > 0 {
		return apperr.Config(strings.Join(problems, "; "), nil)
	}
	return nil
}
