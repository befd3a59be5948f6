package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	VNCSentinel VNCSentinelConfig `yaml:"vncsentinel"`
}

// VNCSentinelConfig is the project configuration.
type VNCSentinelConfig struct {
	Input        InputConfig        `yaml:"input"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Rules        RulesConfig        `yaml:"rules"`
	Anomaly      AnomalyConfig      `yaml:"anomaly"`
	Risk         RiskConfig         `yaml:"risk"`
	Remediation  RemediationConfig  `yaml:"remediation"`
	Output       OutputConfig       `yaml:"output"`
	SessionState SessionStateConfig `yaml:"session_state"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// InputConfig controls the input reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RulesConfig controls the threshold rule table and optional Sigma rules.
type RulesConfig struct {
	Path      string `yaml:"path"`
	SigmaPath string `yaml:"sigma_path"`
}

// AnomalyConfig controls the trained model artifact and scoring.
type AnomalyConfig struct {
	ModelPath         string  `yaml:"model_path"`
	TopK              int     `yaml:"top_k"`
	DecisionThreshold float64 `yaml:"decision_threshold"`
}

// RiskConfig controls the anomaly-score risk bands.
type RiskConfig struct {
	MediumBand float64 `yaml:"medium_band"`
	HighBand   float64 `yaml:"high_band"`
}

// RemediationConfig controls the category/risk action table.
type RemediationConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig controls Redis input.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// OutputConfig controls the detection record sink.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|http|clickhouse|postgres
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
	Postgres   PostgresOutputConfig   `yaml:"postgres"`
}

// SessionStateConfig controls Redis session-state persistence.
type SessionStateConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// PostgresOutputConfig config for Postgres batch inserts.
type PostgresOutputConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
