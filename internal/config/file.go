package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML file. Every field is a default the
// environment can override; secrets are only read from the environment.
type fileConfig struct {
	ListenPort      string        `yaml:"listen_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	LogLevel        string        `yaml:"log_level"`
	PrettyLog       *bool         `yaml:"pretty_log"`
	DatabaseURL     string        `yaml:"database_url"`

	BaseDir           string        `yaml:"base_dir"`
	MaxParallelism    int           `yaml:"max_parallelism"`
	SignalTimeout     time.Duration `yaml:"signal_timeout"`
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`
	PartGCInterval    time.Duration `yaml:"part_gc_interval"`
	PartGCThreshold   time.Duration `yaml:"part_gc_threshold"`
	SignalBackend     string        `yaml:"signal_backend"`
	SignalKey         string        `yaml:"signal_key"`

	Redis struct {
		Addr             string `yaml:"addr"`
		Username         string `yaml:"username"`
		PasswordRequired *bool  `yaml:"password_required"`
		DB               int    `yaml:"db"`
		PoolSize         int    `yaml:"pool_size"`
	} `yaml:"redis"`

	ReadyzCIDRs        []string `yaml:"readyz_cidrs"`
	TrustProxy         *bool    `yaml:"trust_proxy"`
	IntakeBurst        int      `yaml:"intake_burst"`
	IntakeRefillPerMin int      `yaml:"intake_refill_per_min"`
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}
