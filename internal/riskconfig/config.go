// Package riskconfig loads the risk core's YAML configuration the way the
// teacher's internal/config package does: ioutil.ReadFile + yaml.Unmarshal
// into typed structs, no environment-variable plumbing.
package riskconfig

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/memtable"
	"github.com/riskcore-io/riskcore/internal/modulator"
	"github.com/riskcore-io/riskcore/internal/riskerr"
)

// PrimaryMethod is the routing order name for the coordinator.
type PrimaryMethod string

const (
	PrimaryRobustZones     PrimaryMethod = "robust_zones"
	PrimaryGraduatedRanges PrimaryMethod = "graduated_ranges"
)

// Config aggregates every subsystem's tunables into one YAML document.
type Config struct {
	Store struct {
		BaseURL         string        `yaml:"base_url"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		MaxRetries      int           `yaml:"max_retries"`
		RatePerSecond   float64       `yaml:"rate_per_second"`
		Burst           int           `yaml:"burst"`
	} `yaml:"store"`

	Breaker struct {
		MaxRequests         uint32        `yaml:"max_requests"`
		Interval            time.Duration `yaml:"interval"`
		Timeout             time.Duration `yaml:"timeout"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	} `yaml:"breaker"`

	Memory struct {
		GraduationIntervalMinutes int `yaml:"graduation_interval_minutes"`
	} `yaml:"memory"`

	Graduation graduation.Config `yaml:"graduation"`

	Evaluator struct {
		Primary   PrimaryMethod            `yaml:"primary"`
		Graduated evaluator.GraduatedConfig `yaml:"graduated"`
		RuleBased evaluator.RuleBasedConfig `yaml:"rule_based"`
		RobustZone evaluator.RobustZoneConfig `yaml:"robust_zone"`
	} `yaml:"evaluator"`

	Modulator modulator.Config `yaml:"modulator"`

	Scheduler struct {
		ReloadInterval        time.Duration `yaml:"reload_interval"`         // 30s
		ZoneEvolutionInterval time.Duration `yaml:"zone_evolution_interval"` // 15m
	} `yaml:"scheduler"`

	Coordinator struct {
		MinContractFloor float64 `yaml:"min_contract_floor"` // $5
	} `yaml:"coordinator"`

	HTTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`

	Audit struct {
		Dir           string `yaml:"dir"`
		PostgresDSN   string `yaml:"postgres_dsn"`   // optional; empty disables the Postgres sink
	} `yaml:"audit"`

	SnapshotCache struct {
		RedisAddr string `yaml:"redis_addr"` // optional; empty disables warm-start caching
	} `yaml:"snapshot_cache"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns spec.md's named defaults, used when no file is
// supplied or as a base to override from YAML.
func DefaultConfig() Config {
	var c Config
	c.Store.RequestTimeout = 5 * time.Second
	c.Store.MaxRetries = 2
	c.Store.RatePerSecond = 20
	c.Store.Burst = 10

	c.Breaker.MaxRequests = 3
	c.Breaker.Interval = 60 * time.Second
	c.Breaker.Timeout = 30 * time.Second
	c.Breaker.ConsecutiveFailures = 5

	c.Memory.GraduationIntervalMinutes = 30
	c.Graduation = graduation.DefaultConfig()

	c.Evaluator.Primary = PrimaryRobustZones
	c.Evaluator.Graduated = evaluator.DefaultGraduatedConfig()
	c.Evaluator.RuleBased = evaluator.DefaultRuleBasedConfig()
	c.Evaluator.RobustZone = evaluator.DefaultRobustZoneConfig()

	c.Modulator = modulator.DefaultConfig()

	c.Scheduler.ReloadInterval = 30 * time.Second
	c.Scheduler.ZoneEvolutionInterval = 15 * time.Minute

	c.Coordinator.MinContractFloor = 5

	c.HTTP.Host = "127.0.0.1"
	c.HTTP.Port = 8090
	c.Audit.Dir = "./data/audit"
	c.LogLevel = "info"

	return c
}

// MemoryConfig projects the memory-manager-relevant slice of Config.
func (c Config) MemoryConfig() memtable.Config {
	return memtable.Config{GraduationIntervalMinutes: c.Memory.GraduationIntervalMinutes}
}

// Load reads and parses a YAML config file, overlaying it onto
// DefaultConfig. A malformed file is CONFIG_INVALID — a hard startup
// failure, never silently ignored.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, riskerr.Wrap("riskconfig.Load", riskerr.ConfigInvalid, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, riskerr.Wrap("riskconfig.Load", riskerr.ConfigInvalid, fmt.Errorf("parse config YAML: %w", err))
	}
	return cfg, nil
}
