// Package daemon manages the scrape node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
	"github.com/scrape-network/scrape/internal/security"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Program   ProgramConfig   `toml:"program"`
	Rewards   RewardsConfig   `toml:"rewards"`
	Dataset   DatasetConfig   `toml:"dataset"`
	Oracle    OracleConfig    `toml:"oracle"`
	API       APIConfig       `toml:"api"`
	Events    EventsConfig    `toml:"events"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig locates node state on disk.
type NodeConfig struct {
	DataDir string `toml:"data_dir"`
	Wallet  string `toml:"wallet"`
}

// ProgramConfig identifies the program and its rent price.
type ProgramConfig struct {
	ID              string `toml:"id"`
	LamportsPerByte uint64 `toml:"lamports_per_byte"`
}

// RewardsConfig tunes the reward engine.
type RewardsConfig struct {
	ReputationThreshold  uint64 `toml:"reputation_threshold"`
	BonusRate            uint64 `toml:"bonus_rate"`
	CompletionReputation uint64 `toml:"completion_reputation"`
}

// DatasetConfig prices dataset access.
type DatasetConfig struct {
	FreeUnits   uint64 `toml:"free_units"`
	RatePerUnit uint64 `toml:"rate_per_unit"`
}

// OracleConfig gates completions on oracle quality reports.
type OracleConfig struct {
	FreshnessWindow string `toml:"freshness_window"`
	MinQualityScore uint64 `toml:"min_quality_score"`
	RequireQuality  bool   `toml:"require_quality"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	MaxRequestAge string `toml:"max_request_age"`
}

// EventsConfig controls post-commit event publishing.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior. Level "debug" also logs every
// published event.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns the standard node configuration.
func DefaultConfig() Config {
	homeDir := scrapeHome()
	pc := program.DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: filepath.Join(homeDir, "data"),
		},
		Program: ProgramConfig{
			ID:              pc.ProgramID.String(),
			LamportsPerByte: pc.LamportsPerByte,
		},
		Rewards: RewardsConfig{
			ReputationThreshold:  pc.ReputationThreshold,
			BonusRate:            pc.BonusRate,
			CompletionReputation: pc.CompletionReputation,
		},
		Dataset: DatasetConfig{
			FreeUnits:   pc.FreeUnits,
			RatePerUnit: pc.RatePerUnit,
		},
		Oracle: OracleConfig{
			FreshnessWindow: pc.FreshnessWindow.String(),
		},
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          7420,
			MaxRequestAge: "5m",
		},
		Events: EventsConfig{
			SubjectPrefix: "scrape.events",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads config from ~/.scrape/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(scrapeHome(), "config.toml"))
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.scrape/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(scrapeHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ProgramConfig converts the file configuration into program parameters.
func (c Config) ProgramConfig() (program.Config, error) {
	pc := program.DefaultConfig()
	if c.Program.ID != "" {
		id, err := domain.ParsePublicKey(c.Program.ID)
		if err != nil {
			return pc, fmt.Errorf("program.id: %w", err)
		}
		pc.ProgramID = id
	}
	pc.LamportsPerByte = c.Program.LamportsPerByte
	pc.ReputationThreshold = c.Rewards.ReputationThreshold
	pc.BonusRate = c.Rewards.BonusRate
	pc.CompletionReputation = c.Rewards.CompletionReputation
	pc.FreeUnits = c.Dataset.FreeUnits
	pc.RatePerUnit = c.Dataset.RatePerUnit
	pc.FreshnessWindow = parseDuration(c.Oracle.FreshnessWindow, pc.FreshnessWindow)
	pc.MinQualityScore = c.Oracle.MinQualityScore
	pc.RequireQuality = c.Oracle.RequireQuality
	if pc.ReputationThreshold == 0 {
		return pc, fmt.Errorf("rewards.reputation_threshold must be positive")
	}
	return pc, nil
}

// WalletPath returns the configured wallet file, defaulting to the node key
// under the scrape home.
func (c Config) WalletPath() string {
	if c.Node.Wallet != "" {
		return c.Node.Wallet
	}
	return security.KeyPath(scrapeHome())
}

// scrapeHome returns the scrape data directory.
func scrapeHome() string {
	if env := os.Getenv("SCRAPE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scrape")
}

// ScrapeHome is exported for use by other packages.
func ScrapeHome() string {
	return scrapeHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
