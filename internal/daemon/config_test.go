package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("SCRAPE_HOME", t.TempDir())
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7420)
	}
	if cfg.Rewards.ReputationThreshold != 50 || cfg.Rewards.BonusRate != 100 {
		t.Errorf("Rewards = %+v, want threshold 50 rate 100", cfg.Rewards)
	}
	if cfg.Dataset.FreeUnits != 500 || cfg.Dataset.RatePerUnit != 5_000_000 {
		t.Errorf("Dataset = %+v, want 500 free units at 5000000", cfg.Dataset)
	}
	if cfg.Program.ID != program.DefaultProgramID.String() {
		t.Errorf("Program.ID = %q, want default", cfg.Program.ID)
	}
}

func TestProgramConfig_Defaults(t *testing.T) {
	t.Setenv("SCRAPE_HOME", t.TempDir())
	pc, err := DefaultConfig().ProgramConfig()
	if err != nil {
		t.Fatalf("ProgramConfig() error: %v", err)
	}
	want := program.DefaultConfig()
	if pc != want {
		t.Errorf("ProgramConfig() = %+v, want %+v", pc, want)
	}
}

func TestProgramConfig_Overrides(t *testing.T) {
	t.Setenv("SCRAPE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Oracle.FreshnessWindow = "90s"
	cfg.Oracle.RequireQuality = true
	cfg.Rewards.ReputationThreshold = 0

	if _, err := cfg.ProgramConfig(); err == nil {
		t.Error("ProgramConfig() should reject a zero reputation threshold")
	}

	cfg.Rewards.ReputationThreshold = 25
	pc, err := cfg.ProgramConfig()
	if err != nil {
		t.Fatalf("ProgramConfig() error: %v", err)
	}
	if pc.FreshnessWindow != 90*time.Second {
		t.Errorf("FreshnessWindow = %s, want 90s", pc.FreshnessWindow)
	}
	if !pc.RequireQuality || pc.ReputationThreshold != 25 {
		t.Errorf("overrides not applied: %+v", pc)
	}

	cfg.Program.ID = "bogus!"
	if _, err := cfg.ProgramConfig(); err == nil {
		t.Error("ProgramConfig() should reject an invalid program id")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SCRAPE_HOME", home)

	cfg := DefaultConfig()
	cfg.API.Port = 9999
	cfg.Events.NATSURL = "nats://127.0.0.1:4222"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", loaded.API.Port)
	}
	if loaded.Events.NATSURL != cfg.Events.NATSURL {
		t.Errorf("Events.NATSURL = %q, want %q", loaded.Events.NATSURL, cfg.Events.NATSURL)
	}
}

func TestLoadConfigFile_Partial(t *testing.T) {
	t.Setenv("SCRAPE_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[rewards]\nbonus_rate = 7\n"), 0644)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Rewards.BonusRate != 7 {
		t.Errorf("BonusRate = %d, want 7", cfg.Rewards.BonusRate)
	}
	if cfg.Rewards.ReputationThreshold != 50 {
		t.Errorf("ReputationThreshold = %d, want default 50", cfg.Rewards.ReputationThreshold)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[api\nport = "), 0644)

	if _, err := LoadConfigFile(path); err == nil {
		t.Error("LoadConfigFile() should fail on malformed TOML")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"", time.Minute},
		{"nonsense", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.input, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

// ─── Daemon Wiring ──────────────────────────────────────────────────────────

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SCRAPE_HOME", home)

	d, err := NewWithConfig(DefaultConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestNewWithConfig_Wires(t *testing.T) {
	d := newTestDaemon(t)
	if d.DB == nil || d.Program == nil || d.Server == nil || d.Health == nil || d.Tokens == nil {
		t.Fatalf("daemon not fully wired: %+v", d)
	}
	if d.Publisher != nil {
		t.Error("Publisher should be nil without debug logging or NATS")
	}
}

func TestNewWithConfig_DebugLogsEvents(t *testing.T) {
	t.Setenv("SCRAPE_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()
	if d.Publisher == nil {
		t.Error("debug logging should attach the log publisher")
	}
}

func TestApplyGenesis(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	k, _ := solana.NewRandomPrivateKey()
	owner := k.PublicKey()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	body := "version: \"1\"\nairdrops:\n  - owner: " + owner.String() + "\n    scrape: 2500\n    lamports: 1000000\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	if len(g.Airdrops) != 1 {
		t.Fatalf("airdrops = %d, want 1", len(g.Airdrops))
	}
	if err := d.ApplyGenesis(ctx, g); err != nil {
		t.Fatalf("ApplyGenesis() error: %v", err)
	}

	acct, _ := d.Program.Addresses().TokenAccount(owner)
	tokens, _ := d.Tokens.Balance(ctx, domain.AssetToken, acct.Address)
	if tokens != 2500 {
		t.Errorf("token balance = %d, want 2500", tokens)
	}
	lamports, _ := d.Tokens.Balance(ctx, domain.AssetLamports, owner)
	if lamports != 1_000_000 {
		t.Errorf("lamport balance = %d, want 1000000", lamports)
	}
}

func TestApplyGenesis_BadOwner(t *testing.T) {
	d := newTestDaemon(t)
	g := &Genesis{Airdrops: []GenesisAirdrop{{Owner: "nope", Scrape: 1}}}
	if err := d.ApplyGenesis(context.Background(), g); err == nil {
		t.Error("ApplyGenesis() should reject an invalid owner")
	}
}
