// Package health runs periodic node health checks.
package health

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
	"github.com/scrape-network/scrape/internal/infra/sqlite"
	"github.com/scrape-network/scrape/internal/program"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a health checker covering storage, ledger balance and
// the program singletons.
func NewChecker(db *sqlite.DB, prog *program.Program, dataDir string) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name:    "sqlite",
				CheckFn: func(ctx context.Context) error { return db.Ping() },
			},
			{
				Name:    "data_dir",
				CheckFn: func(ctx context.Context) error { return checkDataDir(dataDir) },
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(dataDir, 0755)
				},
			},
			{
				Name:    "ledger_balanced",
				CheckFn: func(ctx context.Context) error { return checkBalanced(ctx, db) },
			},
			{
				Name: "vault",
				CheckFn: func(ctx context.Context) error { return checkVaultCovered(ctx, prog) },
			},
			{
				Name: "registry",
				CheckFn: func(ctx context.Context) error {
					_, err := prog.Registry(ctx)
					return err
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			log.Printf("[health] %s: %v", check.Name, err)
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					log.Printf("[health] recover %s: %v", check.Name, rerr)
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// checkBalanced verifies SUM(debits) == SUM(credits) for every asset.
func checkBalanced(ctx context.Context, db *sqlite.DB) error {
	for _, asset := range []domain.Asset{domain.AssetToken, domain.AssetLamports} {
		debits, credits, err := db.LedgerTotals(ctx, asset)
		if err != nil {
			return err
		}
		if debits != credits {
			return fmt.Errorf("%s ledger unbalanced: debits %d, credits %d", asset, debits, credits)
		}
	}
	return nil
}

// checkVaultCovered fails when custody no longer covers the rewards escrowed
// for open tasks.
func checkVaultCovered(ctx context.Context, prog *program.Program) error {
	vault, err := prog.Vault(ctx)
	if err != nil {
		return err
	}
	custody, err := prog.CustodyBalance(ctx)
	if err != nil {
		return err
	}
	if custody < vault.Escrowed {
		return fmt.Errorf("vault custody %d below escrowed %d", custody, vault.Escrowed)
	}
	return nil
}
