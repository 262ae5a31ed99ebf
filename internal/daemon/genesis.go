package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
)

// Genesis describes the initial token distribution of a ledger.
type Genesis struct {
	Version  string            `yaml:"version"`
	Airdrops []GenesisAirdrop `yaml:"airdrops"`
}

// GenesisAirdrop grants one identity reward tokens and rent lamports.
// Tokens land in the owner's derived token account; lamports in the
// identity itself.
type GenesisAirdrop struct {
	Owner    string `yaml:"owner"`
	Scrape   uint64 `yaml:"scrape"`
	Lamports uint64 `yaml:"lamports"`
}

// LoadGenesis reads a genesis YAML file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	return &g, nil
}

// ApplyGenesis mints every airdrop in g in a single transaction.
func (d *Daemon) ApplyGenesis(ctx context.Context, g *Genesis) error {
	addrs := d.Program.Addresses()
	var grants []token.Grant
	for i, a := range g.Airdrops {
		owner, err := domain.ParsePublicKey(a.Owner)
		if err != nil {
			return fmt.Errorf("airdrop %d: %w", i, err)
		}
		if a.Scrape > 0 {
			acct, err := addrs.TokenAccount(owner)
			if err != nil {
				return fmt.Errorf("airdrop %d: %w", i, err)
			}
			grants = append(grants, token.Grant{Holder: acct.Address, Asset: domain.AssetToken, Amount: a.Scrape})
		}
		if a.Lamports > 0 {
			grants = append(grants, token.Grant{Holder: owner, Asset: domain.AssetLamports, Amount: a.Lamports})
		}
	}
	if len(grants) == 0 {
		return nil
	}
	if err := d.Tokens.Airdrop(ctx, grants, "genesis"); err != nil {
		return err
	}
	log.Printf("[daemon] genesis applied: %d grants to %d identities", len(grants), len(g.Airdrops))

	if d.Publisher != nil {
		for _, grant := range grants {
			e := domain.Event{
				Type:      domain.EventAirdrop,
				Account:   grant.Holder,
				Timestamp: time.Now(),
				Data:      map[string]any{"asset": grant.Asset, "amount": grant.Amount, "memo": "genesis"},
			}
			if err := d.Publisher.Publish(ctx, e); err != nil {
				log.Printf("[daemon] publish airdrop: %v", err)
			}
		}
	}
	return nil
}
