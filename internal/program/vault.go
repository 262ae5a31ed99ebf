package program

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
)

// ─── Escrow Vault ───────────────────────────────────────────────────────────

// InitVault creates the escrow vault with signer as admin. It can run once
// per deployment; nothing else works on the vault before it.
func (p *Program) InitVault(ctx context.Context, signer solana.PublicKey) (*domain.EscrowVault, error) {
	var vault *domain.EscrowVault
	err := p.execute(ctx, "init_vault", signer, func(c *txContext) error {
		d, err := p.addrs.Vault()
		if err != nil {
			return err
		}
		vault = &domain.EscrowVault{
			Bump:    d.Bump,
			Admin:   signer,
			Custody: p.authority.custody,
		}
		if err := c.create(signer, d.Address, vault, domain.EscrowVaultSize); err != nil {
			return err
		}
		c.emit(domain.EventVaultInitialized, d.Address, map[string]any{
			"custody": vault.Custody.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vault, nil
}

// Vault reads the escrow vault.
func (p *Program) Vault(ctx context.Context) (*domain.EscrowVault, error) {
	var vault domain.EscrowVault
	err := p.view(ctx, func(tx domain.Txn) error {
		_, err := loadVault(tx, p.addrs, &vault)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &vault, nil
}

// CustodyBalance returns the tokens currently escrowed in the vault.
func (p *Program) CustodyBalance(ctx context.Context) (uint64, error) {
	var bal uint64
	err := p.view(ctx, func(tx domain.Txn) error {
		var err error
		bal, err = token.BalanceOf(tx, domain.AssetToken, p.authority.custody)
		return err
	})
	return bal, err
}

func loadVault(tx domain.Txn, addrs domain.Addresses, vault *domain.EscrowVault) (solana.PublicKey, error) {
	d, err := addrs.Vault()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := load(tx, d.Address, vault); err != nil {
		return solana.PublicKey{}, fmt.Errorf("vault not initialized: %w", err)
	}
	return d.Address, nil
}

// reserve books amount of custody against an open task.
func reserve(v *domain.EscrowVault, amount uint64) error {
	escrowed, err := domain.AddU64(v.Escrowed, amount)
	if err != nil {
		return fmt.Errorf("vault escrow: %w", err)
	}
	v.Escrowed = escrowed
	return nil
}

// unreserve releases a task's escrow reservation when it is paid or refunded.
func unreserve(v *domain.EscrowVault, amount uint64) error {
	escrowed, err := domain.SubU64(v.Escrowed, amount)
	if err != nil {
		return fmt.Errorf("vault escrow %d below released %d: %w", v.Escrowed, amount, err)
	}
	v.Escrowed = escrowed
	return nil
}

// FreeCustody returns the custody balance not reserved for open tasks.
func (p *Program) FreeCustody(ctx context.Context) (uint64, error) {
	var free uint64
	err := p.view(ctx, func(tx domain.Txn) error {
		var vault domain.EscrowVault
		if _, err := loadVault(tx, p.addrs, &vault); err != nil {
			return err
		}
		bal, err := token.BalanceOf(tx, domain.AssetToken, vault.Custody)
		if err != nil {
			return err
		}
		free = domain.SaturatingSub(bal, vault.Escrowed)
		return nil
	})
	return free, err
}

// addVaultCounters applies checked increments to the vault aggregates.
func addVaultCounters(v *domain.EscrowVault, distributed, paid, used uint64) error {
	var err error
	if v.TotalRewardsDistributed, err = domain.AddU64(v.TotalRewardsDistributed, distributed); err != nil {
		return fmt.Errorf("total rewards distributed: %w", err)
	}
	if v.BandwidthPaid, err = domain.AddU64(v.BandwidthPaid, paid); err != nil {
		return fmt.Errorf("bandwidth paid: %w", err)
	}
	if v.BandwidthUsed, err = domain.AddU64(v.BandwidthUsed, used); err != nil {
		return fmt.Errorf("bandwidth used: %w", err)
	}
	return nil
}
