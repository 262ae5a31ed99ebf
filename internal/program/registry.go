package program

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// ─── Node Registry ──────────────────────────────────────────────────────────

// InitRegistry creates the empty node registry. It can run once per
// deployment; registration fails until it has.
func (p *Program) InitRegistry(ctx context.Context, signer solana.PublicKey) error {
	return p.execute(ctx, "init_registry", signer, func(c *txContext) error {
		d, err := p.addrs.Registry()
		if err != nil {
			return err
		}
		reg := domain.NewNodeRegistry(d.Bump)
		if err := c.create(signer, d.Address, reg, reg.EncodedSize()); err != nil {
			return err
		}
		c.after(func() {
			metrics.RegistryNodes.Set(0)
			metrics.RegistryCapacity.Set(0)
		})
		c.emit(domain.EventRegistryInitialized, d.Address, nil)
		return nil
	})
}

// Registry reads the node registry.
func (p *Program) Registry(ctx context.Context) (*domain.NodeRegistry, error) {
	reg := &domain.NodeRegistry{}
	err := p.view(ctx, func(tx domain.Txn) error {
		_, err := loadRegistry(tx, p.addrs, reg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func loadRegistry(tx domain.Txn, addrs domain.Addresses, reg *domain.NodeRegistry) (solana.PublicKey, error) {
	d, err := addrs.Registry()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := load(tx, d.Address, reg); err != nil {
		return solana.PublicKey{}, fmt.Errorf("registry not initialized: %w", err)
	}
	return d.Address, nil
}

// insertIntoRegistry lists node, growing the registry account first when
// every slot is taken. payer covers the rent for any growth.
func (c *txContext) insertIntoRegistry(node, payer solana.PublicKey) error {
	reg := &domain.NodeRegistry{}
	addr, err := loadRegistry(c, c.p.addrs, reg)
	if err != nil {
		return err
	}

	if reg.NeedsGrowth(node) {
		oldSize := reg.EncodedSize()
		reg.Grow()
		newSize := reg.EncodedSize()
		if err := c.ResizeAccount(addr, newSize); err != nil {
			return fmt.Errorf("resize registry: %w", err)
		}
		if err := c.chargeRent(payer, addr, newSize-oldSize, "rent NodeRegistry growth"); err != nil {
			return err
		}
	}
	if _, added := reg.Insert(node); !added {
		return nil
	}
	if err := store(c, addr, reg, reg.EncodedSize()); err != nil {
		return err
	}
	c.trackRegistry(reg)
	return nil
}

// removeFromRegistry prunes node. A missing registry or entry is not an
// error; an unreadable registry is.
func (c *txContext) removeFromRegistry(node solana.PublicKey) error {
	reg := &domain.NodeRegistry{}
	addr, err := loadRegistry(c, c.p.addrs, reg)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !reg.Remove(node) {
		return nil
	}
	if err := store(c, addr, reg, reg.EncodedSize()); err != nil {
		return err
	}
	c.trackRegistry(reg)
	return nil
}

func (c *txContext) trackRegistry(reg *domain.NodeRegistry) {
	nodes, capacity := reg.Len(), reg.Capacity()
	c.after(func() {
		metrics.RegistryNodes.Set(float64(nodes))
		metrics.RegistryCapacity.Set(float64(capacity))
	})
}

// requireListedActive loads the provider owned by node and checks, at use
// time, that it is listed in the registry, still exists, and is active.
func (c *txContext) requireListedActive(node solana.PublicKey, provider *domain.ProviderNode) (solana.PublicKey, error) {
	reg := &domain.NodeRegistry{}
	if _, err := loadRegistry(c, c.p.addrs, reg); err != nil {
		return solana.PublicKey{}, err
	}
	if !reg.Contains(node) {
		return solana.PublicKey{}, fmt.Errorf("provider %s: %w", node, domain.ErrProviderNotRegistered)
	}
	addr, err := c.loadProvider(node, provider)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !provider.Active {
		return solana.PublicKey{}, fmt.Errorf("provider %s: %w", node, domain.ErrProviderInactive)
	}
	return addr, nil
}

// ─── Provider Listings ──────────────────────────────────────────────────────

// ProviderListing is a registry entry resolved to its provider record.
type ProviderListing struct {
	Rank     int                 `json:"rank,omitempty"`
	Provider domain.ProviderNode `json:"provider"`
	Address  solana.PublicKey    `json:"address"`
}

// ActiveProviders returns every registry-listed provider that still exists
// and is active, in registry order. Entries left behind by closed or paused
// nodes are skipped.
func (p *Program) ActiveProviders(ctx context.Context) ([]ProviderListing, error) {
	var out []ProviderListing
	err := p.view(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p}
		var err error
		out, err = c.listedActive()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rankings orders the active listed providers by reputation, then bandwidth
// used, highest first. Ties fall back to owner order so the ranking is
// stable. limit <= 0 returns every provider.
func (p *Program) Rankings(ctx context.Context, limit int) ([]ProviderListing, error) {
	listed, err := p.ActiveProviders(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(listed, func(i, j int) bool {
		a, b := listed[i].Provider, listed[j].Provider
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		if a.BandwidthUsed != b.BandwidthUsed {
			return a.BandwidthUsed > b.BandwidthUsed
		}
		return bytes.Compare(a.Owner[:], b.Owner[:]) < 0
	})
	if limit > 0 && len(listed) > limit {
		listed = listed[:limit]
	}
	for i := range listed {
		listed[i].Rank = i + 1
	}
	return listed, nil
}

// listedActive resolves each registry identity through requireListedActive,
// the same check assignment applies.
func (c *txContext) listedActive() ([]ProviderListing, error) {
	reg := &domain.NodeRegistry{}
	if _, err := loadRegistry(c, c.p.addrs, reg); err != nil {
		return nil, err
	}
	out := make([]ProviderListing, 0, reg.Len())
	for _, node := range reg.Nodes() {
		var provider domain.ProviderNode
		addr, err := c.requireListedActive(node, &provider)
		switch {
		case err == nil:
			out = append(out, ProviderListing{Provider: provider, Address: addr})
		case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrProviderInactive):
			continue
		default:
			return nil, err
		}
	}
	return out, nil
}
