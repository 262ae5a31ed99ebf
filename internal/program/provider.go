package program

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// ProviderParams are the owner-editable fields of a provider node.
type ProviderParams struct {
	NetworkAddress domain.IPv4
	ProxyPort      uint16
	ClientPort     uint16
	BandwidthLimit uint64
}

// RegisterProvider creates signer's provider node and lists it in the
// registry in the same transaction; if either step fails neither happens.
func (p *Program) RegisterProvider(ctx context.Context, signer solana.PublicKey, params ProviderParams) (*domain.ProviderNode, error) {
	var node *domain.ProviderNode
	err := p.execute(ctx, "register_provider", signer, func(c *txContext) error {
		d, err := p.addrs.Provider(signer)
		if err != nil {
			return err
		}
		reward, err := p.addrs.TokenAccount(signer)
		if err != nil {
			return err
		}

		node = &domain.ProviderNode{
			Bump:           d.Bump,
			Owner:          signer,
			NetworkAddress: params.NetworkAddress,
			ProxyPort:      params.ProxyPort,
			ClientPort:     params.ClientPort,
			BandwidthLimit: params.BandwidthLimit,
			Active:         true,
			RewardAccount:  reward.Address,
		}
		if err := c.create(signer, d.Address, node, domain.ProviderNodeSize); err != nil {
			return err
		}
		if err := c.insertIntoRegistry(signer, signer); err != nil {
			return err
		}

		c.emit(domain.EventProviderRegistered, d.Address, map[string]any{
			"network_address": params.NetworkAddress.String(),
			"proxy_port":      params.ProxyPort,
			"client_port":     params.ClientPort,
			"bandwidth_limit": params.BandwidthLimit,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateProvider replaces the network, port and bandwidth-limit fields of
// provider. Usage, reputation and the active flag are untouched.
func (p *Program) UpdateProvider(ctx context.Context, signer, provider solana.PublicKey, params ProviderParams) error {
	return p.mutateProvider(ctx, "update_provider", signer, provider, func(c *txContext, node *domain.ProviderNode) error {
		node.NetworkAddress = params.NetworkAddress
		node.ProxyPort = params.ProxyPort
		node.ClientPort = params.ClientPort
		node.BandwidthLimit = params.BandwidthLimit
		c.emit(domain.EventProviderUpdated, solana.PublicKey{}, nil)
		return nil
	})
}

// UpdateProviderReport adds owner-reported usage and reputation deltas.
// The deltas are trusted as signed; validating them is the job of whatever
// pipeline produced the owner's signature.
func (p *Program) UpdateProviderReport(ctx context.Context, signer, provider solana.PublicKey, bandwidthDelta, reputationDelta uint64) error {
	return p.mutateProvider(ctx, "update_provider_report", signer, provider, func(c *txContext, node *domain.ProviderNode) error {
		var err error
		if node.BandwidthUsed, err = domain.AddU64(node.BandwidthUsed, bandwidthDelta); err != nil {
			return fmt.Errorf("bandwidth used: %w", err)
		}
		if node.Reputation, err = domain.AddU64(node.Reputation, reputationDelta); err != nil {
			return fmt.Errorf("reputation: %w", err)
		}
		c.emit(domain.EventProviderReported, solana.PublicKey{}, map[string]any{
			"bandwidth_delta":  bandwidthDelta,
			"reputation_delta": reputationDelta,
			"reputation":       node.Reputation,
		})
		return nil
	})
}

// SetProviderActive pauses or resumes a provider. Inactive providers cannot
// be assigned tasks.
func (p *Program) SetProviderActive(ctx context.Context, signer, provider solana.PublicKey, active bool) error {
	return p.mutateProvider(ctx, "set_provider_active", signer, provider, func(c *txContext, node *domain.ProviderNode) error {
		node.Active = active
		c.emit(domain.EventProviderActivity, solana.PublicKey{}, map[string]any{"active": active})
		return nil
	})
}

// mutateProvider loads provider, checks signer owns it, applies fn and
// stores the result.
func (p *Program) mutateProvider(ctx context.Context, op string, signer, provider solana.PublicKey, fn func(c *txContext, node *domain.ProviderNode) error) error {
	return p.execute(ctx, op, signer, func(c *txContext) error {
		var node domain.ProviderNode
		addr, err := c.loadProvider(provider, &node)
		if err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "provider"); err != nil {
			return err
		}
		mark := len(c.events)
		if err := fn(c, &node); err != nil {
			return err
		}
		for i := mark; i < len(c.events); i++ {
			c.events[i].Account = addr
		}
		return store(c, addr, &node, domain.ProviderNodeSize)
	})
}

// CloseProvider destroys provider, refunds its rent and prunes it from the
// registry.
func (p *Program) CloseProvider(ctx context.Context, signer, provider solana.PublicKey) error {
	return p.execute(ctx, "close_provider", signer, func(c *txContext) error {
		var node domain.ProviderNode
		addr, err := c.loadProvider(provider, &node)
		if err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "provider"); err != nil {
			return err
		}
		if err := c.destroy(addr, node.Owner, node.RecordName()); err != nil {
			return err
		}
		if err := c.removeFromRegistry(node.Owner); err != nil {
			return err
		}
		c.emit(domain.EventProviderClosed, addr, nil)
		return nil
	})
}

// Provider reads the provider node owned by owner.
func (p *Program) Provider(ctx context.Context, owner solana.PublicKey) (*domain.ProviderNode, error) {
	var node domain.ProviderNode
	err := p.view(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p}
		_, err := c.loadProvider(owner, &node)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *txContext) loadProvider(owner solana.PublicKey, node *domain.ProviderNode) (solana.PublicKey, error) {
	d, err := c.p.addrs.Provider(owner)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := load(c, d.Address, node); err != nil {
		return solana.PublicKey{}, err
	}
	return d.Address, nil
}
