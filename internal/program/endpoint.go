package program

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// CreateEndpoint creates signer's endpoint node. It fails if one exists.
func (p *Program) CreateEndpoint(ctx context.Context, signer solana.PublicKey) (*domain.EndpointNode, error) {
	var node *domain.EndpointNode
	err := p.execute(ctx, "create_endpoint", signer, func(c *txContext) error {
		d, err := p.addrs.Endpoint(signer)
		if err != nil {
			return err
		}
		node = &domain.EndpointNode{Bump: d.Bump, Owner: signer}
		if err := c.create(signer, d.Address, node, domain.EndpointNodeSize); err != nil {
			return err
		}
		c.emit(domain.EventEndpointCreated, d.Address, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// CloseEndpoint destroys the endpoint node of endpoint, refunding its rent
// to the owner. Only the owner may close it; the address can be created
// again afterwards.
func (p *Program) CloseEndpoint(ctx context.Context, signer, endpoint solana.PublicKey) error {
	return p.execute(ctx, "close_endpoint", signer, func(c *txContext) error {
		d, err := p.addrs.Endpoint(endpoint)
		if err != nil {
			return err
		}
		var node domain.EndpointNode
		if err := load(c, d.Address, &node); err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "endpoint"); err != nil {
			return err
		}
		if err := c.destroy(d.Address, node.Owner, node.RecordName()); err != nil {
			return err
		}
		c.emit(domain.EventEndpointClosed, d.Address, nil)
		return nil
	})
}

// Endpoint reads owner's endpoint node.
func (p *Program) Endpoint(ctx context.Context, owner solana.PublicKey) (*domain.EndpointNode, error) {
	d, err := p.addrs.Endpoint(owner)
	if err != nil {
		return nil, err
	}
	var node domain.EndpointNode
	if err := p.view(ctx, func(tx domain.Txn) error { return load(tx, d.Address, &node) }); err != nil {
		return nil, err
	}
	return &node, nil
}
