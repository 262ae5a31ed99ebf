package program

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// EnsureClient creates signer's client account, or does nothing if it
// already exists.
func (p *Program) EnsureClient(ctx context.Context, signer solana.PublicKey) (*domain.ClientAccount, error) {
	var client domain.ClientAccount
	err := p.execute(ctx, "create_client", signer, func(c *txContext) error {
		_, err := c.ensureClient(signer, &client)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ensureClient loads owner's client account, creating it on first use.
func (c *txContext) ensureClient(owner solana.PublicKey, client *domain.ClientAccount) (solana.PublicKey, error) {
	d, err := c.p.addrs.Client(owner)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = load(c, d.Address, client)
	if err == nil {
		return d.Address, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return solana.PublicKey{}, err
	}

	*client = domain.ClientAccount{Bump: d.Bump, Owner: owner}
	if err := c.create(owner, d.Address, client, domain.ClientAccountSize); err != nil {
		return solana.PublicKey{}, err
	}
	c.emit(domain.EventClientCreated, d.Address, nil)
	return d.Address, nil
}

// RecordClientReport checks that signer owns the client account of client.
// It changes nothing; usage accounting hangs off this operation.
func (p *Program) RecordClientReport(ctx context.Context, signer, client solana.PublicKey) error {
	return p.execute(ctx, "update_client_report", signer, func(c *txContext) error {
		d, err := p.addrs.Client(client)
		if err != nil {
			return err
		}
		var acct domain.ClientAccount
		if err := load(c, d.Address, &acct); err != nil {
			return err
		}
		if err := c.requireOwner(acct.Owner, "client"); err != nil {
			return err
		}
		c.emit(domain.EventClientReported, d.Address, map[string]any{"task_counter": acct.TaskCounter})
		return nil
	})
}

// Client reads owner's client account.
func (p *Program) Client(ctx context.Context, owner solana.PublicKey) (*domain.ClientAccount, error) {
	d, err := p.addrs.Client(owner)
	if err != nil {
		return nil, err
	}
	var client domain.ClientAccount
	if err := p.view(ctx, func(tx domain.Txn) error { return load(tx, d.Address, &client) }); err != nil {
		return nil, err
	}
	return &client, nil
}
