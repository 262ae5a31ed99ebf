// Package program implements the scrape marketplace: client, endpoint and
// provider accounts, the node registry, the task lifecycle, and the escrow
// vault with its reward engine.
//
// Every operation runs as one ledger transaction. All checks happen before
// any write; a failed check returns an error and the ledger discards every
// change the operation made. Events and metrics are emitted only after the
// transaction commits.
package program

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// DefaultProgramID is the program id used when none is configured.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5HhHhozzRChDGfzD9aom8YNZWnG7gpVBnspHb1gVhYT4")

// Config holds the economic parameters of the program.
type Config struct {
	ProgramID solana.PublicKey

	// LamportsPerByte is the rent deposit charged per byte of account size.
	LamportsPerByte uint64

	// Reward engine.
	ReputationThreshold  uint64
	BonusRate            uint64
	CompletionReputation uint64

	// Dataset access pricing.
	FreeUnits   uint64
	RatePerUnit uint64

	// Quality oracle gate on completion.
	FreshnessWindow time.Duration
	MinQualityScore uint64
	RequireQuality  bool
}

// DefaultConfig returns the standard program parameters.
func DefaultConfig() Config {
	return Config{
		ProgramID:            DefaultProgramID,
		LamportsPerByte:      10,
		ReputationThreshold:  50,
		BonusRate:            100,
		CompletionReputation: 10,
		FreeUnits:            500,
		RatePerUnit:          5_000_000,
		FreshnessWindow:      5 * time.Minute,
	}
}

// Program executes marketplace operations against a ledger.
type Program struct {
	cfg       Config
	ledger    domain.Ledger
	receipts  domain.ReceiptStore
	publisher domain.Publisher
	addrs     domain.Addresses
	authority vaultAuthority
}

// New creates a program. receipts and publisher may be nil.
func New(cfg Config, ledger domain.Ledger, receipts domain.ReceiptStore, publisher domain.Publisher) (*Program, error) {
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.ReputationThreshold == 0 {
		return nil, fmt.Errorf("reputation threshold must be positive")
	}

	addrs := domain.NewAddresses(cfg.ProgramID)
	custody, err := addrs.VaultCustody()
	if err != nil {
		return nil, err
	}

	return &Program{
		cfg:       cfg,
		ledger:    ledger,
		receipts:  receipts,
		publisher: publisher,
		addrs:     addrs,
		authority: vaultAuthority{custody: custody.Address},
	}, nil
}

// Config returns the program parameters.
func (p *Program) Config() Config { return p.cfg }

// Addresses returns the address deriver for this program.
func (p *Program) Addresses() domain.Addresses { return p.addrs }

// ─── Transaction Plumbing ───────────────────────────────────────────────────

// txContext carries one operation's transaction, signer and pending side
// effects.
type txContext struct {
	domain.Txn
	p        *Program
	signer   solana.PublicKey
	events   []domain.Event
	onCommit []func()
}

func (c *txContext) emit(t domain.EventType, account solana.PublicKey, data map[string]any) {
	c.events = append(c.events, domain.Event{
		Type:      t,
		TxID:      c.ID(),
		Signer:    c.signer,
		Account:   account,
		Timestamp: c.Now(),
		Data:      data,
	})
}

func (c *txContext) after(fn func()) { c.onCommit = append(c.onCommit, fn) }

// execute runs fn as one atomic operation signed by signer.
func (p *Program) execute(ctx context.Context, op string, signer solana.PublicKey, fn func(c *txContext) error) error {
	start := time.Now()
	var committed *txContext

	err := p.ledger.Update(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p, signer: signer}
		if err := fn(c); err != nil {
			return err
		}
		committed = c
		return nil
	})

	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	p.recordReceipt(ctx, op, signer, err)

	if err != nil {
		metrics.Operations.WithLabelValues(op, "rejected").Inc()
		metrics.OperationErrors.WithLabelValues(op, domain.KindOf(err).String()).Inc()
		log.Printf("[program] %s rejected for %s: %v", op, signer, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	metrics.Operations.WithLabelValues(op, "applied").Inc()
	for _, fn := range committed.onCommit {
		fn()
	}
	if p.publisher != nil {
		for _, e := range committed.events {
			if perr := p.publisher.Publish(ctx, e); perr != nil {
				log.Printf("[program] publish %s: %v", e.Type, perr)
			}
		}
	}
	return nil
}

// view runs fn in a read-only transaction.
func (p *Program) view(ctx context.Context, fn func(tx domain.Txn) error) error {
	return p.ledger.View(ctx, fn)
}

func (p *Program) recordReceipt(ctx context.Context, op string, signer solana.PublicKey, opErr error) {
	if p.receipts == nil {
		return
	}
	r := domain.Receipt{
		ID:        uuid.NewString(),
		Op:        op,
		Signer:    signer,
		Applied:   opErr == nil,
		Timestamp: time.Now(),
	}
	if opErr != nil {
		r.Error = opErr.Error()
	}
	if err := p.receipts.RecordReceipt(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[program] record receipt for %s: %v", op, err)
	}
}

// ─── Record Helpers ─────────────────────────────────────────────────────────

func load(tx domain.Txn, addr solana.PublicKey, r domain.Record) error {
	acct, err := tx.Account(addr)
	if err != nil {
		return fmt.Errorf("%s: %w", r.RecordName(), err)
	}
	return domain.DecodeRecord(acct.Data, r)
}

func store(tx domain.Txn, addr solana.PublicKey, r domain.Record, size int) error {
	data, err := domain.EncodeRecord(r, size)
	if err != nil {
		return err
	}
	return tx.WriteAccount(addr, data)
}

// create stores a new record at addr, charging payer its rent deposit.
func (c *txContext) create(payer, addr solana.PublicKey, r domain.Record, size int) error {
	data, err := domain.EncodeRecord(r, size)
	if err != nil {
		return err
	}
	if err := c.CreateAccount(domain.Account{Address: addr, Kind: r.RecordName(), Data: data}); err != nil {
		return fmt.Errorf("%s: %w", r.RecordName(), err)
	}
	return c.chargeRent(payer, addr, size, "rent "+r.RecordName())
}

// destroy deletes the record at addr, returning its rent deposit to owner.
func (c *txContext) destroy(addr, owner solana.PublicKey, kind string) error {
	deposit, err := token.BalanceOf(c, domain.AssetLamports, addr)
	if err != nil {
		return err
	}
	if deposit > 0 {
		if err := token.Transfer(c, domain.AssetLamports, addr, owner, deposit, "refund "+kind); err != nil {
			return fmt.Errorf("refund rent: %w", err)
		}
	}
	return c.DeleteAccount(addr)
}

// chargeRent moves the deposit for size bytes from payer to addr.
func (c *txContext) chargeRent(payer, addr solana.PublicKey, size int, memo string) error {
	rent, err := domain.MulU64(uint64(size), c.p.cfg.LamportsPerByte)
	if err != nil {
		return fmt.Errorf("rent: %w", err)
	}
	if rent == 0 {
		return nil
	}
	if err := token.Transfer(c, domain.AssetLamports, payer, addr, rent, memo); err != nil {
		return fmt.Errorf("rent: %w", err)
	}
	return nil
}

// requireOwner fails unless the signer owns the record.
func (c *txContext) requireOwner(owner solana.PublicKey, what string) error {
	if c.signer != owner {
		return fmt.Errorf("%s owned by %s: %w", what, owner, domain.ErrUnauthorized)
	}
	return nil
}
