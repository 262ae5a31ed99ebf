package domain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Ledger runs atomic transactions over the account store. Update applies
// every change made by fn or none of them; View never persists changes.
type Ledger interface {
	Update(ctx context.Context, fn func(tx Txn) error) error
	View(ctx context.Context, fn func(tx Txn) error) error
}

// Txn is one in-flight ledger transaction.
type Txn interface {
	// ID is a unique identifier for the transaction.
	ID() string

	// Now is the ledger clock, fixed for the life of the transaction.
	Now() time.Time

	// Account loads a record; missing accounts yield ErrAccountNotFound.
	Account(addr solana.PublicKey) (*Account, error)

	// CreateAccount stores a new record; existing ones yield ErrAccountExists.
	CreateAccount(acct Account) error

	// WriteAccount replaces a record's bytes. len(data) must equal its size.
	WriteAccount(addr solana.PublicKey, data []byte) error

	// ResizeAccount changes a record's declared size, zero-filling growth.
	ResizeAccount(addr solana.PublicKey, size int) error

	// DeleteAccount destroys a record.
	DeleteAccount(addr solana.PublicKey) error

	// Balance is the running balance of holder in asset.
	Balance(asset Asset, holder solana.PublicKey) (int64, error)

	// InsertLedgerEntry appends one side of a double-entry movement.
	InsertLedgerEntry(entry LedgerEntry) error
}

// ReceiptStore records the outcome of every submitted operation, including
// rejected ones.
type ReceiptStore interface {
	RecordReceipt(ctx context.Context, r Receipt) error
}

// Publisher delivers committed events to observers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
