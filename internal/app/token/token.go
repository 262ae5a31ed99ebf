// Package token implements the double-entry token ledger.
// Every movement creates matched DEBIT/CREDIT entries, so per asset
// SUM(debits) == SUM(credits) is an invariant. Only the issuance account may
// hold a negative balance.
package token

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/sqlite"
)

// Issuance is the source debited when new value is minted.
var Issuance = solana.PublicKey{}

// Transfer moves amount of asset from one holder to another inside tx.
func Transfer(tx domain.Txn, asset domain.Asset, from, to solana.PublicKey, amount uint64, memo string) error {
	if amount == 0 {
		return fmt.Errorf("transfer: %w", domain.ErrInvalidAmount)
	}
	amt, err := domain.ToAmount(amount)
	if err != nil {
		return fmt.Errorf("transfer %d: %w", amount, err)
	}

	fromBal, err := tx.Balance(asset, from)
	if err != nil {
		return fmt.Errorf("get %s balance: %w", from, err)
	}
	if from != Issuance && fromBal < amt {
		return fmt.Errorf("%s %s: have %d, need %d: %w", asset, from, fromBal, amt, domain.ErrInsufficientFunds)
	}

	// DEBIT source
	err = tx.InsertLedgerEntry(domain.LedgerEntry{
		Asset:     asset,
		EntryType: domain.EntryDebit,
		Account:   from,
		Amount:    amt,
		Memo:      memo,
		Balance:   fromBal - amt,
	})
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}

	// Read after the debit so a self-transfer nets to zero.
	toBal, err := tx.Balance(asset, to)
	if err != nil {
		return fmt.Errorf("get %s balance: %w", to, err)
	}
	if toBal > 0 && amt > (1<<63-1)-toBal {
		return fmt.Errorf("credit %s: %w", to, domain.ErrArithmeticOverflow)
	}

	// CREDIT destination
	err = tx.InsertLedgerEntry(domain.LedgerEntry{
		Asset:     asset,
		EntryType: domain.EntryCredit,
		Account:   to,
		Amount:    amt,
		Memo:      memo,
		Balance:   toBal + amt,
	})
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// Mint creates amount of asset for holder, debiting the issuance account.
func Mint(tx domain.Txn, asset domain.Asset, to solana.PublicKey, amount uint64, memo string) error {
	return Transfer(tx, asset, Issuance, to, amount, memo)
}

// BalanceOf returns holder's balance in asset inside tx.
func BalanceOf(tx domain.Txn, asset domain.Asset, holder solana.PublicKey) (uint64, error) {
	bal, err := tx.Balance(asset, holder)
	if err != nil {
		return 0, err
	}
	if bal < 0 {
		return 0, nil
	}
	return uint64(bal), nil
}

// ─── Service ────────────────────────────────────────────────────────────────

// Grant is one airdrop line.
type Grant struct {
	Holder solana.PublicKey
	Asset  domain.Asset
	Amount uint64
}

// Service exposes committed balances and funding outside of program
// operations.
type Service struct {
	db *sqlite.DB
}

// NewService creates a token service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db}
}

// Balance returns the committed balance of holder.
func (s *Service) Balance(ctx context.Context, asset domain.Asset, holder solana.PublicKey) (int64, error) {
	return s.db.Balance(ctx, asset, holder)
}

// History returns recent ledger entries for holder.
func (s *Service) History(ctx context.Context, asset domain.Asset, holder solana.PublicKey, limit int) ([]domain.LedgerEntry, error) {
	return s.db.LedgerEntries(ctx, asset, holder, limit)
}

// Airdrop mints every grant in a single transaction.
func (s *Service) Airdrop(ctx context.Context, grants []Grant, memo string) error {
	return s.db.Update(ctx, func(tx domain.Txn) error {
		for _, g := range grants {
			if err := Mint(tx, g.Asset, g.Holder, g.Amount, memo); err != nil {
				return fmt.Errorf("airdrop %d %s to %s: %w", g.Amount, g.Asset, g.Holder, err)
			}
		}
		return nil
	})
}
