package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// ─── Token Ledger Queries ───────────────────────────────────────────────────

// Balance returns the committed balance of holder in asset.
func (d *DB) Balance(ctx context.Context, asset domain.Asset, holder solana.PublicKey) (int64, error) {
	return balance(d.db, asset, holder)
}

// LedgerEntries returns recent ledger entries for a holder, newest first.
func (d *DB) LedgerEntries(ctx context.Context, asset domain.Asset, holder solana.PublicKey, limit int) ([]domain.LedgerEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, tx_id, timestamp, asset, entry_type, account, amount, memo, balance
		 FROM token_ledger WHERE asset = ? AND account = ? ORDER BY id DESC LIMIT ?`,
		string(asset), holder.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// LedgerTotals sums debits and credits for asset. They are equal whenever
// every movement was booked as a matched pair.
func (d *DB) LedgerTotals(ctx context.Context, asset domain.Asset) (debits, credits int64, err error) {
	err = d.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount END), 0)
		 FROM token_ledger WHERE asset = ?`,
		string(asset),
	).Scan(&debits, &credits)
	return debits, credits, err
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var ts int64
	var asset, entryType, account string
	var memo sql.NullString

	err := s.Scan(&e.ID, &e.TxID, &ts, &asset, &entryType, &account, &e.Amount, &memo, &e.Balance)
	if err != nil {
		return nil, err
	}

	pk, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, fmt.Errorf("ledger entry %d account: %w", e.ID, err)
	}
	e.Account = pk
	e.Asset = domain.Asset(asset)
	e.EntryType = domain.EntryType(entryType)
	e.Timestamp = time.Unix(ts, 0)
	if memo.Valid {
		e.Memo = memo.String
	}
	return &e, nil
}

// ─── Receipts ───────────────────────────────────────────────────────────────

// RecordReceipt stores the outcome of an operation.
func (d *DB) RecordReceipt(ctx context.Context, r domain.Receipt) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO receipts (id, op, signer, applied, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Op, r.Signer.String(), r.Applied, nullStr(r.Error), r.Timestamp.Unix(),
	)
	return err
}

// Receipts returns recent receipts, newest first. A zero signer lists all.
func (d *DB) Receipts(ctx context.Context, signer solana.PublicKey, limit int) ([]domain.Receipt, error) {
	query := `SELECT id, op, signer, applied, error, created_at FROM receipts`
	args := []any{}
	if !signer.IsZero() {
		query += ` WHERE signer = ?`
		args = append(args, signer.String())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		var r domain.Receipt
		var signerStr string
		var errText sql.NullString
		var ts int64
		if err := rows.Scan(&r.ID, &r.Op, &signerStr, &r.Applied, &errText, &ts); err != nil {
			return nil, err
		}
		if r.Signer, err = solana.PublicKeyFromBase58(signerStr); err != nil {
			return nil, fmt.Errorf("receipt %s signer: %w", r.ID, err)
		}
		if errText.Valid {
			r.Error = errText.String
		}
		r.Timestamp = time.Unix(ts, 0)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// ─── Account Listing ────────────────────────────────────────────────────────

// AccountsByKind returns every stored record of one type.
func (d *DB) AccountsByKind(ctx context.Context, kind string) ([]domain.Account, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT address, kind, data FROM accounts WHERE kind = ? ORDER BY created_at, address`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []domain.Account
	for rows.Next() {
		var a domain.Account
		var addr string
		if err := rows.Scan(&addr, &a.Kind, &a.Data); err != nil {
			return nil, err
		}
		if a.Address, err = solana.PublicKeyFromBase58(addr); err != nil {
			return nil, fmt.Errorf("account address %q: %w", addr, err)
		}
		accts = append(accts, a)
	}
	return accts, rows.Err()
}

// ─── Signatures ─────────────────────────────────────────────────────────────

// ClaimSignature records sig as used until expires. It reports false when sig
// was already recorded and has not expired. Entries expired at now are pruned
// first.
func (d *DB) ClaimSignature(ctx context.Context, sig string, now, expires time.Time) (bool, error) {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM used_signatures WHERE expires_at < ?`, now.Unix(),
	); err != nil {
		return false, fmt.Errorf("prune signatures: %w", err)
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO used_signatures (signature, expires_at) VALUES (?, ?)`,
		sig, expires.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("record signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
