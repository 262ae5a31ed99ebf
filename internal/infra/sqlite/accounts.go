package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// txn implements domain.Txn over one SQL transaction.
type txn struct {
	tx  *sql.Tx
	id  string
	now time.Time
}

func (t *txn) ID() string { return t.id }

func (t *txn) Now() time.Time { return t.now }

// ─── Account Repository ─────────────────────────────────────────────────────

// Account loads the record stored at addr.
func (t *txn) Account(addr solana.PublicKey) (*domain.Account, error) {
	row := t.tx.QueryRow(`SELECT kind, data FROM accounts WHERE address = ?`, addr.String())

	acct := domain.Account{Address: addr}
	err := row.Scan(&acct.Kind, &acct.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", addr, domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", addr, err)
	}
	return &acct, nil
}

// CreateAccount inserts a new record.
func (t *txn) CreateAccount(acct domain.Account) error {
	var exists int
	err := t.tx.QueryRow(`SELECT 1 FROM accounts WHERE address = ?`, acct.Address.String()).Scan(&exists)
	if err == nil {
		return fmt.Errorf("account %s: %w", acct.Address, domain.ErrAccountExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check account %s: %w", acct.Address, err)
	}

	_, err = t.tx.Exec(
		`INSERT INTO accounts (address, kind, size, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		acct.Address.String(), acct.Kind, len(acct.Data), acct.Data,
		t.now.Unix(), t.now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", acct.Address, err)
	}
	return nil
}

// WriteAccount replaces the bytes of an existing record. The declared size
// does not change.
func (t *txn) WriteAccount(addr solana.PublicKey, data []byte) error {
	size, err := t.size(addr)
	if err != nil {
		return err
	}
	if len(data) != size {
		return fmt.Errorf("write %s: %d bytes into %d: %w", addr, len(data), size, domain.ErrAccountTooSmall)
	}
	_, err = t.tx.Exec(
		`UPDATE accounts SET data = ?, updated_at = ? WHERE address = ?`,
		data, t.now.Unix(), addr.String(),
	)
	return err
}

// ResizeAccount reallocates a record, zero-filling any growth.
func (t *txn) ResizeAccount(addr solana.PublicKey, size int) error {
	acct, err := t.Account(addr)
	if err != nil {
		return err
	}
	data := make([]byte, size)
	copy(data, acct.Data)

	_, err = t.tx.Exec(
		`UPDATE accounts SET size = ?, data = ?, updated_at = ? WHERE address = ?`,
		size, data, t.now.Unix(), addr.String(),
	)
	return err
}

// DeleteAccount removes a record.
func (t *txn) DeleteAccount(addr solana.PublicKey) error {
	result, err := t.tx.Exec(`DELETE FROM accounts WHERE address = ?`, addr.String())
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("account %s: %w", addr, domain.ErrAccountNotFound)
	}
	return nil
}

func (t *txn) size(addr solana.PublicKey) (int, error) {
	var size int
	err := t.tx.QueryRow(`SELECT size FROM accounts WHERE address = ?`, addr.String()).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", addr, domain.ErrAccountNotFound)
	}
	return size, err
}

// ─── Token Ledger ───────────────────────────────────────────────────────────

// Balance returns the latest running balance of holder in asset.
func (t *txn) Balance(asset domain.Asset, holder solana.PublicKey) (int64, error) {
	return balance(t.tx, asset, holder)
}

// InsertLedgerEntry appends a ledger row stamped with this transaction.
func (t *txn) InsertLedgerEntry(entry domain.LedgerEntry) error {
	_, err := t.tx.Exec(
		`INSERT INTO token_ledger (tx_id, timestamp, asset, entry_type, account, amount, memo, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.id, t.now.Unix(), string(entry.Asset), string(entry.EntryType),
		entry.Account.String(), entry.Amount, nullStr(entry.Memo), entry.Balance,
	)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func balance(q queryer, asset domain.Asset, holder solana.PublicKey) (int64, error) {
	var bal sql.NullInt64
	err := q.QueryRow(
		`SELECT balance FROM token_ledger WHERE asset = ? AND account = ? ORDER BY id DESC LIMIT 1`,
		string(asset), holder.String(),
	).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Int64, nil
}
