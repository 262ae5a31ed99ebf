package domain

import (
	"math"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Asset names a balance kind tracked by the token ledger.
type Asset string

const (
	// AssetToken is the reward token escrowed by tasks.
	AssetToken Asset = "scrape"
	// AssetLamports pays account rent.
	AssetLamports Asset = "lamports"
)

// EntryType is one side of a double-entry movement.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is a single row of the token ledger. Balance is the holder's
// running balance after this entry.
type LedgerEntry struct {
	ID        int64            `json:"id"`
	TxID      string           `json:"tx_id"`
	Timestamp time.Time        `json:"timestamp"`
	Asset     Asset            `json:"asset"`
	EntryType EntryType        `json:"entry_type"`
	Account   solana.PublicKey `json:"account"`
	Amount    int64            `json:"amount"`
	Memo      string           `json:"memo,omitempty"`
	Balance   int64            `json:"balance"`
}

// Receipt is the audit record of one submitted operation.
type Receipt struct {
	ID        string           `json:"id"`
	Op        string           `json:"op"`
	Signer    solana.PublicKey `json:"signer"`
	Applied   bool             `json:"applied"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ─── Checked Arithmetic ─────────────────────────────────────────────────────

// AddU64 returns a+b or ErrArithmeticOverflow.
func AddU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// MulU64 returns a*b or ErrArithmeticOverflow.
func MulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// SubU64 returns a-b or ErrArithmeticOverflow when b > a.
func SubU64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// SaturatingSub returns a-b, or 0 when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ToAmount converts a token amount for storage in the signed ledger.
func ToAmount(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}
	return int64(v), nil
}
