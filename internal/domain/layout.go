package domain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ─── Record Layout ──────────────────────────────────────────────────────────
// Every stored record is discriminator(8) ++ borsh(body), zero-padded to the
// size declared when the account was created.

// DiscriminatorSize is the length of the record type tag.
const DiscriminatorSize = 8

// Padding reserved at the end of every fixed-size record.
const recordPadding = 64

// Bounded text fields.
const (
	MaxURLLen       = 256
	MaxFilterLen    = 256
	MaxLabelLen     = 256
	MaxFormatLen    = 32
	MaxReferenceLen = 256
)

// Declared account sizes.
const (
	ClientAccountSize = DiscriminatorSize + 1 + 32 + 8 + recordPadding
	EndpointNodeSize  = DiscriminatorSize + 1 + 32 + recordPadding
	ProviderNodeSize  = DiscriminatorSize + 1 + 32 + 4 + 2 + 2 + 8*4 + 1 + 32 + 8 + recordPadding
	EscrowVaultSize   = DiscriminatorSize + 1 + 32 + 32 + 8*4 + recordPadding
	TaskSize          = DiscriminatorSize + 1 + 8 + 32 + 32 +
		(4+MaxURLLen) + (4+MaxFilterLen) + (4+MaxLabelLen) + (4+MaxFormatLen) +
		8 + 1 + (1 + 32) + (1 + 4 + MaxReferenceLen) + 8 + recordPadding
)

// RegistrySize returns the account size needed for a registry holding
// capacity slots.
func RegistrySize(capacity int) int {
	return DiscriminatorSize + 1 + 4 + capacity*registrySlotSize
}

// Record is a typed account body.
type Record interface {
	RecordName() string
}

// Account is a raw stored record.
type Account struct {
	Address solana.PublicKey
	Kind    string
	Data    []byte
}

// Size is the declared size of the account.
func (a Account) Size() int { return len(a.Data) }

// Discriminator returns the 8-byte type tag for a record name.
func Discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// EncodeRecord serializes r into a buffer of exactly size bytes.
func EncodeRecord(r Record, size int) ([]byte, error) {
	var buf bytes.Buffer
	d := Discriminator(r.RecordName())
	buf.Write(d[:])

	if err := bin.NewBorshEncoder(&buf).Encode(wireOf(r)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.RecordName(), err)
	}
	if buf.Len() > size {
		return nil, fmt.Errorf("%s needs %d bytes, have %d: %w", r.RecordName(), buf.Len(), size, ErrAccountTooSmall)
	}

	out := make([]byte, size)
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeRecord parses data into r, checking the discriminator first.
func DecodeRecord(data []byte, r Record) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("decode %s: %w", r.RecordName(), ErrAccountTooSmall)
	}
	want := Discriminator(r.RecordName())
	if !bytes.Equal(data[:DiscriminatorSize], want[:]) {
		return fmt.Errorf("decode %s: %w", r.RecordName(), ErrAccountKind)
	}

	w := wireOf(r)
	if err := bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(w); err != nil {
		return fmt.Errorf("decode %s: %w", r.RecordName(), err)
	}
	if u, ok := w.(unwirer); ok {
		return u.unwire(r)
	}
	return nil
}

// unwirer copies a decoded wire body back into its domain record.
type unwirer interface {
	unwire(r Record) error
}

// wireOf returns the borsh-encodable body for r. Records whose fields are all
// borsh-native encode themselves; the rest go through a wire struct.
func wireOf(r Record) any {
	switch v := r.(type) {
	case *Task:
		return v.toWire()
	case *ProviderNode:
		return v.toWire()
	case *NodeRegistry:
		return v.toWire()
	default:
		return r
	}
}

func checkLen(field, s string, max int) error {
	if len(s) > max {
		return fmt.Errorf("%s is %d bytes, max %d: %w", field, len(s), max, ErrFieldTooLong)
	}
	return nil
}
