package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed namespaces. The namespace is always the first seed, so two records
// in different namespaces never derive the same address.
const (
	SeedClient       = "CLIENT"
	SeedEndpoint     = "ENDPOINT_NODE"
	SeedProvider     = "PROVIDER_NODE"
	SeedRegistry     = "NODE_REGISTRY"
	SeedVault        = "TOKEN_VAULT"
	SeedVaultCustody = "VAULT_CUSTODY"
	SeedTokenAccount = "TOKEN_ACCOUNT"
	SeedTask         = "TASK"
)

// Derived is a program-derived address with the bump that produced it.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Addresses derives record addresses for one program id. Derivation is
// deterministic: anyone holding the program id and the seeds gets the same
// result.
type Addresses struct {
	ProgramID solana.PublicKey
}

// NewAddresses returns an address deriver bound to programID.
func NewAddresses(programID solana.PublicKey) Addresses {
	return Addresses{ProgramID: programID}
}

func (a Addresses) derive(seeds ...[]byte) (Derived, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, a.ProgramID)
	if err != nil {
		return Derived{}, fmt.Errorf("derive address: %w", err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}

// Client derives the ClientAccount address of owner.
func (a Addresses) Client(owner solana.PublicKey) (Derived, error) {
	return a.derive([]byte(SeedClient), owner[:])
}

// Endpoint derives the EndpointNode address of owner.
func (a Addresses) Endpoint(owner solana.PublicKey) (Derived, error) {
	return a.derive([]byte(SeedEndpoint), owner[:])
}

// Provider derives the ProviderNode address of owner.
func (a Addresses) Provider(owner solana.PublicKey) (Derived, error) {
	return a.derive([]byte(SeedProvider), owner[:])
}

// Registry derives the singleton NodeRegistry address.
func (a Addresses) Registry() (Derived, error) {
	return a.derive([]byte(SeedRegistry))
}

// Vault derives the singleton EscrowVault address.
func (a Addresses) Vault() (Derived, error) {
	return a.derive([]byte(SeedVault))
}

// VaultCustody derives the token account holding escrowed rewards.
func (a Addresses) VaultCustody() (Derived, error) {
	return a.derive([]byte(SeedVaultCustody))
}

// TokenAccount derives owner's token account, used both for funding task
// rewards and for receiving payouts.
func (a Addresses) TokenAccount(owner solana.PublicKey) (Derived, error) {
	return a.derive([]byte(SeedTokenAccount), owner[:])
}

// Task derives the address of owner's task with sequence number id.
func (a Addresses) Task(owner solana.PublicKey, id uint64) (Derived, error) {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], id)
	return a.derive([]byte(SeedTask), owner[:], seq[:])
}

// ParsePublicKey decodes a base58 identity, wrapping failures in
// ErrInvalidPublicKey.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", ErrInvalidPublicKey, s)
	}
	return pk, nil
}
