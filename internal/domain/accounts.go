package domain

import (
	"fmt"
	"net/netip"

	"github.com/gagliardetto/solana-go"
)

// ─── Client Account ─────────────────────────────────────────────────────────

// ClientAccount is a requester's record. TaskCounter is the sequence number
// of the next task the client creates; it only ever increments.
type ClientAccount struct {
	Bump        uint8            `json:"bump"`
	Owner       solana.PublicKey `json:"owner"`
	TaskCounter uint64           `json:"task_counter"`
}

func (*ClientAccount) RecordName() string { return "ClientAccount" }

// ─── Endpoint Node ──────────────────────────────────────────────────────────

// EndpointNode is a routing identity designated by clients on their tasks.
type EndpointNode struct {
	Bump  uint8            `json:"bump"`
	Owner solana.PublicKey `json:"owner"`
}

func (*EndpointNode) RecordName() string { return "EndpointNode" }

// ─── Provider Node ──────────────────────────────────────────────────────────

// IPv4 is a provider's network address.
type IPv4 [4]byte

// ParseIPv4 parses dotted-quad notation.
func ParseIPv4(s string) (IPv4, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return IPv4{}, fmt.Errorf("invalid ipv4 address %q", s)
	}
	return IPv4(addr.As4()), nil
}

func (ip IPv4) String() string { return netip.AddrFrom4(ip).String() }

func (ip IPv4) MarshalText() ([]byte, error) { return []byte(ip.String()), nil }

func (ip *IPv4) UnmarshalText(b []byte) error {
	parsed, err := ParseIPv4(string(b))
	if err != nil {
		return err
	}
	*ip = parsed
	return nil
}

// ProviderNode is a worker identity. BandwidthUsed, Reputation and Rewards
// never decrease.
type ProviderNode struct {
	Bump           uint8            `json:"bump"`
	Owner          solana.PublicKey `json:"owner"`
	NetworkAddress IPv4             `json:"network_address"`
	ProxyPort      uint16           `json:"proxy_port"`
	ClientPort     uint16           `json:"client_port"`
	BandwidthLimit uint64           `json:"bandwidth_limit"`
	BandwidthUsed  uint64           `json:"bandwidth_used"`
	Reputation     uint64           `json:"reputation"`
	Rewards        uint64           `json:"rewards"`
	Active         bool             `json:"active"`
	RewardAccount  solana.PublicKey `json:"reward_account"`
	LastBonusClaim int64            `json:"last_bonus_claim"`
}

func (*ProviderNode) RecordName() string { return "ProviderNode" }

type providerWire struct {
	Bump           uint8
	Owner          solana.PublicKey
	NetworkAddress [4]byte
	ProxyPort      uint16
	ClientPort     uint16
	BandwidthLimit uint64
	BandwidthUsed  uint64
	Reputation     uint64
	Rewards        uint64
	Active         bool
	RewardAccount  solana.PublicKey
	LastBonusClaim int64
}

func (p *ProviderNode) toWire() *providerWire {
	return &providerWire{
		Bump:           p.Bump,
		Owner:          p.Owner,
		NetworkAddress: p.NetworkAddress,
		ProxyPort:      p.ProxyPort,
		ClientPort:     p.ClientPort,
		BandwidthLimit: p.BandwidthLimit,
		BandwidthUsed:  p.BandwidthUsed,
		Reputation:     p.Reputation,
		Rewards:        p.Rewards,
		Active:         p.Active,
		RewardAccount:  p.RewardAccount,
		LastBonusClaim: p.LastBonusClaim,
	}
}

func (w *providerWire) unwire(r Record) error {
	p := r.(*ProviderNode)
	*p = ProviderNode{
		Bump:           w.Bump,
		Owner:          w.Owner,
		NetworkAddress: IPv4(w.NetworkAddress),
		ProxyPort:      w.ProxyPort,
		ClientPort:     w.ClientPort,
		BandwidthLimit: w.BandwidthLimit,
		BandwidthUsed:  w.BandwidthUsed,
		Reputation:     w.Reputation,
		Rewards:        w.Rewards,
		Active:         w.Active,
		RewardAccount:  w.RewardAccount,
		LastBonusClaim: w.LastBonusClaim,
	}
	return nil
}

// ─── Escrow Vault ───────────────────────────────────────────────────────────

// EscrowVault is the singleton holding escrowed task rewards. Its three
// aggregate counters never decrease. Escrowed is the part of custody owed to
// open tasks; only the surplus above it may pay bonuses.
type EscrowVault struct {
	Bump                    uint8            `json:"bump"`
	Admin                   solana.PublicKey `json:"admin"`
	Custody                 solana.PublicKey `json:"custody"`
	TotalRewardsDistributed uint64           `json:"total_rewards_distributed"`
	BandwidthPaid           uint64           `json:"bandwidth_paid"`
	BandwidthUsed           uint64           `json:"bandwidth_used"`
	Escrowed                uint64           `json:"escrowed"`
}

func (*EscrowVault) RecordName() string { return "EscrowVault" }
