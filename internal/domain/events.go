package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType names a committed state change.
type EventType string

const (
	EventVaultInitialized    EventType = "vault.initialized"
	EventVaultFunded         EventType = "vault.funded"
	EventRegistryInitialized EventType = "registry.initialized"
	EventClientCreated       EventType = "client.created"
	EventClientReported      EventType = "client.reported"
	EventEndpointCreated     EventType = "endpoint.created"
	EventEndpointClosed      EventType = "endpoint.closed"
	EventProviderRegistered  EventType = "provider.registered"
	EventProviderUpdated     EventType = "provider.updated"
	EventProviderReported    EventType = "provider.reported"
	EventProviderActivity    EventType = "provider.activity"
	EventProviderClosed      EventType = "provider.closed"
	EventTaskCreated         EventType = "task.created"
	EventTaskAssigned        EventType = "task.assigned"
	EventTaskCompleted       EventType = "task.completed"
	EventTaskClosed          EventType = "task.closed"
	EventRewardPaid          EventType = "reward.paid"
	EventBonusClaimed        EventType = "bonus.claimed"
	EventAirdrop             EventType = "token.airdrop"
)

// Event is emitted after the transaction that produced it commits.
type Event struct {
	Type      EventType        `json:"type"`
	TxID      string           `json:"tx_id"`
	Signer    solana.PublicKey `json:"signer"`
	Account   solana.PublicKey `json:"account"`
	Timestamp time.Time        `json:"timestamp"`
	Data      map[string]any   `json:"data,omitempty"`
}
