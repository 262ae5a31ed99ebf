package domain

import (
	"github.com/gagliardetto/solana-go"
)

// ─── Node Registry ──────────────────────────────────────────────────────────
// The registry is an arena of fixed-capacity slots. A slot id is stable for
// as long as its node stays registered; removed slots are reused by later
// insertions. Capacity grows in chunks, so the backing account is resized
// only when every slot is occupied.

// RegistryGrowth is the number of slots added when the arena is full.
const RegistryGrowth = 16

// 1 byte live flag + 32 byte identity.
const registrySlotSize = 1 + 32

// RegistrySlot is one arena cell.
type RegistrySlot struct {
	Live bool
	Node solana.PublicKey
}

// NodeRegistry is the de-duplicated set of registered provider identities.
type NodeRegistry struct {
	Bump  uint8
	slots []RegistrySlot
	index map[solana.PublicKey]int
	free  []int
}

func (*NodeRegistry) RecordName() string { return "NodeRegistry" }

// NewNodeRegistry returns an empty registry.
func NewNodeRegistry(bump uint8) *NodeRegistry {
	return &NodeRegistry{Bump: bump, index: make(map[solana.PublicKey]int)}
}

// Capacity is the number of allocated slots.
func (r *NodeRegistry) Capacity() int { return len(r.slots) }

// Len is the number of registered nodes.
func (r *NodeRegistry) Len() int { return len(r.index) }

// Contains reports whether node is registered.
func (r *NodeRegistry) Contains(node solana.PublicKey) bool {
	_, ok := r.index[node]
	return ok
}

// Slot returns the slot id of node.
func (r *NodeRegistry) Slot(node solana.PublicKey) (int, bool) {
	id, ok := r.index[node]
	return id, ok
}

// NeedsGrowth reports whether inserting node requires more capacity.
func (r *NodeRegistry) NeedsGrowth(node solana.PublicKey) bool {
	return !r.Contains(node) && len(r.free) == 0
}

// Grow appends RegistryGrowth empty slots and returns the new capacity.
func (r *NodeRegistry) Grow() int {
	start := len(r.slots)
	r.slots = append(r.slots, make([]RegistrySlot, RegistryGrowth)...)
	// Push in reverse so the lowest id is reused first.
	for id := len(r.slots) - 1; id >= start; id-- {
		r.free = append(r.free, id)
	}
	return len(r.slots)
}

// Insert registers node, returning its slot id and whether it was added.
// Inserting a registered node is a no-op. Callers must Grow first when
// NeedsGrowth reports true.
func (r *NodeRegistry) Insert(node solana.PublicKey) (int, bool) {
	if id, ok := r.index[node]; ok {
		return id, false
	}
	if len(r.free) == 0 {
		r.Grow()
	}
	id := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.slots[id] = RegistrySlot{Live: true, Node: node}
	r.index[node] = id
	return id, true
}

// Remove unregisters node, freeing its slot.
func (r *NodeRegistry) Remove(node solana.PublicKey) bool {
	id, ok := r.index[node]
	if !ok {
		return false
	}
	r.slots[id] = RegistrySlot{}
	delete(r.index, node)
	r.free = append(r.free, id)
	return true
}

// Nodes returns registered identities in slot order.
func (r *NodeRegistry) Nodes() []solana.PublicKey {
	nodes := make([]solana.PublicKey, 0, len(r.index))
	for _, s := range r.slots {
		if s.Live {
			nodes = append(nodes, s.Node)
		}
	}
	return nodes
}

// EncodedSize is the account size this registry needs.
func (r *NodeRegistry) EncodedSize() int { return RegistrySize(len(r.slots)) }

func (r *NodeRegistry) rebuild() {
	r.index = make(map[solana.PublicKey]int, len(r.slots))
	r.free = r.free[:0]
	for id := len(r.slots) - 1; id >= 0; id-- {
		if r.slots[id].Live {
			r.index[r.slots[id].Node] = id
		} else {
			r.free = append(r.free, id)
		}
	}
}

// ─── Wire Form ──────────────────────────────────────────────────────────────

type registryWire struct {
	Bump  uint8
	Slots []RegistrySlot
}

func (r *NodeRegistry) toWire() *registryWire {
	return &registryWire{Bump: r.Bump, Slots: r.slots}
}

func (w *registryWire) unwire(rec Record) error {
	r := rec.(*NodeRegistry)
	r.Bump = w.Bump
	r.slots = w.Slots
	r.rebuild()
	return nil
}
