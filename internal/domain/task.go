package domain

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ─── Task Status ────────────────────────────────────────────────────────────

// TaskStatus is the lifecycle state of a task. Values are ordered so that
// status never decreases across transitions.
type TaskStatus uint8

const (
	TaskPending TaskStatus = iota
	TaskAssigned
	TaskCompleted
)

var taskStatusNames = map[TaskStatus]string{
	TaskPending:   "PENDING",
	TaskAssigned:  "ASSIGNED",
	TaskCompleted: "COMPLETED",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskStatus(%d)", uint8(s))
}

func (s TaskStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// allowedTransitions lists, per status, the statuses it may move to.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:  {TaskAssigned},
	TaskAssigned: {TaskCompleted},
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ─── Tagged Variants ────────────────────────────────────────────────────────

// Assignment is either Unassigned or AssignedTo(node). The zero value is
// Unassigned.
type Assignment struct {
	node     solana.PublicKey
	assigned bool
}

// Unassigned returns the empty assignment.
func Unassigned() Assignment { return Assignment{} }

// AssignedTo returns an assignment to node.
func AssignedTo(node solana.PublicKey) Assignment {
	return Assignment{node: node, assigned: true}
}

// Node returns the assigned provider identity, if any.
func (a Assignment) Node() (solana.PublicKey, bool) { return a.node, a.assigned }

// Is reports whether the assignment names node.
func (a Assignment) Is(node solana.PublicKey) bool { return a.assigned && a.node == node }

func (a Assignment) MarshalJSON() ([]byte, error) {
	if !a.assigned {
		return []byte("null"), nil
	}
	return json.Marshal(a.node)
}

// ResultRef is either pending or Available(reference). The zero value is
// pending.
type ResultRef struct {
	ref       string
	available bool
}

// NoResult returns the pending result.
func NoResult() ResultRef { return ResultRef{} }

// Available returns a result holding reference.
func Available(reference string) ResultRef {
	return ResultRef{ref: reference, available: true}
}

// Reference returns the result reference, if available.
func (r ResultRef) Reference() (string, bool) { return r.ref, r.available }

func (r ResultRef) MarshalJSON() ([]byte, error) {
	if !r.available {
		return []byte("null"), nil
	}
	return json.Marshal(r.ref)
}

// ─── Task ───────────────────────────────────────────────────────────────────

// Task is a unit of scraping work moving Pending → Assigned → Completed.
// Status, Assignment and Result change only through Assign and Complete.
type Task struct {
	Bump         uint8            `json:"bump"`
	ID           uint64           `json:"id"`
	Owner        solana.PublicKey `json:"owner"`
	EndpointNode solana.PublicKey `json:"endpoint_node"`
	URL          string           `json:"url"`
	Filter       string           `json:"filter"`
	Label        string           `json:"label"`
	Format       string           `json:"format"`
	Reward       uint64           `json:"reward"`
	Status       TaskStatus       `json:"status"`
	Assignment   Assignment       `json:"node_assigned"`
	Result       ResultRef        `json:"result_reference"`
	DatasetSize  uint64           `json:"dataset_size"`
}

func (*Task) RecordName() string { return "Task" }

// TaskSpec holds the client-supplied fields of a new task.
type TaskSpec struct {
	EndpointNode solana.PublicKey
	URL          string
	Filter       string
	Label        string
	Format       string
	Reward       uint64
}

// Validate checks field bounds.
func (s TaskSpec) Validate() error {
	if err := checkLen("url", s.URL, MaxURLLen); err != nil {
		return err
	}
	if err := checkLen("filter", s.Filter, MaxFilterLen); err != nil {
		return err
	}
	if err := checkLen("label", s.Label, MaxLabelLen); err != nil {
		return err
	}
	if err := checkLen("format", s.Format, MaxFormatLen); err != nil {
		return err
	}
	if s.Reward == 0 {
		return fmt.Errorf("reward: %w", ErrInvalidAmount)
	}
	return nil
}

// NewTask builds a pending task from spec.
func NewTask(owner solana.PublicKey, id uint64, bump uint8, spec TaskSpec) (*Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Task{
		Bump:         bump,
		ID:           id,
		Owner:        owner,
		EndpointNode: spec.EndpointNode,
		URL:          spec.URL,
		Filter:       spec.Filter,
		Label:        spec.Label,
		Format:       spec.Format,
		Reward:       spec.Reward,
		Status:       TaskPending,
	}, nil
}

func (t *Task) transition(next TaskStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("task %d %s -> %s: %w", t.ID, t.Status, next, ErrInvalidTransition)
	}
	t.Status = next
	return nil
}

// Assign moves a pending task to node.
func (t *Task) Assign(node solana.PublicKey) error {
	if err := t.transition(TaskAssigned); err != nil {
		return err
	}
	t.Assignment = AssignedTo(node)
	return nil
}

// Complete records the result of an assigned task. node must be the
// assigned provider.
func (t *Task) Complete(node solana.PublicKey, reference string, datasetSize uint64) error {
	if err := checkLen("reference", reference, MaxReferenceLen); err != nil {
		return err
	}
	if t.Status != TaskAssigned {
		return fmt.Errorf("task %d %s -> %s: %w", t.ID, t.Status, TaskCompleted, ErrInvalidTransition)
	}
	if !t.Assignment.Is(node) {
		return fmt.Errorf("task %d: %w", t.ID, ErrNotAssignedProvider)
	}
	if err := t.transition(TaskCompleted); err != nil {
		return err
	}
	t.Result = Available(reference)
	t.DatasetSize = datasetSize
	return nil
}

// Validate checks that assignment and result agree with status.
func (t *Task) Validate() error {
	if _, assigned := t.Assignment.Node(); assigned != (t.Status != TaskPending) {
		return fmt.Errorf("task %d: assignment inconsistent with status %s", t.ID, t.Status)
	}
	if _, ok := t.Result.Reference(); ok != (t.Status == TaskCompleted) {
		return fmt.Errorf("task %d: result inconsistent with status %s", t.ID, t.Status)
	}
	if t.Status > TaskCompleted {
		return fmt.Errorf("task %d: unknown status %d", t.ID, t.Status)
	}
	return nil
}

// ─── Wire Form ──────────────────────────────────────────────────────────────

type taskWire struct {
	Bump         uint8
	ID           uint64
	Owner        solana.PublicKey
	EndpointNode solana.PublicKey
	URL          string
	Filter       string
	Label        string
	Format       string
	Reward       uint64
	Status       uint8
	HasNode      bool
	Node         solana.PublicKey
	HasResult    bool
	Result       string
	DatasetSize  uint64
}

func (t *Task) toWire() *taskWire {
	node, hasNode := t.Assignment.Node()
	ref, hasResult := t.Result.Reference()
	return &taskWire{
		Bump:         t.Bump,
		ID:           t.ID,
		Owner:        t.Owner,
		EndpointNode: t.EndpointNode,
		URL:          t.URL,
		Filter:       t.Filter,
		Label:        t.Label,
		Format:       t.Format,
		Reward:       t.Reward,
		Status:       uint8(t.Status),
		HasNode:      hasNode,
		Node:         node,
		HasResult:    hasResult,
		Result:       ref,
		DatasetSize:  t.DatasetSize,
	}
}

func (w *taskWire) unwire(r Record) error {
	t := r.(*Task)
	*t = Task{
		Bump:         w.Bump,
		ID:           w.ID,
		Owner:        w.Owner,
		EndpointNode: w.EndpointNode,
		URL:          w.URL,
		Filter:       w.Filter,
		Label:        w.Label,
		Format:       w.Format,
		Reward:       w.Reward,
		Status:       TaskStatus(w.Status),
		DatasetSize:  w.DatasetSize,
	}
	if w.HasNode {
		t.Assignment = AssignedTo(w.Node)
	}
	if w.HasResult {
		t.Result = Available(w.Result)
	}
	return t.Validate()
}
