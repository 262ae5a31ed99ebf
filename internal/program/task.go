package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// TaskRef identifies a task by its owner and per-owner id.
type TaskRef struct {
	Owner solana.PublicKey `json:"owner"`
	ID    uint64           `json:"id"`
}

func (r TaskRef) String() string { return fmt.Sprintf("%s/%d", r.Owner, r.ID) }

// QualityReport is an oracle observation of a result's quality.
type QualityReport struct {
	Score      uint64    `json:"score"`
	ObservedAt time.Time `json:"observed_at"`
}

// CompleteParams carries a provider's result submission.
type CompleteParams struct {
	Reference   string         `json:"reference"`
	DatasetSize uint64         `json:"dataset_size"`
	Quality     *QualityReport `json:"quality,omitempty"`
}

// ─── Create ─────────────────────────────────────────────────────────────────

// CreateTask escrows spec.Reward from signer's token account and records a
// pending task routed through endpoint's node. The client account is created
// on first use.
func (p *Program) CreateTask(ctx context.Context, signer, endpoint solana.PublicKey, spec domain.TaskSpec) (*domain.Task, error) {
	var task *domain.Task
	err := p.execute(ctx, "create_task", signer, func(c *txContext) error {
		if err := spec.Validate(); err != nil {
			return err
		}

		var vault domain.EscrowVault
		vaultAddr, err := loadVault(c, p.addrs, &vault)
		if err != nil {
			return err
		}

		ep, err := p.addrs.Endpoint(endpoint)
		if err != nil {
			return err
		}
		var node domain.EndpointNode
		if err := load(c, ep.Address, &node); err != nil {
			return err
		}
		spec.EndpointNode = ep.Address

		var client domain.ClientAccount
		clientAddr, err := c.ensureClient(signer, &client)
		if err != nil {
			return err
		}

		id := client.TaskCounter
		if client.TaskCounter, err = domain.AddU64(client.TaskCounter, 1); err != nil {
			return fmt.Errorf("task counter: %w", err)
		}
		if err := addVaultCounters(&vault, 0, spec.Reward, 0); err != nil {
			return err
		}
		if err := reserve(&vault, spec.Reward); err != nil {
			return err
		}

		d, err := p.addrs.Task(signer, id)
		if err != nil {
			return err
		}
		task, err = domain.NewTask(signer, id, d.Bump, spec)
		if err != nil {
			return err
		}

		funding, err := p.addrs.TokenAccount(signer)
		if err != nil {
			return err
		}
		memo := fmt.Sprintf("task %d escrow", id)
		if err := token.Transfer(c, domain.AssetToken, funding.Address, vault.Custody, spec.Reward, memo); err != nil {
			return fmt.Errorf("escrow reward: %w", err)
		}

		if err := c.create(signer, d.Address, task, domain.TaskSize); err != nil {
			return err
		}
		if err := store(c, clientAddr, &client, domain.ClientAccountSize); err != nil {
			return err
		}
		if err := store(c, vaultAddr, &vault, domain.EscrowVaultSize); err != nil {
			return err
		}

		reward := spec.Reward
		c.after(func() {
			metrics.TasksCreated.Inc()
			metrics.EscrowDeposited.Add(float64(reward))
		})
		c.emit(domain.EventTaskCreated, d.Address, map[string]any{
			"id":            id,
			"endpoint_node": ep.Address.String(),
			"url":           spec.URL,
			"reward":        reward,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ─── Assign ─────────────────────────────────────────────────────────────────

// AssignTask lets a provider claim a pending task for itself. signer must own
// provider, which must be listed in the registry and active.
func (p *Program) AssignTask(ctx context.Context, signer solana.PublicKey, ref TaskRef, provider solana.PublicKey) error {
	return p.execute(ctx, "assign_task", signer, func(c *txContext) error {
		if signer != provider {
			return fmt.Errorf("direct assignment to %s: %w", provider, domain.ErrUnauthorized)
		}
		return c.assign(ref, provider, "direct")
	})
}

// AssignTaskViaEndpoint assigns a pending task through the endpoint node it
// was created for. signer must own that endpoint.
func (p *Program) AssignTaskViaEndpoint(ctx context.Context, signer solana.PublicKey, ref TaskRef, endpoint, provider solana.PublicKey) error {
	return p.execute(ctx, "assign_task_via_endpoint", signer, func(c *txContext) error {
		var task domain.Task
		if _, err := c.loadTask(ref, &task); err != nil {
			return err
		}
		ep, err := p.addrs.Endpoint(endpoint)
		if err != nil {
			return err
		}
		if ep.Address != task.EndpointNode {
			return fmt.Errorf("task %s routed via %s: %w", ref, task.EndpointNode, domain.ErrEndpointMismatch)
		}
		var node domain.EndpointNode
		if err := load(c, ep.Address, &node); err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "endpoint"); err != nil {
			return err
		}
		return c.assign(ref, provider, "endpoint")
	})
}

func (c *txContext) assign(ref TaskRef, provider solana.PublicKey, path string) error {
	var task domain.Task
	addr, err := c.loadTask(ref, &task)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskPending {
		return fmt.Errorf("task %s is %s: %w", ref, task.Status, domain.ErrInvalidTransition)
	}
	var node domain.ProviderNode
	if _, err := c.requireListedActive(provider, &node); err != nil {
		return err
	}
	if err := task.Assign(provider); err != nil {
		return err
	}
	if err := store(c, addr, &task, domain.TaskSize); err != nil {
		return err
	}
	c.after(func() { metrics.TasksAssigned.WithLabelValues(path).Inc() })
	c.emit(domain.EventTaskAssigned, addr, map[string]any{
		"id":       ref.ID,
		"provider": provider.String(),
		"path":     path,
	})
	return nil
}

// ─── Complete ───────────────────────────────────────────────────────────────

// CompleteTask records the assigned provider's result and pays the task's
// escrowed reward to the provider's reward account.
func (p *Program) CompleteTask(ctx context.Context, signer solana.PublicKey, ref TaskRef, provider solana.PublicKey, params CompleteParams) error {
	return p.execute(ctx, "complete_task", signer, func(c *txContext) error {
		var task domain.Task
		taskAddr, err := c.loadTask(ref, &task)
		if err != nil {
			return err
		}
		var node domain.ProviderNode
		nodeAddr, err := c.loadProvider(provider, &node)
		if err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "provider"); err != nil {
			return err
		}
		if err := c.checkQuality(params.Quality); err != nil {
			return err
		}
		if err := task.Complete(node.Owner, params.Reference, params.DatasetSize); err != nil {
			return err
		}

		var vault domain.EscrowVault
		vaultAddr, err := loadVault(c, p.addrs, &vault)
		if err != nil {
			return err
		}
		if node.BandwidthUsed, err = domain.AddU64(node.BandwidthUsed, params.DatasetSize); err != nil {
			return fmt.Errorf("bandwidth used: %w", err)
		}
		if node.Reputation, err = domain.AddU64(node.Reputation, p.cfg.CompletionReputation); err != nil {
			return fmt.Errorf("reputation: %w", err)
		}
		if err := c.payCompletion(&task, &node, &vault); err != nil {
			return err
		}

		if err := store(c, taskAddr, &task, domain.TaskSize); err != nil {
			return err
		}
		if err := store(c, nodeAddr, &node, domain.ProviderNodeSize); err != nil {
			return err
		}
		if err := store(c, vaultAddr, &vault, domain.EscrowVaultSize); err != nil {
			return err
		}

		size := params.DatasetSize
		c.after(func() {
			metrics.TasksCompleted.Inc()
			metrics.DatasetBytes.Observe(float64(size))
		})
		c.emit(domain.EventTaskCompleted, taskAddr, map[string]any{
			"id":           ref.ID,
			"provider":     provider.String(),
			"reference":    params.Reference,
			"dataset_size": size,
		})
		return nil
	})
}

// checkQuality applies the oracle gate to an optional quality report.
func (c *txContext) checkQuality(q *QualityReport) error {
	cfg := c.p.cfg
	if q == nil {
		if cfg.RequireQuality {
			return fmt.Errorf("quality report: %w", domain.ErrQualityMissing)
		}
		return nil
	}
	if age := c.Now().Sub(q.ObservedAt); age > cfg.FreshnessWindow {
		return fmt.Errorf("quality observed %s ago: %w", age.Round(time.Second), domain.ErrStaleQuality)
	}
	if q.Score < cfg.MinQualityScore {
		return fmt.Errorf("quality score %d < %d: %w", q.Score, cfg.MinQualityScore, domain.ErrInsufficientQuality)
	}
	return nil
}

// ─── Close ──────────────────────────────────────────────────────────────────

// CloseTask destroys a task in any state. A task that never completed has
// its escrowed reward returned to the owner's token account.
func (p *Program) CloseTask(ctx context.Context, signer solana.PublicKey, ref TaskRef) error {
	return p.execute(ctx, "close_task", signer, func(c *txContext) error {
		var task domain.Task
		addr, err := c.loadTask(ref, &task)
		if err != nil {
			return err
		}
		if err := c.requireOwner(task.Owner, "task"); err != nil {
			return err
		}

		var refunded uint64
		if task.Status != domain.TaskCompleted {
			var vault domain.EscrowVault
			vaultAddr, err := loadVault(c, p.addrs, &vault)
			if err != nil {
				return err
			}
			if err := unreserve(&vault, task.Reward); err != nil {
				return err
			}
			funding, err := p.addrs.TokenAccount(task.Owner)
			if err != nil {
				return err
			}
			memo := fmt.Sprintf("task %d escrow refund", task.ID)
			if err := p.authority.release(c, funding.Address, task.Reward, memo); err != nil {
				return err
			}
			if err := store(c, vaultAddr, &vault, domain.EscrowVaultSize); err != nil {
				return err
			}
			refunded = task.Reward
		}
		if err := c.destroy(addr, task.Owner, task.RecordName()); err != nil {
			return err
		}

		status := task.Status.String()
		c.after(func() { metrics.TasksClosed.WithLabelValues(status).Inc() })
		c.emit(domain.EventTaskClosed, addr, map[string]any{
			"id":       ref.ID,
			"status":   status,
			"refunded": refunded,
		})
		return nil
	})
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Task reads one task.
func (p *Program) Task(ctx context.Context, ref TaskRef) (*domain.Task, error) {
	var task domain.Task
	err := p.view(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p}
		_, err := c.loadTask(ref, &task)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// TasksByOwner lists the open tasks owned by owner, oldest first. Closed
// tasks are skipped.
func (p *Program) TasksByOwner(ctx context.Context, owner solana.PublicKey) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := p.view(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p}
		d, err := p.addrs.Client(owner)
		if err != nil {
			return err
		}
		var client domain.ClientAccount
		if err := load(tx, d.Address, &client); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil
			}
			return err
		}
		for id := uint64(0); id < client.TaskCounter; id++ {
			var task domain.Task
			if _, err := c.loadTask(TaskRef{Owner: owner, ID: id}, &task); err != nil {
				if errors.Is(err, domain.ErrAccountNotFound) {
					continue
				}
				return err
			}
			tasks = append(tasks, &task)
		}
		return nil
	})
	return tasks, err
}

func (c *txContext) loadTask(ref TaskRef, task *domain.Task) (solana.PublicKey, error) {
	d, err := c.p.addrs.Task(ref.Owner, ref.ID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := load(c, d.Address, task); err != nil {
		return solana.PublicKey{}, fmt.Errorf("task %s: %w", ref, err)
	}
	return d.Address, nil
}
