package program

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// ─── Dataset Access ─────────────────────────────────────────────────────────

// DatasetAccess describes a completed task's result and what it costs to
// fetch.
type DatasetAccess struct {
	Task        TaskRef `json:"task"`
	Reference   string  `json:"reference"`
	DatasetSize uint64  `json:"dataset_size"`
	Cost        uint64  `json:"cost"`
}

// AccessCost prices a dataset of size units: free up to freeUnits, then
// rate per unit beyond that.
func AccessCost(size, freeUnits, rate uint64) (uint64, error) {
	if size <= freeUnits {
		return 0, nil
	}
	cost, err := domain.MulU64(size-freeUnits, rate)
	if err != nil {
		return 0, fmt.Errorf("access cost for %d units: %w", size, err)
	}
	return cost, nil
}

// PreviewDataset reports the result reference and cost of a completed task
// without fetching it.
func (p *Program) PreviewDataset(ctx context.Context, signer solana.PublicKey, ref TaskRef, client solana.PublicKey) (*DatasetAccess, error) {
	return p.datasetAccess(ctx, signer, ref, client)
}

// DownloadDataset resolves the result of a completed task for its owner.
// Cost is reported, not charged.
func (p *Program) DownloadDataset(ctx context.Context, signer solana.PublicKey, ref TaskRef, client solana.PublicKey) (*DatasetAccess, error) {
	access, err := p.datasetAccess(ctx, signer, ref, client)
	p.recordReceipt(ctx, "download_dataset", signer, err)
	if err != nil {
		return nil, err
	}
	return access, nil
}

func (p *Program) datasetAccess(ctx context.Context, signer solana.PublicKey, ref TaskRef, client solana.PublicKey) (*DatasetAccess, error) {
	var access *DatasetAccess
	err := p.view(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: p, signer: signer}

		var task domain.Task
		if _, err := c.loadTask(ref, &task); err != nil {
			return err
		}
		d, err := p.addrs.Client(client)
		if err != nil {
			return err
		}
		var acct domain.ClientAccount
		if err := load(tx, d.Address, &acct); err != nil {
			return err
		}
		if err := c.requireOwner(task.Owner, "task"); err != nil {
			return err
		}
		if err := c.requireOwner(acct.Owner, "client"); err != nil {
			return err
		}
		if task.Status != domain.TaskCompleted {
			return fmt.Errorf("task %s is %s: %w", ref, task.Status, domain.ErrTaskNotCompleted)
		}
		reference, ok := task.Result.Reference()
		if !ok {
			return fmt.Errorf("task %s: %w", ref, domain.ErrResultMissing)
		}
		cost, err := AccessCost(task.DatasetSize, p.cfg.FreeUnits, p.cfg.RatePerUnit)
		if err != nil {
			return err
		}
		access = &DatasetAccess{Task: ref, Reference: reference, DatasetSize: task.DatasetSize, Cost: cost}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return access, nil
}
