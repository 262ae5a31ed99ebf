package program

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/metrics"
)

// ─── Vault Authority ────────────────────────────────────────────────────────

// vaultAuthority signs transfers out of vault custody. The Program holds the
// only instance; no caller key can move escrowed tokens.
type vaultAuthority struct {
	custody solana.PublicKey
}

func (a vaultAuthority) release(tx domain.Txn, to solana.PublicKey, amount uint64, memo string) error {
	if err := token.Transfer(tx, domain.AssetToken, a.custody, to, amount, memo); err != nil {
		return fmt.Errorf("release from vault: %w", err)
	}
	return nil
}

// ─── Reward Engine ──────────────────────────────────────────────────────────

// payCompletion releases task.Reward to the completing provider and books it
// against the provider and vault counters.
func (c *txContext) payCompletion(task *domain.Task, node *domain.ProviderNode, vault *domain.EscrowVault) error {
	rewards, err := domain.AddU64(node.Rewards, task.Reward)
	if err != nil {
		return fmt.Errorf("provider rewards: %w", err)
	}
	if err := addVaultCounters(vault, task.Reward, 0, task.DatasetSize); err != nil {
		return err
	}
	if err := unreserve(vault, task.Reward); err != nil {
		return err
	}
	memo := fmt.Sprintf("task %d reward", task.ID)
	if err := c.p.authority.release(c, node.RewardAccount, task.Reward, memo); err != nil {
		return err
	}
	node.Rewards = rewards

	reward := task.Reward
	c.after(func() { metrics.RewardsDistributed.WithLabelValues("completion").Add(float64(reward)) })
	c.emit(domain.EventRewardPaid, node.RewardAccount, map[string]any{
		"task_id": task.ID,
		"amount":  reward,
		"kind":    "completion",
	})
	return nil
}

// BonusEntitlement is the total bonus a provider has earned at reputation:
// rate per full threshold crossed.
func BonusEntitlement(reputation, threshold, rate uint64) (uint64, error) {
	return domain.MulU64(rate, reputation/threshold)
}

// ClaimBonus pays the provider owned by signer any reputation bonus not yet
// covered by its rewards. It returns the amount paid; a zero payout is a
// successful no-op.
func (p *Program) ClaimBonus(ctx context.Context, signer, provider solana.PublicKey) (uint64, error) {
	var paid uint64
	err := p.execute(ctx, "claim_bonus", signer, func(c *txContext) error {
		var node domain.ProviderNode
		nodeAddr, err := c.loadProvider(provider, &node)
		if err != nil {
			return err
		}
		if err := c.requireOwner(node.Owner, "provider"); err != nil {
			return err
		}
		if node.Reputation < p.cfg.ReputationThreshold {
			return fmt.Errorf("reputation %d < %d: %w", node.Reputation, p.cfg.ReputationThreshold, domain.ErrInsufficientReputation)
		}

		entitled, err := BonusEntitlement(node.Reputation, p.cfg.ReputationThreshold, p.cfg.BonusRate)
		if err != nil {
			return fmt.Errorf("bonus entitlement: %w", err)
		}
		payable := domain.SaturatingSub(entitled, node.Rewards)
		if payable == 0 {
			return nil
		}

		var vault domain.EscrowVault
		vaultAddr, err := loadVault(c, p.addrs, &vault)
		if err != nil {
			return err
		}
		custody, err := token.BalanceOf(c, domain.AssetToken, vault.Custody)
		if err != nil {
			return err
		}
		if free := domain.SaturatingSub(custody, vault.Escrowed); free < payable {
			return fmt.Errorf("bonus %d exceeds unreserved custody %d: %w", payable, free, domain.ErrInsufficientFunds)
		}
		if node.Rewards, err = domain.AddU64(node.Rewards, payable); err != nil {
			return fmt.Errorf("provider rewards: %w", err)
		}
		if err := addVaultCounters(&vault, payable, 0, 0); err != nil {
			return err
		}
		if err := p.authority.release(c, node.RewardAccount, payable, "reputation bonus"); err != nil {
			return err
		}
		node.LastBonusClaim = c.Now().Unix()

		if err := store(c, nodeAddr, &node, domain.ProviderNodeSize); err != nil {
			return err
		}
		if err := store(c, vaultAddr, &vault, domain.EscrowVaultSize); err != nil {
			return err
		}

		paid = payable
		c.after(func() { metrics.RewardsDistributed.WithLabelValues("bonus").Add(float64(payable)) })
		c.emit(domain.EventBonusClaimed, nodeAddr, map[string]any{
			"amount":     payable,
			"reputation": node.Reputation,
			"rewards":    node.Rewards,
		})
		return nil
	})
	return paid, err
}

// FundVault moves amount from signer's token account into vault custody,
// topping up the pool that bonus claims draw from.
func (p *Program) FundVault(ctx context.Context, signer solana.PublicKey, amount uint64) error {
	return p.execute(ctx, "fund_vault", signer, func(c *txContext) error {
		var vault domain.EscrowVault
		vaultAddr, err := loadVault(c, p.addrs, &vault)
		if err != nil {
			return err
		}
		funding, err := p.addrs.TokenAccount(signer)
		if err != nil {
			return err
		}
		if err := token.Transfer(c, domain.AssetToken, funding.Address, vault.Custody, amount, "vault funding"); err != nil {
			return err
		}
		c.emit(domain.EventVaultFunded, vaultAddr, map[string]any{"amount": amount})
		return nil
	})
}
