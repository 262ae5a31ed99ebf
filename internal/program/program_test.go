package program

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/infra/sqlite"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

type world struct {
	p     *Program
	db    *sqlite.DB
	admin solana.PublicKey
	now   time.Time
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

// newWorld opens a fresh ledger with an initialized vault and registry.
func newWorld(t *testing.T, opts ...func(*Config)) *world {
	t.Helper()
	w := newBareWorld(t, opts...)
	ctx := context.Background()
	_, err := w.p.InitVault(ctx, w.admin)
	require.NoError(t, err)
	require.NoError(t, w.p.InitRegistry(ctx, w.admin))
	return w
}

// newBareWorld opens a fresh ledger with no singletons created.
func newBareWorld(t *testing.T, opts ...func(*Config)) *world {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := &world{db: db, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	db.SetClock(func() time.Time { return w.now })

	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	w.p, err = New(cfg, db, db, nil)
	require.NoError(t, err)

	w.admin = w.party(t, 0)
	return w
}

// party creates an identity holding rent lamports and tokens in its token
// account.
func (w *world) party(t *testing.T, tokens uint64) solana.PublicKey {
	t.Helper()
	owner := newKey(t)
	acct, err := w.p.Addresses().TokenAccount(owner)
	require.NoError(t, err)
	err = w.db.Update(context.Background(), func(tx domain.Txn) error {
		if err := token.Mint(tx, domain.AssetLamports, owner, 10_000_000, "test rent"); err != nil {
			return err
		}
		if tokens == 0 {
			return nil
		}
		return token.Mint(tx, domain.AssetToken, acct.Address, tokens, "test tokens")
	})
	require.NoError(t, err)
	return owner
}

func (w *world) tokens(t *testing.T, owner solana.PublicKey) int64 {
	t.Helper()
	acct, err := w.p.Addresses().TokenAccount(owner)
	require.NoError(t, err)
	bal, err := w.db.Balance(context.Background(), domain.AssetToken, acct.Address)
	require.NoError(t, err)
	return bal
}

func (w *world) lamports(t *testing.T, holder solana.PublicKey) int64 {
	t.Helper()
	bal, err := w.db.Balance(context.Background(), domain.AssetLamports, holder)
	require.NoError(t, err)
	return bal
}

func (w *world) provider(t *testing.T) solana.PublicKey {
	t.Helper()
	owner := w.party(t, 0)
	ip, err := domain.ParseIPv4("10.0.0.7")
	require.NoError(t, err)
	_, err = w.p.RegisterProvider(context.Background(), owner, ProviderParams{
		NetworkAddress: ip,
		ProxyPort:      8080,
		ClientPort:     9090,
		BandwidthLimit: 1 << 30,
	})
	require.NoError(t, err)
	return owner
}

func (w *world) endpoint(t *testing.T) solana.PublicKey {
	t.Helper()
	owner := w.party(t, 0)
	_, err := w.p.CreateEndpoint(context.Background(), owner)
	require.NoError(t, err)
	return owner
}

func (w *world) task(t *testing.T, owner, endpoint solana.PublicKey, reward uint64) TaskRef {
	t.Helper()
	task, err := w.p.CreateTask(context.Background(), owner, endpoint, domain.TaskSpec{
		URL:    "https://example.com/listing",
		Filter: ".price",
		Label:  "prices",
		Format: "json",
		Reward: reward,
	})
	require.NoError(t, err)
	return TaskRef{Owner: owner, ID: task.ID}
}

// ─── Singletons ─────────────────────────────────────────────────────────────

func TestSingletons_RequiredBeforeUse(t *testing.T) {
	w := newBareWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)

	_, err := w.p.RegisterProvider(ctx, w.party(t, 0), ProviderParams{})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = w.p.CreateTask(ctx, client, client, domain.TaskSpec{Reward: 1})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = w.p.Vault(ctx)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = w.p.Registry(ctx)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSingletons_InitOnce(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.p.InitVault(ctx, w.admin)
	assert.ErrorIs(t, err, domain.ErrAccountExists)
	assert.ErrorIs(t, w.p.InitRegistry(ctx, w.admin), domain.ErrAccountExists)

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, w.admin, vault.Admin)
	assert.Zero(t, vault.TotalRewardsDistributed)
}

// ─── Example Scenario ───────────────────────────────────────────────────────

func TestScenario_CreateAssignComplete(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	client := w.party(t, 5_000)
	endpoint := w.endpoint(t)
	provider := w.provider(t)

	ref := w.task(t, client, endpoint, 1_000)
	assert.Equal(t, uint64(0), ref.ID)
	assert.Equal(t, int64(4_000), w.tokens(t, client))

	custody, err := w.p.CustodyBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), custody)

	require.NoError(t, w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, provider))

	task, err := w.p.Task(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskAssigned, task.Status)
	node, ok := task.Assignment.Node()
	require.True(t, ok)
	assert.Equal(t, provider, node)

	err = w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{
		Reference:   "ipfs://bafy-result",
		DatasetSize: 300,
	})
	require.NoError(t, err)

	task, err = w.p.Task(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, uint64(300), task.DatasetSize)
	require.NoError(t, task.Validate())

	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), pn.Rewards)
	assert.Equal(t, uint64(10), pn.Reputation)
	assert.Equal(t, uint64(300), pn.BandwidthUsed)
	assert.Equal(t, int64(1_000), w.tokens(t, provider))

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), vault.TotalRewardsDistributed)
	assert.Equal(t, uint64(1_000), vault.BandwidthPaid)
	assert.Equal(t, uint64(300), vault.BandwidthUsed)

	custody, err = w.p.CustodyBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, custody)

	access, err := w.p.PreviewDataset(ctx, client, ref, client)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy-result", access.Reference)
	assert.Zero(t, access.Cost)
}

func TestCreateTask_CountersAdvance(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)

	first := w.task(t, client, endpoint, 10)
	second := w.task(t, client, endpoint, 10)
	assert.Equal(t, uint64(0), first.ID)
	assert.Equal(t, uint64(1), second.ID)

	acct, err := w.p.Client(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acct.TaskCounter)

	tasks, err := w.p.TasksByOwner(ctx, client)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestCreateTask_InsufficientFundsIsAtomic(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 50)
	endpoint := w.endpoint(t)
	lamportsBefore := w.lamports(t, client)

	_, err := w.p.CreateTask(ctx, client, endpoint, domain.TaskSpec{URL: "https://a", Reward: 51})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.KindResource, domain.KindOf(err))

	_, err = w.p.Client(ctx, client)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound, "lazily created client must roll back")
	assert.Equal(t, int64(50), w.tokens(t, client))
	assert.Equal(t, lamportsBefore, w.lamports(t, client))

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Zero(t, vault.BandwidthPaid)
}

func TestCreateTask_Validation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)

	_, err := w.p.CreateTask(ctx, client, endpoint, domain.TaskSpec{URL: "https://a"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	long := make([]byte, domain.MaxURLLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = w.p.CreateTask(ctx, client, endpoint, domain.TaskSpec{URL: string(long), Reward: 1})
	assert.ErrorIs(t, err, domain.ErrFieldTooLong)

	_, err = w.p.CreateTask(ctx, client, w.party(t, 0), domain.TaskSpec{URL: "https://a", Reward: 1})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound, "endpoint must exist")
}

// ─── Assignment ─────────────────────────────────────────────────────────────

func TestAssignTask_DirectIsSelfClaim(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	ref := w.task(t, client, w.endpoint(t), 10)
	provider := w.provider(t)

	err := w.p.AssignTask(ctx, client, ref, provider)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))

	err = w.p.AssignTask(ctx, provider, ref, provider)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAssignTaskViaEndpoint_Checks(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)
	other := w.endpoint(t)
	provider := w.provider(t)
	ref := w.task(t, client, endpoint, 10)

	err := w.p.AssignTaskViaEndpoint(ctx, other, ref, other, provider)
	assert.ErrorIs(t, err, domain.ErrEndpointMismatch)

	err = w.p.AssignTaskViaEndpoint(ctx, other, ref, endpoint, provider)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, w.party(t, 0))
	assert.ErrorIs(t, err, domain.ErrProviderNotRegistered)

	require.NoError(t, w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, provider))
}

func TestAssign_RequiresRegistryListing(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)
	ref := w.task(t, client, endpoint, 10)

	// A provider record that was never listed.
	unlisted := w.party(t, 0)
	err := w.db.Update(ctx, func(tx domain.Txn) error {
		c := &txContext{Txn: tx, p: w.p, signer: unlisted}
		d, err := w.p.addrs.Provider(unlisted)
		if err != nil {
			return err
		}
		node := &domain.ProviderNode{Bump: d.Bump, Owner: unlisted, Active: true}
		return c.create(unlisted, d.Address, node, domain.ProviderNodeSize)
	})
	require.NoError(t, err)

	err = w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, unlisted)
	assert.ErrorIs(t, err, domain.ErrProviderNotRegistered)
	err = w.p.AssignTask(ctx, unlisted, ref, unlisted)
	assert.ErrorIs(t, err, domain.ErrProviderNotRegistered)
}

func TestAssign_ClosedProviderIsPruned(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)
	ref := w.task(t, client, endpoint, 10)
	provider := w.provider(t)

	require.NoError(t, w.p.CloseProvider(ctx, provider, provider))

	reg, err := w.p.Registry(ctx)
	require.NoError(t, err)
	assert.False(t, reg.Contains(provider))

	err = w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, provider)
	assert.ErrorIs(t, err, domain.ErrProviderNotRegistered)
}

func TestAssign_InactiveProvider(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)
	ref := w.task(t, client, endpoint, 10)
	provider := w.provider(t)

	require.NoError(t, w.p.SetProviderActive(ctx, provider, provider, false))
	err := w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, provider)
	assert.ErrorIs(t, err, domain.ErrProviderInactive)

	require.NoError(t, w.p.SetProviderActive(ctx, provider, provider, true))
	require.NoError(t, w.p.AssignTaskViaEndpoint(ctx, endpoint, ref, endpoint, provider))
}

// ─── Completion ─────────────────────────────────────────────────────────────

func TestCompleteTask_StatusIsMonotone(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	intruder := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 10)
	result := CompleteParams{Reference: "ref", DatasetSize: 1}

	err := w.p.CompleteTask(ctx, provider, ref, provider, result)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending task cannot complete")

	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))

	err = w.p.CompleteTask(ctx, intruder, ref, intruder, result)
	assert.ErrorIs(t, err, domain.ErrNotAssignedProvider)
	err = w.p.CompleteTask(ctx, intruder, ref, provider, result)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, result))

	err = w.p.CompleteTask(ctx, provider, ref, provider, result)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	err = w.p.AssignTask(ctx, provider, ref, provider)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), pn.Rewards, "reward is paid once")
}

func TestCompleteTask_QualityGate(t *testing.T) {
	w := newWorld(t, func(c *Config) { c.MinQualityScore = 70 })
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 10)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))

	stale := &QualityReport{Score: 90, ObservedAt: w.now.Add(-6 * time.Minute)}
	err := w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r", Quality: stale})
	require.ErrorIs(t, err, domain.ErrStaleQuality)
	assert.Equal(t, domain.KindStaleness, domain.KindOf(err))

	low := &QualityReport{Score: 69, ObservedAt: w.now.Add(-time.Minute)}
	err = w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r", Quality: low})
	assert.ErrorIs(t, err, domain.ErrInsufficientQuality)

	good := &QualityReport{Score: 70, ObservedAt: w.now.Add(-5 * time.Minute)}
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r", Quality: good}))
}

func TestCompleteTask_RequireQuality(t *testing.T) {
	w := newWorld(t, func(c *Config) { c.RequireQuality = true })
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 10)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))

	err := w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r"})
	assert.ErrorIs(t, err, domain.ErrQualityMissing)

	task, err := w.p.Task(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskAssigned, task.Status)
}

// ─── Close ──────────────────────────────────────────────────────────────────

func TestCloseTask_RefundsEscrowAndRent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	endpoint := w.endpoint(t)
	ref := w.task(t, client, endpoint, 40)
	lamportsWithTask := w.lamports(t, client)

	err := w.p.CloseTask(ctx, endpoint, ref)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, w.p.CloseTask(ctx, client, ref))
	assert.Equal(t, int64(100), w.tokens(t, client))
	assert.Equal(t, lamportsWithTask+int64(domain.TaskSize)*10, w.lamports(t, client))

	_, err = w.p.Task(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	custody, err := w.p.CustodyBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, custody)
}

func TestCloseTask_CompletedKeepsReward(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 40)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r"}))

	require.NoError(t, w.p.CloseTask(ctx, client, ref))
	assert.Equal(t, int64(60), w.tokens(t, client))
	assert.Equal(t, int64(40), w.tokens(t, provider))
}

func TestCloseEndpoint_Recreate(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	endpoint := w.endpoint(t)
	before := w.lamports(t, endpoint)

	assert.ErrorIs(t, w.p.CloseEndpoint(ctx, w.admin, endpoint), domain.ErrUnauthorized)
	require.NoError(t, w.p.CloseEndpoint(ctx, endpoint, endpoint))
	assert.Equal(t, before+int64(domain.EndpointNodeSize)*10, w.lamports(t, endpoint))

	_, err := w.p.Endpoint(ctx, endpoint)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = w.p.CreateEndpoint(ctx, endpoint)
	require.NoError(t, err)
	_, err = w.p.CreateEndpoint(ctx, endpoint)
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

// ─── Providers and Registry ─────────────────────────────────────────────────

func TestRegisterProvider_ListsOnce(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	provider := w.provider(t)

	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.True(t, pn.Active)
	reward, err := w.p.Addresses().TokenAccount(provider)
	require.NoError(t, err)
	assert.Equal(t, reward.Address, pn.RewardAccount)

	_, err = w.p.RegisterProvider(ctx, provider, ProviderParams{})
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	reg, err := w.p.Registry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []solana.PublicKey{provider}, reg.Nodes())
}

func TestRegistry_GrowsInChunks(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	var first, last solana.PublicKey
	for i := 0; i <= domain.RegistryGrowth; i++ {
		owner := w.provider(t)
		if i == 0 {
			first = owner
		}
		last = owner
	}

	reg, err := w.p.Registry(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistryGrowth+1, reg.Len())
	assert.Equal(t, 2*domain.RegistryGrowth, reg.Capacity())

	regAddr, err := w.p.Addresses().Registry()
	require.NoError(t, err)
	assert.Equal(t, int64(domain.RegistrySize(reg.Capacity()))*10, w.lamports(t, regAddr.Address))

	// Freed slots are reused before growing again.
	require.NoError(t, w.p.CloseProvider(ctx, first, first))
	w.provider(t)
	reg, err = w.p.Registry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*domain.RegistryGrowth, reg.Capacity())
	assert.True(t, reg.Contains(last))
	assert.False(t, reg.Contains(first))
}

func TestUpdateProvider(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	provider := w.provider(t)
	ip, err := domain.ParseIPv4("192.168.1.20")
	require.NoError(t, err)

	params := ProviderParams{NetworkAddress: ip, ProxyPort: 1, ClientPort: 2, BandwidthLimit: 3}
	assert.ErrorIs(t, w.p.UpdateProvider(ctx, w.admin, provider, params), domain.ErrUnauthorized)
	require.NoError(t, w.p.UpdateProvider(ctx, provider, provider, params))
	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 500, 7))

	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", pn.NetworkAddress.String())
	assert.Equal(t, uint64(3), pn.BandwidthLimit)
	assert.Equal(t, uint64(500), pn.BandwidthUsed)
	assert.Equal(t, uint64(7), pn.Reputation)
	assert.True(t, pn.Active)

	err = w.p.UpdateProviderReport(ctx, provider, provider, ^uint64(0), 0)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
	pn, err = w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), pn.BandwidthUsed)
}

func TestCloseProvider_RefundsRent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	provider := w.provider(t)
	before := w.lamports(t, provider)

	assert.ErrorIs(t, w.p.CloseProvider(ctx, w.admin, provider), domain.ErrUnauthorized)
	require.NoError(t, w.p.CloseProvider(ctx, provider, provider))
	assert.Equal(t, before+int64(domain.ProviderNodeSize)*10, w.lamports(t, provider))

	_, err := w.p.Provider(ctx, provider)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// ─── Rewards ────────────────────────────────────────────────────────────────

func TestClaimBonus_Idempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	funder := w.party(t, 10_000)
	require.NoError(t, w.p.FundVault(ctx, funder, 1_000))
	provider := w.provider(t)

	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 49))
	_, err := w.p.ClaimBonus(ctx, provider, provider)
	assert.ErrorIs(t, err, domain.ErrInsufficientReputation)

	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 71))
	_, err = w.p.ClaimBonus(ctx, w.admin, provider)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	paid, err := w.p.ClaimBonus(ctx, provider, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), paid)

	paid, err = w.p.ClaimBonus(ctx, provider, provider)
	require.NoError(t, err)
	assert.Zero(t, paid)

	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), pn.Rewards)
	assert.Equal(t, w.now.Unix(), pn.LastBonusClaim)
	assert.Equal(t, int64(200), w.tokens(t, provider))

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), vault.TotalRewardsDistributed)
}

func TestClaimBonus_CoveredByCompletionRewards(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 1_000)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 500)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r"}))
	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 90))

	paid, err := w.p.ClaimBonus(ctx, provider, provider)
	require.NoError(t, err)
	assert.Zero(t, paid, "entitlement 200 is below rewards 500")
}

func TestClaimBonus_VaultMustCoverPayout(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	provider := w.provider(t)
	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 50))

	_, err := w.p.ClaimBonus(ctx, provider, provider)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	pn, err := w.p.Provider(ctx, provider)
	require.NoError(t, err)
	assert.Zero(t, pn.Rewards)
}

func TestClaimBonus_CannotSpendTaskEscrow(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	ref := w.task(t, client, w.endpoint(t), 100)
	provider := w.provider(t)
	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 50))

	_, err := w.p.ClaimBonus(ctx, provider, provider)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Zero(t, w.tokens(t, provider))

	free, err := w.p.FreeCustody(ctx)
	require.NoError(t, err)
	assert.Zero(t, free)

	require.NoError(t, w.p.CloseTask(ctx, client, ref))
	assert.Equal(t, int64(100), w.tokens(t, client))
	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Zero(t, vault.Escrowed)
}

func TestClaimBonus_PaidFromSurplusOnly(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 500)
	w.task(t, client, w.endpoint(t), 500)
	funder := w.party(t, 150)
	require.NoError(t, w.p.FundVault(ctx, funder, 150))
	provider := w.provider(t)
	require.NoError(t, w.p.UpdateProviderReport(ctx, provider, provider, 0, 50))

	// Entitlement at reputation 50 is 100; surplus is 150.
	paid, err := w.p.ClaimBonus(ctx, provider, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid)

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), vault.Escrowed)
	free, err := w.p.FreeCustody(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), free)
}

func TestVault_EscrowedTracksOpenTasks(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 1_000)
	endpoint := w.endpoint(t)
	provider := w.provider(t)
	done := w.task(t, client, endpoint, 300)
	w.task(t, client, endpoint, 400)

	vault, err := w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), vault.Escrowed)

	require.NoError(t, w.p.AssignTask(ctx, provider, done, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, done, provider, CompleteParams{Reference: "r"}))
	require.NoError(t, w.p.CloseTask(ctx, client, done))

	vault, err = w.p.Vault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), vault.Escrowed, "closing a completed task must not release escrow twice")
}

func TestBonusEntitlement(t *testing.T) {
	cases := []struct {
		rep, want uint64
	}{
		{0, 0}, {49, 0}, {50, 100}, {99, 100}, {100, 200}, {120, 200},
	}
	for _, c := range cases {
		got, err := BonusEntitlement(c.rep, 50, 100)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "reputation %d", c.rep)
	}
	_, err := BonusEntitlement(^uint64(0), 1, 2)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

// ─── Dataset Access ─────────────────────────────────────────────────────────

func TestAccessCost_Boundary(t *testing.T) {
	cost, err := AccessCost(500, 500, 5_000_000)
	require.NoError(t, err)
	assert.Zero(t, cost)

	cost, err = AccessCost(501, 500, 5_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), cost)

	_, err = AccessCost(^uint64(0), 500, 5_000_000)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestDataset_AccessRules(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	other := w.party(t, 100)
	_, err := w.p.EnsureClient(ctx, other)
	require.NoError(t, err)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 10)

	_, err = w.p.DownloadDataset(ctx, client, ref, client)
	assert.ErrorIs(t, err, domain.ErrTaskNotCompleted)

	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "s3://bucket/out", DatasetSize: 501}))

	_, err = w.p.DownloadDataset(ctx, other, ref, other)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = w.p.DownloadDataset(ctx, client, ref, other)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	access, err := w.p.DownloadDataset(ctx, client, ref, client)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/out", access.Reference)
	assert.Equal(t, uint64(5_000_000), access.Cost)
}

// ─── Clients ────────────────────────────────────────────────────────────────

func TestClient_EnsureAndReport(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 0)

	first, err := w.p.EnsureClient(ctx, client)
	require.NoError(t, err)
	second, err := w.p.EnsureClient(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, w.p.RecordClientReport(ctx, client, client))
	assert.ErrorIs(t, w.p.RecordClientReport(ctx, w.admin, client), domain.ErrUnauthorized)
	assert.ErrorIs(t, w.p.RecordClientReport(ctx, w.admin, w.admin), domain.ErrAccountNotFound)
}

// ─── Ledger Properties ──────────────────────────────────────────────────────

func TestVault_Conservation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 3_000)
	endpoint := w.endpoint(t)
	provider := w.provider(t)

	refs := []TaskRef{
		w.task(t, client, endpoint, 700),
		w.task(t, client, endpoint, 800),
		w.task(t, client, endpoint, 900),
	}
	require.NoError(t, w.p.AssignTaskViaEndpoint(ctx, endpoint, refs[0], endpoint, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, refs[0], provider, CompleteParams{Reference: "r"}))
	require.NoError(t, w.p.AssignTask(ctx, provider, refs[1], provider))
	require.NoError(t, w.p.CloseTask(ctx, client, refs[2]))

	custody, err := w.p.CustodyBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), custody)
	assert.Equal(t, int64(3_000), w.tokens(t, client)+w.tokens(t, provider)+int64(custody))

	for _, asset := range []domain.Asset{domain.AssetToken, domain.AssetLamports} {
		debits, credits, err := w.db.LedgerTotals(ctx, asset)
		require.NoError(t, err)
		assert.Equal(t, debits, credits, "asset %s", asset)
	}
}

func TestReceipts_RecordRejections(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	stranger := w.party(t, 0)

	err := w.p.CloseEndpoint(ctx, stranger, stranger)
	require.Error(t, err)

	receipts, err := w.db.Receipts(ctx, stranger, 10)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "close_endpoint", receipts[0].Op)
	assert.False(t, receipts[0].Applied)
	assert.Contains(t, receipts[0].Error, "not found")
}

func TestDownloadDataset_RecordsRejection(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	stranger := w.party(t, 0)
	ref := w.task(t, client, w.endpoint(t), 100)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "s3://bucket/out"}))

	_, err := w.p.DownloadDataset(ctx, stranger, ref, client)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	receipts, err := w.db.Receipts(ctx, stranger, 10)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "download_dataset", receipts[0].Op)
	assert.False(t, receipts[0].Applied)
	assert.NotEmpty(t, receipts[0].Error)

	_, err = w.p.DownloadDataset(ctx, client, ref, client)
	require.NoError(t, err)
	receipts, err = w.db.Receipts(ctx, client, 10)
	require.NoError(t, err)
	var downloads []domain.Receipt
	for _, r := range receipts {
		if r.Op == "download_dataset" {
			downloads = append(downloads, r)
		}
	}
	require.Len(t, downloads, 1)
	assert.True(t, downloads[0].Applied)
}

func TestCompleteTask_ObservesDatasetSize(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	client := w.party(t, 100)
	provider := w.provider(t)
	ref := w.task(t, client, w.endpoint(t), 100)
	require.NoError(t, w.p.AssignTask(ctx, provider, ref, provider))

	before := datasetSamples(t)
	require.NoError(t, w.p.CompleteTask(ctx, provider, ref, provider, CompleteParams{Reference: "r", DatasetSize: 42}))
	assert.Equal(t, before+1, datasetSamples(t))
}

func datasetSamples(t *testing.T) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "scrape_dataset_size_units" {
			require.NotEmpty(t, f.GetMetric())
			return f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

// ─── Provider Listings ──────────────────────────────────────────────────────

func TestRankings_OrderAndRevalidation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	low := w.provider(t)
	busy := w.provider(t)
	top := w.provider(t)
	paused := w.provider(t)
	gone := w.provider(t)

	require.NoError(t, w.p.UpdateProviderReport(ctx, low, low, 0, 30))
	require.NoError(t, w.p.UpdateProviderReport(ctx, busy, busy, 100, 30))
	require.NoError(t, w.p.UpdateProviderReport(ctx, top, top, 0, 90))
	require.NoError(t, w.p.UpdateProviderReport(ctx, paused, paused, 0, 500))
	require.NoError(t, w.p.SetProviderActive(ctx, paused, paused, false))

	// Leave a registry entry whose provider record no longer exists.
	d, err := w.p.Addresses().Provider(gone)
	require.NoError(t, err)
	require.NoError(t, w.db.Update(ctx, func(tx domain.Txn) error { return tx.DeleteAccount(d.Address) }))
	reg, err := w.p.Registry(ctx)
	require.NoError(t, err)
	require.True(t, reg.Contains(gone))

	active, err := w.p.ActiveProviders(ctx)
	require.NoError(t, err)
	owners := make([]solana.PublicKey, 0, len(active))
	for _, l := range active {
		assert.True(t, l.Provider.Active)
		owners = append(owners, l.Provider.Owner)
	}
	assert.ElementsMatch(t, []solana.PublicKey{low, busy, top}, owners)

	ranked, err := w.p.Rankings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, top, ranked[0].Provider.Owner)
	assert.Equal(t, busy, ranked[1].Provider.Owner, "bandwidth breaks reputation ties")
	assert.Equal(t, low, ranked[2].Provider.Owner)
	for i, l := range ranked {
		assert.Equal(t, i+1, l.Rank)
	}

	ranked, err = w.p.Rankings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, top, ranked[0].Provider.Owner)
}

func TestActiveProviders_RequiresRegistry(t *testing.T) {
	w := newBareWorld(t)
	_, err := w.p.ActiveProviders(context.Background())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCloseProvider_UnreadableRegistryAborts(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	provider := w.provider(t)

	d, err := w.p.Addresses().Registry()
	require.NoError(t, err)
	require.NoError(t, w.db.Update(ctx, func(tx domain.Txn) error {
		acct, err := tx.Account(d.Address)
		if err != nil {
			return err
		}
		data := append([]byte(nil), acct.Data...)
		data[0] ^= 0xff
		return tx.WriteAccount(d.Address, data)
	}))

	err = w.p.CloseProvider(ctx, provider, provider)
	assert.ErrorIs(t, err, domain.ErrAccountKind)
	_, err = w.p.Provider(ctx, provider)
	assert.NoError(t, err, "a failed close must leave the provider in place")
}
