package treasury_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VaultTreasury/internal/chain"
	"VaultTreasury/internal/model"
	"VaultTreasury/internal/sim"
	"VaultTreasury/internal/treasury"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	self     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	seeder   = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	usdc     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	weth     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	dai      = common.HexToAddress("0x3000000000000000000000000000000000000003")
	routerID = common.HexToAddress("0x4000000000000000000000000000000000000004")

	vaultA    = common.HexToAddress("0x5000000000000000000000000000000000000001")
	vaultB    = common.HexToAddress("0x5000000000000000000000000000000000000002")
	vaultC    = common.HexToAddress("0x5000000000000000000000000000000000000003")
	lpVault   = common.HexToAddress("0x6000000000000000000000000000000000000001")
	nullVault = common.HexToAddress("0x7000000000000000000000000000000000000001")
	unknown   = common.HexToAddress("0x8000000000000000000000000000000000000001")
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func usdcUnits(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e6))
}

type memRecorder struct {
	events []*model.Event
}

func (r *memRecorder) RecordEvent(evt *model.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) types() []model.EventType {
	var out []model.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	world   *sim.World
	engine  *treasury.Engine
	events  *memRecorder
	wethDai common.Address
}

func newWorld(t *testing.T) (*sim.World, common.Address) {
	t.Helper()
	w := sim.NewWorld(func() time.Time { return t0 })
	require.NoError(t, w.AddToken(usdc, "USDC", 6))
	require.NoError(t, w.AddToken(weth, "WETH", 18))
	require.NoError(t, w.AddToken(dai, "DAI", 18))
	require.NoError(t, w.AddRouter(routerID, 30))

	seedPair(t, w, usdc, weth, usdcUnits(2_000_000), ether(1000))
	seedPair(t, w, usdc, dai, usdcUnits(1_000_000), ether(1_000_000))
	wethDai := seedPair(t, w, weth, dai, ether(1000), ether(2_000_000))

	for _, v := range []common.Address{vaultA, vaultB, vaultC} {
		require.NoError(t, w.AddVault(v, usdc, sim.StrategyInfo{}, 0))
	}
	require.NoError(t, w.AddVault(lpVault, wethDai, sim.StrategyInfo{
		Router: routerID,
		Lp0:    weth,
		Lp1:    dai,
		Route0: []common.Address{usdc, weth},
		Route1: []common.Address{usdc, dai},
	}, 0))
	require.NoError(t, w.AddVault(nullVault, common.Address{}, sim.StrategyInfo{}, 0))
	return w, wethDai
}

func seedPair(t *testing.T, w *sim.World, a, b common.Address, amountA, amountB *uint256.Int) common.Address {
	t.Helper()
	ctx := context.Background()
	pairAddr, err := w.CreatePair(routerID, a, b)
	require.NoError(t, err)
	require.NoError(t, w.Mint(a, seeder, amountA))
	require.NoError(t, w.Mint(b, seeder, amountB))
	for token, amount := range map[common.Address]*uint256.Int{a: amountA, b: amountB} {
		tok, err := w.Token(token)
		require.NoError(t, err)
		require.NoError(t, tok.Approve(ctx, seeder, routerID, amount))
	}
	r, err := w.Router(routerID)
	require.NoError(t, err)
	zero := new(uint256.Int)
	_, _, _, err = r.AddLiquidity(ctx, seeder, a, b, amountA, amountB, zero, zero, seeder, uint64(t0.Add(time.Hour).Unix()))
	require.NoError(t, err)
	return pairAddr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, wethDai := newWorld(t)
	return newFixtureWith(t, w, w, wethDai, "")
}

func newFixtureWith(t *testing.T, w *sim.World, backend chain.Backend, wethDai common.Address, stateFile string) *fixture {
	t.Helper()
	rec := &memRecorder{}
	eng, err := treasury.NewEngine(treasury.Config{
		Owner:      owner,
		Address:    self,
		StableCoin: usdc,
		Backend:    backend,
		Recorder:   rec,
		Registry:   prometheus.NewRegistry(),
		StateFile:  stateFile,
		Now:        func() time.Time { return t0 },
	})
	require.NoError(t, err)
	return &fixture{t: t, ctx: context.Background(), world: w, engine: eng, events: rec, wethDai: wethDai}
}

func (f *fixture) addVault(vault common.Address, weight uint64) int {
	f.t.Helper()
	index, err := f.engine.AddVault(f.ctx, owner, vault, u(weight))
	require.NoError(f.t, err)
	return index
}

func (f *fixture) deposit(amount *uint256.Int) {
	f.t.Helper()
	require.NoError(f.t, f.world.Mint(usdc, user, amount))
	tok, err := f.world.Token(usdc)
	require.NoError(f.t, err)
	require.NoError(f.t, tok.Approve(f.ctx, user, self, amount))
	require.NoError(f.t, f.engine.Deposit(f.ctx, user, amount))
}

func TestNewEngine_RequiresConfig(t *testing.T) {
	w, _ := newWorld(t)
	_, err := treasury.NewEngine(treasury.Config{Address: self, StableCoin: usdc, Backend: w})
	require.Error(t, err)
	_, err = treasury.NewEngine(treasury.Config{Owner: owner, Address: self, StableCoin: usdc})
	require.Error(t, err)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)

	f.deposit(u(1000))

	assert.Equal(t, u(1000), f.engine.StableBalance())
	assert.Equal(t, u(1000), f.world.BalanceOf(usdc, self))
	require.Equal(t, []model.EventType{model.EventDepositReceived}, f.events.types())
	assert.Equal(t, user, f.events.events[0].Account)
	assert.NotEmpty(t, f.events.events[0].OpID)
}

func TestDeposit_RejectsZeroAndUnapproved(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Deposit(f.ctx, user, new(uint256.Int))
	require.ErrorIs(t, err, treasury.ErrInvalidAmount)

	require.NoError(t, f.world.Mint(usdc, user, u(50)))
	err = f.engine.Deposit(f.ctx, user, u(50))
	require.ErrorIs(t, err, treasury.ErrExternalCallFailure)
	require.ErrorIs(t, err, sim.ErrInsufficientAllowance)
	assert.True(t, f.engine.StableBalance().IsZero())
	assert.Empty(t, f.events.events)
}

func TestAdministrativeCalls_RequireOwner(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 1)
	f.deposit(u(100))

	_, err := f.engine.AddVault(f.ctx, user, vaultB, u(1))
	require.ErrorIs(t, err, treasury.ErrUnauthorized)
	require.ErrorIs(t, f.engine.UpdateAllocation(f.ctx, user, 0, u(2)), treasury.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Distribute(f.ctx, user, u(100)), treasury.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Withdraw(f.ctx, user, 0, u(1)), treasury.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SweepAsset(f.ctx, user, usdc, u(1)), treasury.ErrUnauthorized)

	assert.Equal(t, 1, f.engine.Len())
	assert.Equal(t, u(100), f.engine.StableBalance())
}

func TestSweepAsset(t *testing.T) {
	f := newFixture(t)
	f.deposit(u(100))

	err := f.engine.SweepAsset(f.ctx, owner, usdc, u(101))
	require.ErrorIs(t, err, treasury.ErrInsufficientBalance)

	require.NoError(t, f.engine.SweepAsset(f.ctx, owner, usdc, u(40)))
	assert.Equal(t, u(60), f.engine.StableBalance())
	assert.Equal(t, u(40), f.world.BalanceOf(usdc, owner))

	// Assets outside the stable balance are limited by what the engine holds.
	require.NoError(t, f.world.Mint(dai, self, u(7)))
	require.ErrorIs(t, f.engine.SweepAsset(f.ctx, owner, dai, u(8)), treasury.ErrInsufficientBalance)
	require.NoError(t, f.engine.SweepAsset(f.ctx, owner, dai, u(7)))
	assert.Equal(t, u(7), f.world.BalanceOf(dai, owner))
	assert.Equal(t, u(60), f.engine.StableBalance())
}

func TestEvents_OnlyPublishedOnCommit(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 1)
	f.events.events = nil

	require.Error(t, f.engine.Distribute(f.ctx, owner, u(10)))
	require.Error(t, f.engine.UpdateAllocation(f.ctx, owner, 5, u(1)))
	assert.Empty(t, f.events.events)

	require.NoError(t, f.engine.UpdateAllocation(f.ctx, owner, 0, u(3)))
	require.Equal(t, []model.EventType{model.EventAllocationUpdated}, f.events.types())
	assert.Equal(t, u(1), f.events.events[0].OldWeight)
	assert.Equal(t, u(3), f.events.events[0].Weight)
}

func TestStateFile_RestoresRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treasury.json")
	w, wethDai := newWorld(t)
	f := newFixtureWith(t, w, w, wethDai, path)
	f.addVault(vaultA, 70)
	f.addVault(vaultB, 30)
	f.deposit(u(1000))
	require.NoError(t, f.engine.Distribute(f.ctx, owner, u(1000)))

	restored, err := treasury.NewEngine(treasury.Config{
		Owner:      owner,
		Address:    self,
		StableCoin: usdc,
		Backend:    w,
		StateFile:  path,
	})
	require.NoError(t, err)
	assert.Equal(t, f.engine.Vaults(), restored.Vaults())
	assert.Equal(t, u(100), restored.TotalWeight())
	assert.True(t, restored.StableBalance().IsZero())

	_, err = treasury.NewEngine(treasury.Config{
		Owner:      owner,
		Address:    self,
		StableCoin: dai,
		Backend:    w,
		StateFile:  path,
	})
	require.Error(t, err)
}

// faultyBackend makes Deposit fail on one vault and can misprice another.
type faultyBackend struct {
	chain.Backend
	failDeposit common.Address
	lossy       common.Address
}

var errVaultPaused = errors.New("vault paused")

func (b *faultyBackend) Vault(addr common.Address) (chain.Vault, error) {
	v, err := b.Backend.Vault(addr)
	if err != nil {
		return nil, err
	}
	switch addr {
	case b.failDeposit:
		return &pausedVault{Vault: v}, nil
	case b.lossy:
		return &lossyVault{Vault: v}, nil
	}
	return v, nil
}

type pausedVault struct{ chain.Vault }

func (v *pausedVault) Deposit(context.Context, common.Address, *uint256.Int) error {
	return errVaultPaused
}

type lossyVault struct{ chain.Vault }

func (v *lossyVault) PricePerShare(context.Context) (*uint256.Int, error) {
	return uint256.NewInt(9e17), nil
}
