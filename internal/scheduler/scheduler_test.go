package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VaultTreasury/internal/model"
	"VaultTreasury/internal/recorder"
	"VaultTreasury/internal/sim"
	"VaultTreasury/internal/treasury"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	self   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	usdc   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultA = common.HexToAddress("0x5000000000000000000000000000000000000001")
	vaultB = common.HexToAddress("0x5000000000000000000000000000000000000002")
)

type captureSender struct{ sent []string }

func (c *captureSender) SendWithRetry(_ context.Context, text string, _ int) error {
	c.sent = append(c.sent, text)
	return nil
}

// memRecorder keeps events and yield snapshots in memory.
type memRecorder struct {
	events []*model.Event
	yields []*recorder.YieldSnapshot
}

func (m *memRecorder) RecordEvent(evt *model.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *memRecorder) RecordYield(s *recorder.YieldSnapshot) error {
	m.yields = append(m.yields, s)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) RecentEvents(limit int) ([]*model.Event, error) {
	var out []*model.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

type fixture struct {
	sched  *Scheduler
	world  *sim.World
	sender *captureSender
	rec    *memRecorder
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	w, err := sim.Build(&sim.Genesis{
		Tokens: []sim.GenesisToken{{Address: usdc, Symbol: "USDC", Decimals: 6}},
		Vaults: []sim.GenesisVault{
			{Address: vaultA, Want: usdc, APRBps: 1000},
			{Address: vaultB, Want: usdc},
		},
		Balances: []sim.GenesisBalance{{Token: usdc, Holder: owner, Amount: uint256.NewInt(1_000_000_000)}},
	}, now)
	require.NoError(t, err)

	rec := &memRecorder{}
	eng, err := treasury.NewEngine(treasury.Config{
		Owner:      owner,
		Address:    self,
		StableCoin: usdc,
		Backend:    w,
		Recorder:   rec,
		Registry:   prometheus.NewRegistry(),
		Now:        now,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.AddVault(ctx, owner, vaultA, uint256.NewInt(3))
	require.NoError(t, err)
	_, err = eng.AddVault(ctx, owner, vaultB, uint256.NewInt(1))
	require.NoError(t, err)
	tok, err := w.Token(usdc)
	require.NoError(t, err)
	require.NoError(t, tok.Approve(ctx, owner, self, uint256.NewInt(1_000_000_000)))
	require.NoError(t, eng.Deposit(ctx, owner, uint256.NewInt(1_000_000_000)))

	sender := &captureSender{}
	s := NewScheduler(ctx, eng, w, sender, rec, owner)
	s.now = func() time.Time { return clock }
	return &fixture{sched: s, world: w, sender: sender, rec: rec, clock: &clock}
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.RegisterAll("0 0 8 * * *", "", "0 0 * * * *"))
	assert.Len(t, f.sched.Cron.Entries(), 2)

	f = newFixture(t)
	assert.Error(t, f.sched.RegisterAll("not a spec", "", "0 0 * * * *"))
}

func TestDistributeTask(t *testing.T) {
	f := newFixture(t)

	f.sched.distributeTask()

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "Distributed</b> 1000 USDC")
	assert.True(t, f.sched.Engine.StableBalance().IsZero())
	vaults := f.sched.Engine.Vaults()
	assert.Equal(t, uint256.NewInt(750_000_000), vaults[0].Principal)
	assert.Equal(t, uint256.NewInt(250_000_000), vaults[1].Principal)

	// Nothing idle: no second message.
	f.sched.distributeTask()
	assert.Len(t, f.sender.sent, 1)
}

func TestAccrueAndYield(t *testing.T) {
	f := newFixture(t)
	f.sched.distributeTask()

	*f.clock = f.clock.Add(365 * 24 * time.Hour)
	f.sched.accrueTask()
	assert.Equal(t, *f.clock, f.sched.lastAccrue)

	f.sched.RunYieldNow()
	require.Len(t, f.sender.sent, 2)
	report := f.sender.sent[1]
	assert.Contains(t, report, "#0 0x5000…0001: +10.000%")
	assert.Contains(t, report, "#1 0x5000…0002: 0.000%")

	require.Len(t, f.rec.yields, 1)
	require.Len(t, f.rec.yields[0].Yields, 2)
	assert.Equal(t, int64(10000), f.rec.yields[0].Yields[0].Yield.Int64())
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t)
	f.sched.SimStateFile = filepath.Join(t.TempDir(), "sim.json")

	assert.Contains(t, f.sched.HandleCommand("/status", nil), "Stable balance: 1000 USDC")
	assert.Contains(t, f.sched.HandleCommand("/vaults", nil), "weight 3 (75.0%)")

	assert.Contains(t, f.sched.HandleCommand("/distribute", []string{"abc"}), "usage")
	reply := f.sched.HandleCommand("/distribute", []string{"400000000"})
	assert.Contains(t, reply, "Distributed</b> 400 USDC")
	assert.Equal(t, uint256.NewInt(600_000_000), f.sched.Engine.StableBalance())

	loaded, err := sim.LoadState(f.sched.SimStateFile, nil)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint256.NewInt(300_000_000), loaded.BalanceOf(usdc, vaultA))

	assert.Contains(t, f.sched.HandleCommand("/distribute", []string{"900000000"}), "failed")

	assert.Contains(t, f.sched.HandleCommand("/accrue", []string{"8760h"}), "accrued")
	assert.Contains(t, f.sched.HandleCommand("/yield", nil), "+10.000%")

	assert.Contains(t, f.sched.HandleCommand("/withdraw", []string{"0"}), "usage")
	reply = f.sched.HandleCommand("/withdraw", []string{"1", "100000000"})
	assert.Contains(t, reply, "Stable balance: 700 USDC")

	history := f.sched.HandleCommand("/history", []string{"2"})
	assert.Contains(t, history, "vault #1: 100000000 shares redeemed")
	assert.Contains(t, f.sched.HandleCommand("/history", []string{"-1"}), "usage")

	assert.Contains(t, f.sched.HandleCommand("/unknown", nil), "/status")
}
