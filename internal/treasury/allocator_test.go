package treasury_test

import (
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VaultTreasury/internal/model"
	"VaultTreasury/internal/treasury"
)

func TestShare(t *testing.T) {
	tests := []struct {
		name                  string
		amount, weight, total uint64
		want                  uint64
	}{
		{"seventy percent", 1000, 70, 100, 700},
		{"thirty percent", 1000, 30, 100, 300},
		{"third floors", 10, 1, 3, 3},
		{"zero weight", 1000, 0, 100, 0},
		{"whole", 999, 5, 5, 999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := treasury.Share(u(tt.amount), u(tt.weight), u(tt.total))
			require.NoError(t, err)
			assert.Equal(t, u(tt.want), got)
		})
	}
}

func TestShare_ZeroTotal(t *testing.T) {
	_, err := treasury.Share(u(10), u(0), u(0))
	require.ErrorIs(t, err, treasury.ErrNoAllocation)
}

func TestShare_WideIntermediate(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	got, err := treasury.Share(max, max, max)
	require.NoError(t, err)
	assert.Equal(t, max, got)

	half := new(uint256.Int).Rsh(max, 1)
	got, err = treasury.Share(max, u(1), u(2))
	require.NoError(t, err)
	assert.Equal(t, half, got)
}

func TestShare_FloorBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(8)
		weights := make([]*uint256.Int, n)
		total := new(uint256.Int)
		for i := range weights {
			weights[i] = u(uint64(rng.Intn(1000)))
			total.Add(total, weights[i])
		}
		if total.IsZero() {
			continue
		}
		amount := u(rng.Uint64() >> 1)

		sum := new(uint256.Int)
		for _, w := range weights {
			share, err := treasury.Share(amount, w, total)
			require.NoError(t, err)
			sum.Add(sum, share)
		}
		require.False(t, sum.Gt(amount), "round %d: shares %s exceed %s", round, sum, amount)
		deficit := new(uint256.Int).Sub(amount, sum)
		require.True(t, deficit.Lt(u(uint64(n))), "round %d: deficit %s with %d vaults", round, deficit, n)
	}
}

func TestDistribute_SeventyThirty(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 70)
	f.addVault(vaultB, 30)
	f.deposit(u(1000))

	require.NoError(t, f.engine.Distribute(f.ctx, owner, u(1000)))

	vaults := f.engine.Vaults()
	assert.Equal(t, u(700), vaults[0].Principal)
	assert.Equal(t, u(300), vaults[1].Principal)
	assert.True(t, f.engine.StableBalance().IsZero())
	assert.Equal(t, u(700), f.world.BalanceOf(usdc, vaultA))
	assert.Equal(t, u(300), f.world.BalanceOf(usdc, vaultB))
	assert.Equal(t, u(700), f.world.BalanceOf(vaultA, self))
	assert.True(t, f.world.BalanceOf(usdc, self).IsZero())
}

func TestDistribute_RemainderStays(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 1)
	f.addVault(vaultB, 1)
	f.addVault(vaultC, 1)
	f.deposit(u(10))
	f.events.events = nil

	require.NoError(t, f.engine.Distribute(f.ctx, owner, u(10)))

	for _, v := range f.engine.Vaults() {
		assert.Equal(t, u(3), v.Principal)
	}
	assert.Equal(t, u(1), f.engine.StableBalance())
	assert.Equal(t, u(1), f.world.BalanceOf(usdc, self))

	types := f.events.types()
	require.Len(t, types, 4)
	assert.Equal(t, model.EventDistributed, types[3])
	assert.Equal(t, u(1), f.events.events[3].Secondary)
	opID := f.events.events[0].OpID
	for _, e := range f.events.events {
		assert.Equal(t, opID, e.OpID)
	}
}

func TestDistribute_SkipsZeroWeight(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 0)
	f.addVault(vaultB, 5)
	f.deposit(u(500))

	require.NoError(t, f.engine.Distribute(f.ctx, owner, u(500)))

	vaults := f.engine.Vaults()
	assert.True(t, vaults[0].Principal.IsZero())
	assert.True(t, f.world.BalanceOf(vaultA, self).IsZero())
	assert.Equal(t, u(500), vaults[1].Principal)
}

func TestDistribute_SkipsDustPoolShare(t *testing.T) {
	f := newFixture(t)
	f.addVault(vaultA, 999)
	f.addVault(lpVault, 1)
	f.deposit(u(1000))
	f.events.events = nil

	require.NoError(t, f.engine.Distribute(f.ctx, owner, u(1000)))

	vaults := f.engine.Vaults()
	assert.Equal(t, u(999), vaults[0].Principal)
	assert.True(t, vaults[1].Principal.IsZero())
	assert.True(t, f.world.BalanceOf(lpVault, self).IsZero())
	assert.Equal(t, u(1), f.engine.StableBalance())
	assert.Equal(t, u(1), f.world.BalanceOf(usdc, self))

	assert.Equal(t, []model.EventType{model.EventVaultFunded, model.EventDistributed}, f.events.types())
	assert.Equal(t, u(1), f.events.events[1].Secondary)
}

func TestDistribute_Rejected(t *testing.T) {
	t.Run("zero amount", func(t *testing.T) {
		f := newFixture(t)
		f.addVault(vaultA, 1)
		f.deposit(u(100))
		err := f.engine.Distribute(f.ctx, owner, new(uint256.Int))
		require.ErrorIs(t, err, treasury.ErrInvalidAmount)
		assert.Equal(t, u(100), f.engine.StableBalance())
	})
	t.Run("empty registry", func(t *testing.T) {
		f := newFixture(t)
		f.deposit(u(100))
		err := f.engine.Distribute(f.ctx, owner, u(100))
		require.ErrorIs(t, err, treasury.ErrNoAllocation)
	})
	t.Run("all weights zero", func(t *testing.T) {
		f := newFixture(t)
		f.addVault(vaultA, 0)
		f.deposit(u(100))
		err := f.engine.Distribute(f.ctx, owner, u(100))
		require.ErrorIs(t, err, treasury.ErrNoAllocation)
		assert.Equal(t, u(100), f.engine.StableBalance())
		assert.True(t, f.engine.Vaults()[0].Principal.IsZero())
	})
	t.Run("more than held", func(t *testing.T) {
		f := newFixture(t)
		f.addVault(vaultA, 1)
		f.deposit(u(100))
		err := f.engine.Distribute(f.ctx, owner, u(101))
		require.ErrorIs(t, err, treasury.ErrInsufficientBalance)
		assert.Equal(t, u(100), f.engine.StableBalance())
	})
}

func TestDistribute_RollsBackOnVaultFailure(t *testing.T) {
	w, wethDai := newWorld(t)
	backend := &faultyBackend{Backend: w, failDeposit: vaultB}
	f := newFixtureWith(t, w, backend, wethDai, "")
	f.addVault(vaultA, 50)
	f.addVault(vaultB, 50)
	f.deposit(u(1000))
	f.events.events = nil

	err := f.engine.Distribute(f.ctx, owner, u(1000))
	require.ErrorIs(t, err, treasury.ErrExternalCallFailure)
	require.ErrorIs(t, err, errVaultPaused)

	assert.Equal(t, u(1000), f.engine.StableBalance())
	for _, v := range f.engine.Vaults() {
		assert.True(t, v.Principal.IsZero())
	}
	// vaultA was funded before vaultB failed; the ledger must not show it.
	assert.True(t, f.world.BalanceOf(usdc, vaultA).IsZero())
	assert.True(t, f.world.BalanceOf(vaultA, self).IsZero())
	assert.Equal(t, u(1000), f.world.BalanceOf(usdc, self))
	assert.Empty(t, f.events.events)
}
