package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	stableVault = common.HexToAddress("0x5000000000000000000000000000000000000001")
	poolVault   = common.HexToAddress("0x6000000000000000000000000000000000000001")
)

func depositInto(t *testing.T, w *World, vault, want common.Address, holder common.Address, amount uint64) {
	t.Helper()
	ctx := context.Background()
	h, err := w.Token(want)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Approve(ctx, holder, vault, n(amount)); err != nil {
		t.Fatal(err)
	}
	v, _ := w.Vault(vault)
	if err := v.Deposit(ctx, holder, n(amount)); err != nil {
		t.Fatal(err)
	}
}

func TestVaultSharesAndPricePerShare(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()
	if err := w.AddVault(stableVault, tokenA, StrategyInfo{}, 1000); err != nil {
		t.Fatal(err)
	}
	v, _ := w.Vault(stableVault)

	pps, _ := v.PricePerShare(ctx)
	if !pps.Eq(PPSScale) {
		t.Errorf("expected empty vault pps 1e18, got %s", pps)
	}

	_ = w.Mint(tokenA, bob, n(2000))
	depositInto(t, w, stableVault, tokenA, bob, 1000)
	if got, _ := v.BalanceOf(ctx, bob); !got.Eq(n(1000)) {
		t.Errorf("expected 1000 shares, got %s", got)
	}

	// A year at 10% grows the pool to 1100.
	grown, err := w.Accrue(year)
	if err != nil {
		t.Fatal(err)
	}
	if !grown[stableVault].Eq(n(100)) {
		t.Errorf("expected 100 accrued, got %v", grown[stableVault])
	}
	pps, _ = v.PricePerShare(ctx)
	if !pps.Eq(n(1_100_000_000_000_000_000)) {
		t.Errorf("expected pps 1.1e18, got %s", pps)
	}

	// 1100 more buys 1000 shares at the new price.
	depositInto(t, w, stableVault, tokenA, bob, 1000)
	if got, _ := v.BalanceOf(ctx, bob); !got.Eq(n(1909)) {
		t.Errorf("expected 1909 shares, got %s", got)
	}

	if err := v.Withdraw(ctx, bob, n(1909)); err != nil {
		t.Fatal(err)
	}
	if got := w.BalanceOf(tokenA, bob); !got.Eq(n(2100)) {
		t.Errorf("expected 2100 A back, got %s", got)
	}
	if err := v.Withdraw(ctx, bob, n(1)); err == nil {
		t.Error("expected withdraw from empty vault to fail")
	}
}

func TestVaultStrategy(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()
	pairAddr, _ := w.PairFor(tokenA, tokenB)
	route := []common.Address{tokenC, tokenB}
	if err := w.AddVault(poolVault, pairAddr, StrategyInfo{Route1: route}, 0); err != nil {
		t.Fatal(err)
	}
	v, _ := w.Vault(poolVault)
	s, err := v.Strategy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := s.Unirouter(ctx)
	lp0, _ := s.LpToken0(ctx)
	lp1, _ := s.LpToken1(ctx)
	if r != testRtr || lp0 != tokenA || lp1 != tokenB {
		t.Errorf("unexpected strategy %s %s %s", r, lp0, lp1)
	}
	got, _ := s.OutputToLp1(ctx)
	got[0] = common.Address{}
	again, _ := s.OutputToLp1(ctx)
	if again[0] != tokenC {
		t.Error("route must be returned as a copy")
	}
	meta, _ := w.TokenMeta(poolVault)
	if meta.Symbol != "mooA-B-LP" {
		t.Errorf("unexpected share symbol %q", meta.Symbol)
	}
}

func TestAccruePoolVaultKeepsPairBacked(t *testing.T) {
	w := newTestWorld(t)
	pairAddr, _ := w.PairFor(tokenA, tokenB)
	if err := w.AddVault(poolVault, pairAddr, StrategyInfo{}, 5000); err != nil {
		t.Fatal(err)
	}
	depositInto(t, w, poolVault, pairAddr, alice, 100_000)

	if _, err := w.Accrue(year); err != nil {
		t.Fatal(err)
	}
	// 50% of 100,000 pool tokens, each backed by one A and one B.
	if got := w.BalanceOf(pairAddr, poolVault); !got.Eq(n(150_000)) {
		t.Errorf("expected 150000 pool tokens in the vault, got %s", got)
	}
	if got := w.TotalSupply(pairAddr); !got.Eq(n(1_050_000)) {
		t.Errorf("expected pool supply 1050000, got %s", got)
	}
	if got := w.BalanceOf(tokenA, pairAddr); !got.Eq(n(1_050_000)) {
		t.Errorf("expected reserve A 1050000, got %s", got)
	}
}

func TestVaultDepositRejectsZeroShares(t *testing.T) {
	w := newTestWorld(t)
	if err := w.AddVault(stableVault, tokenA, StrategyInfo{}, 0); err != nil {
		t.Fatal(err)
	}
	v, _ := w.Vault(stableVault)
	if err := v.Deposit(context.Background(), bob, n(0)); !errors.Is(err, ErrZeroShares) {
		t.Errorf("expected ErrZeroShares, got %v", err)
	}
	if _, err := w.Accrue(-time.Hour); err != nil {
		t.Errorf("negative elapsed should be a no-op, got %v", err)
	}
}
