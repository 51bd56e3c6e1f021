package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/chain"
)

// PPSScale is the fixed-point scale of PricePerShare.
var PPSScale = uint256.NewInt(1e18)

var ErrZeroShares = errors.New("vault: zero shares")

const year = 365 * 24 * time.Hour

// Vault is a handle to a simulated vault. Its share token is the ledger token
// at the vault address and its assets are the vault's balance of Want.
type Vault struct {
	w    *World
	addr common.Address
}

func (v *Vault) info() *vaultInfo {
	return v.w.vaults[v.addr]
}

// Want implements chain.Vault.
func (v *Vault) Want(_ context.Context) (common.Address, error) {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()
	return v.info().Want, nil
}

// Deposit implements chain.Vault.
func (v *Vault) Deposit(_ context.Context, caller common.Address, amount *uint256.Int) error {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()

	want := v.info().Want
	if err := v.w.ledger.known(want); err != nil {
		return err
	}
	pool := v.w.ledger.balanceOf(want, v.addr)
	supply := v.w.ledger.totalSupply(v.addr)
	shares := new(uint256.Int).Set(amount)
	if !supply.IsZero() && !pool.IsZero() {
		var overflow bool
		if shares, overflow = new(uint256.Int).MulDivOverflow(amount, supply, pool); overflow {
			return ErrOverflow
		}
	}
	if shares.IsZero() {
		return ErrZeroShares
	}
	return v.w.atomically(func() error {
		if err := v.w.ledger.transferFrom(want, v.addr, caller, v.addr, amount); err != nil {
			return err
		}
		return v.w.ledger.mint(v.addr, caller, shares)
	})
}

// Withdraw implements chain.Vault.
func (v *Vault) Withdraw(_ context.Context, caller common.Address, shares *uint256.Int) error {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()

	if shares.IsZero() {
		return ErrZeroShares
	}
	want := v.info().Want
	supply := v.w.ledger.totalSupply(v.addr)
	if supply.IsZero() {
		return fmt.Errorf("vault %s: no shares issued", v.addr)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(shares, v.w.ledger.balanceOf(want, v.addr), supply)
	if overflow {
		return ErrOverflow
	}
	return v.w.atomically(func() error {
		if err := v.w.ledger.burn(v.addr, caller, shares); err != nil {
			return err
		}
		if out.IsZero() {
			return nil
		}
		return v.w.ledger.transfer(want, v.addr, caller, out)
	})
}

// BalanceOf implements chain.Vault.
func (v *Vault) BalanceOf(_ context.Context, holder common.Address) (*uint256.Int, error) {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()
	return v.w.ledger.balanceOf(v.addr, holder), nil
}

// PricePerShare implements chain.Vault. An empty vault prices one share at 1e18.
func (v *Vault) PricePerShare(_ context.Context) (*uint256.Int, error) {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()
	return v.w.pricePerShare(v.addr)
}

func (w *World) pricePerShare(vault common.Address) (*uint256.Int, error) {
	supply := w.ledger.totalSupply(vault)
	if supply.IsZero() {
		return new(uint256.Int).Set(PPSScale), nil
	}
	pps, overflow := new(uint256.Int).MulDivOverflow(w.ledger.balanceOf(w.vaults[vault].Want, vault), PPSScale, supply)
	if overflow {
		return nil, ErrOverflow
	}
	return pps, nil
}

// Strategy implements chain.Vault.
func (v *Vault) Strategy(_ context.Context) (chain.Strategy, error) {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()
	s := v.info().Strategy
	return &Strategy{info: StrategyInfo{
		Router: s.Router,
		Lp0:    s.Lp0,
		Lp1:    s.Lp1,
		Route0: append([]common.Address(nil), s.Route0...),
		Route1: append([]common.Address(nil), s.Route1...),
	}}, nil
}

// Strategy is an immutable view of a vault strategy.
type Strategy struct {
	info StrategyInfo
}

func (s *Strategy) Unirouter(context.Context) (common.Address, error) { return s.info.Router, nil }
func (s *Strategy) LpToken0(context.Context) (common.Address, error)  { return s.info.Lp0, nil }
func (s *Strategy) LpToken1(context.Context) (common.Address, error)  { return s.info.Lp1, nil }

func (s *Strategy) OutputToLp0(context.Context) ([]common.Address, error) {
	return append([]common.Address(nil), s.info.Route0...), nil
}

func (s *Strategy) OutputToLp1(context.Context) ([]common.Address, error) {
	return append([]common.Address(nil), s.info.Route1...), nil
}

// SetAPR changes the simulated yield rate of a vault.
func (w *World) SetAPR(vault common.Address, aprBps uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.vaults[vault]
	if !ok {
		return fmt.Errorf("no vault at %s", vault)
	}
	v.APRBps = aprBps
	return nil
}

// Accrue grows every vault by its APR over elapsed, which raises its price
// per share. Pool-token vaults are grown with fully backed pool tokens so the
// pair stays consistent. Returns the amount of Want added per vault.
func (w *World) Accrue(elapsed time.Duration) (map[common.Address]*uint256.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	grown := make(map[common.Address]*uint256.Int)
	err := w.atomically(func() error {
		for addr, v := range w.vaults {
			if v.APRBps == 0 || w.ledger.known(v.Want) != nil {
				continue
			}
			amount, err := accrual(w.ledger.balanceOf(v.Want, addr), v.APRBps, elapsed)
			if err != nil {
				return fmt.Errorf("vault %s: %w", addr, err)
			}
			if amount.IsZero() {
				continue
			}
			if err := w.grow(v, amount); err != nil {
				return fmt.Errorf("vault %s: %w", addr, err)
			}
			grown[addr] = amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grown, nil
}

// accrual is pool * apr * elapsed / year, truncated.
func accrual(pool *uint256.Int, aprBps uint64, elapsed time.Duration) (*uint256.Int, error) {
	if elapsed <= 0 {
		return new(uint256.Int), nil
	}
	rate, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(aprBps), uint256.NewInt(uint64(elapsed)))
	if overflow {
		return nil, ErrOverflow
	}
	den := new(uint256.Int).Mul(uint256.NewInt(bpsDenominator), uint256.NewInt(uint64(year)))
	amount, overflow := new(uint256.Int).MulDivOverflow(pool, rate, den)
	if overflow {
		return nil, ErrOverflow
	}
	return amount, nil
}

func (w *World) grow(v *vaultInfo, amount *uint256.Int) error {
	p, isPair := w.pairs[v.Want]
	if !isPair {
		return w.ledger.mint(v.Want, v.Address, amount)
	}
	supply := w.ledger.totalSupply(p.Address)
	if supply.IsZero() {
		return nil
	}
	for _, t := range []common.Address{p.Token0, p.Token1} {
		backing, overflow := new(uint256.Int).MulDivOverflow(amount, w.ledger.balanceOf(t, p.Address), supply)
		if overflow {
			return ErrOverflow
		}
		if err := w.ledger.mint(t, p.Address, backing); err != nil {
			return err
		}
	}
	return w.ledger.mint(p.Address, v.Address, amount)
}
