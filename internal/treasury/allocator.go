package treasury

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/model"
)

// Share is floor(amount * weight / totalWeight) computed in 512-bit
// intermediate precision.
func Share(amount, weight, totalWeight *uint256.Int) (*uint256.Int, error) {
	if totalWeight.IsZero() {
		return nil, errorsmod.Wrap(ErrNoAllocation, "total weight is zero")
	}
	share, overflow := new(uint256.Int).MulDivOverflow(amount, weight, totalWeight)
	if overflow {
		return nil, errorsmod.Wrapf(ErrInvalidAmount, "share of %s overflows", amount)
	}
	return share, nil
}

// Deposit pulls amount of the stable coin from from, which must have approved
// the engine. Anyone may deposit.
func (e *Engine) Deposit(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errorsmod.Wrap(ErrInvalidAmount, "deposit amount must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(opDeposit, func() error {
		token, err := e.backend.Token(e.stable)
		if err != nil {
			return external(err, "resolve stable coin %s", e.stable)
		}
		if err := token.TransferFrom(ctx, e.self, from, e.self, amount); err != nil {
			return external(err, "pull deposit from %s", from)
		}
		balance, overflow := new(uint256.Int).AddOverflow(e.stableBalance, amount)
		if overflow {
			return errorsmod.Wrap(ErrInvalidAmount, "stable balance overflows")
		}
		e.stableBalance = balance

		e.emit(&model.Event{
			Type:    model.EventDepositReceived,
			Account: from,
			Asset:   e.stable,
			Amount:  new(uint256.Int).Set(amount),
		})
		return nil
	})
}

// minPoolShare is the smallest share a pool-token vault is funded with.
const minPoolShare = 2

// Distribute splits amount of the held stable coin across every vault with a
// positive weight, in registry order. Shares are floored; the remainder stays
// in the stable balance, along with any share too small to fund its vault.
func (e *Engine) Distribute(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return errorsmod.Wrap(ErrInvalidAmount, "distribution amount must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.totalWeight.IsZero() {
		return errorsmod.Wrap(ErrNoAllocation, "total weight is zero")
	}
	if amount.Gt(e.stableBalance) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "distribute %s, holding %s", amount, e.stableBalance)
	}

	return e.atomic(opDistribute, func() error {
		allocated := new(uint256.Int)
		for i := range e.vaults {
			weight := e.vaults[i].Weight
			if weight.IsZero() {
				continue
			}
			share, err := Share(amount, weight, e.totalWeight)
			if err != nil {
				return err
			}
			// A pool vault needs a unit for each side of its pair.
			if share.IsZero() || (e.vaults[i].AssetID != e.stable && share.LtUint64(minPoolShare)) {
				continue
			}
			if err := e.fund(ctx, i, share); err != nil {
				return err
			}
			allocated.Add(allocated, share)
		}

		e.emit(&model.Event{
			Type:      model.EventDistributed,
			Asset:     e.stable,
			Amount:    new(uint256.Int).Set(amount),
			Secondary: new(uint256.Int).Sub(amount, allocated),
		})
		return nil
	})
}

// fund moves share of the stable coin into the vault at index, converting it
// to the vault's asset first when needed.
func (e *Engine) fund(ctx context.Context, index int, share *uint256.Int) error {
	entry := &e.vaults[index]
	vault, err := e.backend.Vault(entry.VaultID)
	if err != nil {
		return external(err, "resolve vault %s", entry.VaultID)
	}
	stableBefore, err := e.balanceOf(ctx, e.stable)
	if err != nil {
		return err
	}

	deposit := new(uint256.Int).Set(share)
	if entry.AssetID != e.stable {
		if err := e.provision(ctx, entry.VaultID, vault, share); err != nil {
			return err
		}
		// Swaps and the liquidity add round, so deposit what actually arrived.
		if deposit, err = e.balanceOf(ctx, entry.AssetID); err != nil {
			return err
		}
	}

	if err := e.approve(ctx, entry.AssetID, entry.VaultID, deposit); err != nil {
		return err
	}
	if err := vault.Deposit(ctx, e.self, deposit); err != nil {
		return external(err, "deposit %s into vault %s", deposit, entry.VaultID)
	}

	stableAfter, err := e.balanceOf(ctx, e.stable)
	if err != nil {
		return err
	}
	if err := e.debitStable(stableBefore, stableAfter); err != nil {
		return err
	}
	principal, overflow := new(uint256.Int).AddOverflow(entry.Principal, deposit)
	if overflow {
		return errorsmod.Wrapf(ErrInvalidAmount, "principal of vault %d overflows", index)
	}
	entry.Principal = principal

	e.emit(&model.Event{
		Type:      model.EventVaultFunded,
		Index:     index,
		Vault:     entry.VaultID,
		Asset:     entry.AssetID,
		Amount:    new(uint256.Int).Set(share),
		Secondary: new(uint256.Int).Set(deposit),
	})
	return nil
}

// debitStable charges the stable balance with what left the engine's account
// between two observations.
func (e *Engine) debitStable(before, after *uint256.Int) error {
	if !after.Lt(before) {
		return nil
	}
	spent := new(uint256.Int).Sub(before, after)
	if spent.Gt(e.stableBalance) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "spent %s, holding %s", spent, e.stableBalance)
	}
	e.stableBalance = new(uint256.Int).Sub(e.stableBalance, spent)
	return nil
}

// creditStable adds what arrived in the engine's account between two observations.
func (e *Engine) creditStable(before, after *uint256.Int) *uint256.Int {
	if !after.Gt(before) {
		return new(uint256.Int)
	}
	received := new(uint256.Int).Sub(after, before)
	e.stableBalance = new(uint256.Int).Add(e.stableBalance, received)
	return received
}
