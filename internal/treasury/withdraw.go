package treasury

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/model"
)

// Withdraw redeems shares of the vault at index and converts the proceeds back
// to the stable coin. The entry's principal is left unchanged.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address, index int, shares *uint256.Int) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if shares == nil || shares.IsZero() {
		return errorsmod.Wrap(ErrInvalidAmount, "shares must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(opWithdraw, func() error {
		entry, err := e.entry(index)
		if err != nil {
			return err
		}
		vault, err := e.backend.Vault(entry.VaultID)
		if err != nil {
			return external(err, "resolve vault %s", entry.VaultID)
		}
		before, err := e.balanceOf(ctx, e.stable)
		if err != nil {
			return err
		}

		if entry.AssetID == e.stable {
			if err := vault.Withdraw(ctx, e.self, shares); err != nil {
				return external(err, "withdraw %s shares from vault %s", shares, entry.VaultID)
			}
		} else if err := e.unwind(ctx, entry.VaultID, entry.AssetID, vault, shares); err != nil {
			return err
		}

		after, err := e.balanceOf(ctx, e.stable)
		if err != nil {
			return err
		}
		proceeds := e.creditStable(before, after)

		e.emit(&model.Event{
			Type:      model.EventWithdrawn,
			Index:     index,
			Vault:     entry.VaultID,
			Asset:     entry.AssetID,
			Amount:    new(uint256.Int).Set(shares),
			Secondary: proceeds,
		})
		return nil
	})
}

// SweepAsset transfers amount of asset held by the engine to the owner. For
// the stable coin the limit is the tracked stable balance.
func (e *Engine) SweepAsset(ctx context.Context, caller, asset common.Address, amount *uint256.Int) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return errorsmod.Wrap(ErrInvalidAmount, "sweep amount must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(opSweep, func() error {
		var held *uint256.Int
		if asset == e.stable {
			held = e.stableBalance
		} else {
			var err error
			if held, err = e.balanceOf(ctx, asset); err != nil {
				return err
			}
		}
		if amount.Gt(held) {
			return errorsmod.Wrapf(ErrInsufficientBalance, "sweep %s of %s, holding %s", amount, asset, held)
		}

		token, err := e.backend.Token(asset)
		if err != nil {
			return external(err, "resolve token %s", asset)
		}
		if err := token.Transfer(ctx, e.self, e.owner, amount); err != nil {
			return external(err, "transfer %s of %s to owner", amount, asset)
		}
		if asset == e.stable {
			e.stableBalance = new(uint256.Int).Sub(e.stableBalance, amount)
		}

		e.emit(&model.Event{
			Type:    model.EventSwept,
			Asset:   asset,
			Account: e.owner,
			Amount:  new(uint256.Int).Set(amount),
		})
		return nil
	})
}
