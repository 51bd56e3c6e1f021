package treasury

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/model"
)

const (
	opAddVault         = "add_vault"
	opUpdateAllocation = "update_allocation"
	opDeposit          = "deposit"
	opDistribute       = "distribute"
	opWithdraw         = "withdraw"
	opSweep            = "sweep"
)

// AddVault registers vaultID with weight and returns its index. The vault's
// required asset is read from the vault and must be non-zero.
func (e *Engine) AddVault(ctx context.Context, caller, vaultID common.Address, weight *uint256.Int) (int, error) {
	if err := e.onlyOwner(caller); err != nil {
		return 0, err
	}
	if weight == nil {
		weight = new(uint256.Int)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var index int
	err := e.atomic(opAddVault, func() error {
		vault, err := e.backend.Vault(vaultID)
		if err != nil {
			return errorsmod.Wrapf(ErrInvalidVaultReference, "resolve vault %s: %v", vaultID, err)
		}
		asset, err := vault.Want(ctx)
		if err != nil {
			return errorsmod.Wrapf(ErrInvalidVaultReference, "vault %s want(): %v", vaultID, err)
		}
		if asset == (common.Address{}) {
			return errorsmod.Wrapf(ErrInvalidVaultReference, "vault %s requires the zero asset", vaultID)
		}

		total, overflow := new(uint256.Int).AddOverflow(e.totalWeight, weight)
		if overflow {
			return errorsmod.Wrap(ErrInvalidAmount, "total weight overflows")
		}
		index = len(e.vaults)
		e.vaults = append(e.vaults, model.VaultEntry{
			VaultID:   vaultID,
			AssetID:   asset,
			Weight:    new(uint256.Int).Set(weight),
			Principal: new(uint256.Int),
		})
		e.totalWeight = total

		e.emit(&model.Event{
			Type:   model.EventVaultAdded,
			Index:  index,
			Vault:  vaultID,
			Asset:  asset,
			Weight: new(uint256.Int).Set(weight),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateAllocation sets the weight of the entry at index. totalWeight moves by
// the delta only.
func (e *Engine) UpdateAllocation(_ context.Context, caller common.Address, index int, weight *uint256.Int) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if weight == nil {
		weight = new(uint256.Int)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(opUpdateAllocation, func() error {
		entry, err := e.entry(index)
		if err != nil {
			return err
		}
		old := entry.Weight
		total := new(uint256.Int).Sub(e.totalWeight, old)
		if _, overflow := total.AddOverflow(total, weight); overflow {
			return errorsmod.Wrap(ErrInvalidAmount, "total weight overflows")
		}
		entry.Weight = new(uint256.Int).Set(weight)
		e.totalWeight = total

		e.emit(&model.Event{
			Type:      model.EventAllocationUpdated,
			Index:     index,
			Vault:     entry.VaultID,
			OldWeight: new(uint256.Int).Set(old),
			Weight:    new(uint256.Int).Set(weight),
		})
		return nil
	})
}
