package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VaultEntry is one registered vault and the engine's bookkeeping for it.
type VaultEntry struct {
	VaultID common.Address `json:"vault_id"`
	AssetID common.Address `json:"asset_id"`
	Weight  *uint256.Int   `json:"weight"`
	// Principal is cumulative. Withdrawals do not reduce it.
	Principal *uint256.Int `json:"principal"`
}

// Clone returns a deep copy of the entry.
func (v VaultEntry) Clone() VaultEntry {
	return VaultEntry{
		VaultID:   v.VaultID,
		AssetID:   v.AssetID,
		Weight:    cloneInt(v.Weight),
		Principal: cloneInt(v.Principal),
	}
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}
