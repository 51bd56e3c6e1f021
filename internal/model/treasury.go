package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TreasuryState is the persisted form of the engine's own bookkeeping.
type TreasuryState struct {
	Owner         common.Address `json:"owner"`
	Address       common.Address `json:"address"`
	StableCoin    common.Address `json:"stable_coin"`
	Vaults        []VaultEntry   `json:"vaults"`
	TotalWeight   *uint256.Int   `json:"total_weight"`
	StableBalance *uint256.Int   `json:"stable_balance"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// VaultYield is the yield of one vault at a point in time.
type VaultYield struct {
	Index     int            `json:"index"`
	VaultID   common.Address `json:"vault_id"`
	Principal *uint256.Int   `json:"principal"`
	Value     *uint256.Int   `json:"value"`
	// Yield is in thousandths of a percent: 100000 means +100%.
	Yield *big.Int `json:"yield"`
}
