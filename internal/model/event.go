package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventType names a committed state change.
type EventType string

const (
	EventVaultAdded        EventType = "VAULT_ADDED"
	EventAllocationUpdated EventType = "ALLOCATION_UPDATED"
	EventDepositReceived   EventType = "DEPOSIT_RECEIVED"
	EventVaultFunded       EventType = "VAULT_FUNDED"
	EventDistributed       EventType = "DISTRIBUTED"
	EventWithdrawn         EventType = "WITHDRAWN"
	EventSwept             EventType = "SWEPT"
)

// Event is emitted once the operation that produced it has committed.
// Fields that do not apply to a type are left zero.
type Event struct {
	OpID      string
	Type      EventType
	Index     int
	Vault     common.Address
	Asset     common.Address
	Account   common.Address
	Amount    *uint256.Int
	Secondary *uint256.Int
	Weight    *uint256.Int
	OldWeight *uint256.Int
	At        time.Time
}
