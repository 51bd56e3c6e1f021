package recorder

import (
	"time"

	"github.com/holiman/uint256"

	"VaultTreasury/internal/model"
)

// YieldSnapshot is one yield report across the registry.
type YieldSnapshot struct {
	At            time.Time
	StableBalance *uint256.Int
	TotalWeight   *uint256.Int
	Yields        []model.VaultYield
}

// Recorder persists treasury history for analysis.
type Recorder interface {
	RecordEvent(evt *model.Event) error
	RecordYield(snap *YieldSnapshot) error
	// RecentEvents returns up to limit events, newest first.
	RecentEvents(limit int) ([]*model.Event, error)
	Close() error
}
