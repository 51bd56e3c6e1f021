// Package treasury allocates a stable-coin treasury across weighted vaults.
//
// The Engine owns the vault registry and the stable balance. Every public
// operation is serialized and all-or-nothing: the engine snapshots its own
// state and the backend journal before running, and restores both if any
// step fails. Events are published only after an operation commits.
package treasury

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"VaultTreasury/internal/chain"
	"VaultTreasury/internal/model"
)

const defaultDeadlineWindow = 20 * time.Minute

// EventRecorder receives committed events.
type EventRecorder interface {
	RecordEvent(evt *model.Event) error
}

// Config holds the configuration for the engine.
type Config struct {
	// Owner is the only identity allowed to call administrative operations.
	Owner common.Address
	// Address is the engine's own account on the backend.
	Address    common.Address
	StableCoin common.Address
	Backend    chain.Backend

	Recorder EventRecorder
	Registry prometheus.Registerer
	// StateFile, when set, is loaded on start and rewritten after every commit.
	StateFile string
	// DeadlineWindow is added to Now for router deadlines.
	DeadlineWindow time.Duration
	Now            func() time.Time
}

func (c *Config) validate() error {
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.StableCoin == (common.Address{}) {
		return errors.New("config: StableCoin is required")
	}
	if c.Backend == nil {
		return errors.New("config: Backend is required")
	}
	return nil
}

// Engine is the treasury. All methods are safe for concurrent use; operations
// run one at a time.
type Engine struct {
	mu sync.Mutex

	owner          common.Address
	self           common.Address
	stable         common.Address
	backend        chain.Backend
	recorder       EventRecorder
	metrics        *Metrics
	stateFile      string
	deadlineWindow time.Duration
	now            func() time.Time

	vaults        []model.VaultEntry
	totalWeight   *uint256.Int
	stableBalance *uint256.Int
	updatedAt     time.Time

	opID    string
	pending []*model.Event
}

// NewEngine creates an Engine, restoring its bookkeeping from cfg.StateFile if
// the file exists.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		owner:          cfg.Owner,
		self:           cfg.Address,
		stable:         cfg.StableCoin,
		backend:        cfg.Backend,
		recorder:       cfg.Recorder,
		stateFile:      cfg.StateFile,
		deadlineWindow: cfg.DeadlineWindow,
		now:            cfg.Now,
		totalWeight:    new(uint256.Int),
		stableBalance:  new(uint256.Int),
	}
	if e.deadlineWindow <= 0 {
		e.deadlineWindow = defaultDeadlineWindow
	}
	if e.now == nil {
		e.now = time.Now
	}
	if cfg.Registry != nil {
		e.metrics = NewMetrics(cfg.Registry)
	}

	if e.stateFile != "" {
		state, err := LoadState(e.stateFile)
		if err != nil {
			return nil, fmt.Errorf("load treasury state: %w", err)
		}
		if state != nil {
			if err := e.restoreState(state); err != nil {
				return nil, err
			}
		}
	}
	e.metrics.setState(len(e.vaults), e.totalWeight, e.stableBalance)
	return e, nil
}

func (e *Engine) restoreState(state *model.TreasuryState) error {
	if state.StableCoin != e.stable || state.Address != e.self {
		return fmt.Errorf("treasury state belongs to %s/%s, configured %s/%s",
			state.Address, state.StableCoin, e.self, e.stable)
	}
	sum := new(uint256.Int)
	vaults := make([]model.VaultEntry, 0, len(state.Vaults))
	for _, v := range state.Vaults {
		v = v.Clone()
		sum.Add(sum, v.Weight)
		vaults = append(vaults, v)
	}
	if state.TotalWeight == nil || !sum.Eq(state.TotalWeight) {
		return fmt.Errorf("treasury state: total weight %v does not match entries (%s)", state.TotalWeight, sum)
	}
	e.vaults = vaults
	e.totalWeight = sum
	if state.StableBalance != nil {
		e.stableBalance = new(uint256.Int).Set(state.StableBalance)
	}
	e.updatedAt = state.UpdatedAt
	return nil
}

// snapshot is the engine's own state captured before an operation.
type snapshot struct {
	vaults        []model.VaultEntry
	totalWeight   *uint256.Int
	stableBalance *uint256.Int
}

func (e *Engine) snapshot() snapshot {
	vaults := make([]model.VaultEntry, len(e.vaults))
	for i, v := range e.vaults {
		vaults[i] = v.Clone()
	}
	return snapshot{
		vaults:        vaults,
		totalWeight:   new(uint256.Int).Set(e.totalWeight),
		stableBalance: new(uint256.Int).Set(e.stableBalance),
	}
}

func (e *Engine) restore(s snapshot) {
	e.vaults = s.vaults
	e.totalWeight = s.totalWeight
	e.stableBalance = s.stableBalance
}

// atomic runs fn as one unit of work. The caller holds e.mu.
func (e *Engine) atomic(op string, fn func() error) (err error) {
	start := time.Now()
	saved := e.snapshot()
	journal := e.backend.Snapshot()
	e.opID = uuid.NewString()
	e.pending = nil

	defer func() {
		if r := recover(); r != nil {
			e.backend.RevertToSnapshot(journal)
			e.restore(saved)
			e.pending = nil
			panic(r)
		}
		e.metrics.observe(op, start, err)
	}()

	if err = fn(); err != nil {
		e.backend.RevertToSnapshot(journal)
		e.restore(saved)
		e.pending = nil
		return err
	}
	e.backend.DiscardSnapshot(journal)
	e.updatedAt = e.now()

	events := e.pending
	e.pending = nil
	e.publish(events)
	if err := e.save(); err != nil {
		log.Printf("[ERROR] failed to save treasury state: %v", err)
	}
	e.metrics.setState(len(e.vaults), e.totalWeight, e.stableBalance)
	return nil
}

func (e *Engine) emit(evt *model.Event) {
	evt.OpID = e.opID
	evt.At = e.now()
	e.pending = append(e.pending, evt)
}

func (e *Engine) publish(events []*model.Event) {
	if e.recorder == nil {
		return
	}
	for _, evt := range events {
		if err := e.recorder.RecordEvent(evt); err != nil {
			log.Printf("[ERROR] record %s event: %v", evt.Type, err)
		}
	}
}

func (e *Engine) save() error {
	if e.stateFile == "" {
		return nil
	}
	return SaveState(e.stateFile, e.state())
}

func (e *Engine) state() *model.TreasuryState {
	s := e.snapshot()
	return &model.TreasuryState{
		Owner:         e.owner,
		Address:       e.self,
		StableCoin:    e.stable,
		Vaults:        s.vaults,
		TotalWeight:   s.totalWeight,
		StableBalance: s.stableBalance,
		UpdatedAt:     e.updatedAt,
	}
}

func (e *Engine) onlyOwner(caller common.Address) error {
	if caller != e.owner {
		return errorsmod.Wrapf(ErrUnauthorized, "%s is not the owner", caller)
	}
	return nil
}

func (e *Engine) entry(index int) (*model.VaultEntry, error) {
	if index < 0 || index >= len(e.vaults) {
		return nil, errorsmod.Wrapf(ErrInvalidVaultReference, "index %d out of range [0, %d)", index, len(e.vaults))
	}
	return &e.vaults[index], nil
}

func (e *Engine) deadline() uint64 {
	return uint64(e.now().Add(e.deadlineWindow).Unix())
}

// State returns a copy of the engine's bookkeeping.
func (e *Engine) State() model.TreasuryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state()
}

// Vaults returns copies of all registry entries in index order.
func (e *Engine) Vaults() []model.VaultEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot().vaults
}

// Vault returns a copy of the entry at index.
func (e *Engine) Vault(index int) (model.VaultEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.entry(index)
	if err != nil {
		return model.VaultEntry{}, err
	}
	return v.Clone(), nil
}

// Len returns the number of registered vaults.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vaults)
}

// TotalWeight returns the sum of all entry weights.
func (e *Engine) TotalWeight() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(uint256.Int).Set(e.totalWeight)
}

// StableBalance returns the stable-coin amount held and not yet distributed.
func (e *Engine) StableBalance() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(uint256.Int).Set(e.stableBalance)
}

func (e *Engine) Owner() common.Address      { return e.owner }
func (e *Engine) Address() common.Address    { return e.self }
func (e *Engine) StableCoin() common.Address { return e.stable }
