package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the serializable form of a World.
type State struct {
	Tokens  []TokenState  `json:"tokens"`
	Routers []RouterState `json:"routers"`
	Pairs   []PairState   `json:"pairs"`
	Vaults  []VaultState  `json:"vaults"`
	SavedAt time.Time     `json:"saved_at"`
}

type TokenState struct {
	Address    common.Address                                    `json:"address"`
	Meta       TokenMeta                                         `json:"meta"`
	Supply     *uint256.Int                                      `json:"supply"`
	Balances   map[common.Address]*uint256.Int                   `json:"balances"`
	Allowances map[common.Address]map[common.Address]*uint256.Int `json:"allowances,omitempty"`
}

type RouterState struct {
	Address common.Address `json:"address"`
	FeeBps  uint64         `json:"fee_bps"`
}

type PairState struct {
	Address common.Address `json:"address"`
	Router  common.Address `json:"router"`
	Token0  common.Address `json:"token0"`
	Token1  common.Address `json:"token1"`
}

type VaultState struct {
	Address  common.Address `json:"address"`
	Want     common.Address `json:"want"`
	Strategy StrategyInfo   `json:"strategy"`
	APRBps   uint64         `json:"apr_bps"`
}

// Export captures the world. Pending journal snapshots are not included.
func (w *World) Export() *State {
	w.mu.Lock()
	defer w.mu.Unlock()

	l := w.ledger.clone()
	st := &State{SavedAt: w.now()}
	for addr, meta := range l.meta {
		st.Tokens = append(st.Tokens, TokenState{
			Address:    addr,
			Meta:       meta,
			Supply:     l.supply[addr],
			Balances:   l.balances[addr],
			Allowances: l.allowances[addr],
		})
	}
	for _, r := range w.routers {
		st.Routers = append(st.Routers, RouterState{Address: r.Address, FeeBps: r.FeeBps})
	}
	for _, p := range w.pairs {
		st.Pairs = append(st.Pairs, PairState{Address: p.Address, Router: p.Router, Token0: p.Token0, Token1: p.Token1})
	}
	for _, v := range w.vaults {
		st.Vaults = append(st.Vaults, VaultState{Address: v.Address, Want: v.Want, Strategy: v.Strategy, APRBps: v.APRBps})
	}
	return st
}

// Restore builds a world from an exported state.
func Restore(st *State, now func() time.Time) (*World, error) {
	w := NewWorld(now)
	for _, t := range st.Tokens {
		if err := w.ledger.register(t.Address, t.Meta); err != nil {
			return nil, err
		}
		if t.Supply != nil {
			w.ledger.supply[t.Address] = new(uint256.Int).Set(t.Supply)
		}
		for holder, bal := range t.Balances {
			w.ledger.setBalance(t.Address, holder, new(uint256.Int).Set(bal))
		}
		for owner, bySpender := range t.Allowances {
			for spender, a := range bySpender {
				if err := w.ledger.approve(t.Address, owner, spender, a); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, r := range st.Routers {
		w.routers[r.Address] = &router{Address: r.Address, FeeBps: r.FeeBps}
	}
	for _, p := range st.Pairs {
		if _, ok := w.routers[p.Router]; !ok {
			return nil, fmt.Errorf("pair %s: unknown router %s", p.Address, p.Router)
		}
		w.pairs[p.Address] = &pair{Address: p.Address, Router: p.Router, Token0: p.Token0, Token1: p.Token1}
		w.byToken[[2]common.Address{p.Token0, p.Token1}] = p.Address
	}
	for _, v := range st.Vaults {
		w.vaults[v.Address] = &vaultInfo{Address: v.Address, Want: v.Want, Strategy: v.Strategy, APRBps: v.APRBps}
	}
	return w, nil
}

// LoadState reads a world from a JSON file. Returns nil, nil if the file doesn't exist.
func LoadState(filePath string, now func() time.Time) (*World, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return Restore(&st, now)
}

// SaveState writes the world to a JSON file.
func SaveState(filePath string, w *World) error {
	data, err := json.MarshalIndent(w.Export(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
