// Package sim is an in-memory chain: a token ledger, constant-product routers
// with pool tokens, and share-issuing vaults. It implements chain.Backend so the
// treasury engine can be run and backtested without a network.
package sim

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/chain"
)

var _ chain.Backend = (*World)(nil)

// pair is a constant-product pool. Its reserves are the ledger balances of the
// pair address and its pool token is the ledger token at the same address.
type pair struct {
	Address common.Address
	Router  common.Address
	Token0  common.Address
	Token1  common.Address
}

type router struct {
	Address common.Address
	FeeBps  uint64
}

type vaultInfo struct {
	Address  common.Address
	Want     common.Address
	Strategy StrategyInfo
	APRBps   uint64
}

// StrategyInfo configures the strategy attached to a vault.
type StrategyInfo struct {
	Router common.Address   `json:"router"`
	Lp0    common.Address   `json:"lp0"`
	Lp1    common.Address   `json:"lp1"`
	Route0 []common.Address `json:"route0"`
	Route1 []common.Address `json:"route1"`
}

// World is the simulated chain. All methods are safe for concurrent use.
type World struct {
	mu      sync.Mutex
	now     func() time.Time
	ledger  *ledger
	pairs   map[common.Address]*pair
	byToken map[[2]common.Address]common.Address
	routers map[common.Address]*router
	vaults  map[common.Address]*vaultInfo
	journal []*ledger
}

// NewWorld creates an empty world. now drives router deadlines; nil means time.Now.
func NewWorld(now func() time.Time) *World {
	if now == nil {
		now = time.Now
	}
	return &World{
		now:     now,
		ledger:  newLedger(),
		pairs:   make(map[common.Address]*pair),
		byToken: make(map[[2]common.Address]common.Address),
		routers: make(map[common.Address]*router),
		vaults:  make(map[common.Address]*vaultInfo),
	}
}

// Now returns the world clock.
func (w *World) Now() time.Time {
	return w.now()
}

// AddToken registers a fungible token.
func (w *World) AddToken(addr common.Address, symbol string, decimals uint8) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.register(addr, TokenMeta{Symbol: symbol, Decimals: decimals})
}

// TokenMeta returns the registered metadata of a token.
func (w *World) TokenMeta(addr common.Address) (TokenMeta, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.ledger.meta[addr]
	return m, ok
}

// AddRouter registers a router charging feeBps on every hop.
func (w *World) AddRouter(addr common.Address, feeBps uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if feeBps >= bpsDenominator {
		return fmt.Errorf("router fee %d bps out of range", feeBps)
	}
	if _, ok := w.routers[addr]; ok {
		return fmt.Errorf("router %s already registered", addr)
	}
	w.routers[addr] = &router{Address: addr, FeeBps: feeBps}
	return nil
}

// CreatePair creates an empty pool for tokenA/tokenB on router and returns the
// pair address, which is also the address of its pool token.
func (w *World) CreatePair(routerAddr, tokenA, tokenB common.Address) (common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.routers[routerAddr]; !ok {
		return common.Address{}, fmt.Errorf("unknown router %s", routerAddr)
	}
	if tokenA == tokenB {
		return common.Address{}, fmt.Errorf("identical tokens %s", tokenA)
	}
	for _, t := range []common.Address{tokenA, tokenB} {
		if err := w.ledger.known(t); err != nil {
			return common.Address{}, err
		}
	}
	t0, t1 := sortTokens(tokenA, tokenB)
	key := [2]common.Address{t0, t1}
	if _, ok := w.byToken[key]; ok {
		return common.Address{}, fmt.Errorf("pair %s/%s already exists", t0, t1)
	}
	addr := common.BytesToAddress(crypto.Keccak256(routerAddr.Bytes(), t0.Bytes(), t1.Bytes()))
	sym0, sym1 := w.ledger.meta[t0].Symbol, w.ledger.meta[t1].Symbol
	if err := w.ledger.register(addr, TokenMeta{Symbol: sym0 + "-" + sym1 + "-LP", Decimals: 18}); err != nil {
		return common.Address{}, err
	}
	w.pairs[addr] = &pair{Address: addr, Router: routerAddr, Token0: t0, Token1: t1}
	w.byToken[key] = addr
	return addr, nil
}

// PairFor returns the pair address of tokenA/tokenB.
func (w *World) PairFor(tokenA, tokenB common.Address) (common.Address, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t0, t1 := sortTokens(tokenA, tokenB)
	addr, ok := w.byToken[[2]common.Address{t0, t1}]
	return addr, ok
}

// AddVault registers a vault accepting want. The vault's share token lives at
// addr. When want is a pool token, the strategy's Lp0/Lp1 default to the pair's
// tokens.
func (w *World) AddVault(addr, want common.Address, strategy StrategyInfo, aprBps uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.vaults[addr]; ok {
		return fmt.Errorf("vault %s already registered", addr)
	}
	if p, ok := w.pairs[want]; ok {
		if strategy.Lp0 == (common.Address{}) && strategy.Lp1 == (common.Address{}) {
			strategy.Lp0, strategy.Lp1 = p.Token0, p.Token1
		}
		if strategy.Router == (common.Address{}) {
			strategy.Router = p.Router
		}
	}
	symbol := "moo"
	if meta, ok := w.ledger.meta[want]; ok {
		symbol += meta.Symbol
	}
	if err := w.ledger.register(addr, TokenMeta{Symbol: symbol, Decimals: 18}); err != nil {
		return err
	}
	w.vaults[addr] = &vaultInfo{Address: addr, Want: want, Strategy: strategy, APRBps: aprBps}
	return nil
}

// Vaults returns the registered vault addresses in address order.
func (w *World) Vaults() []common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]common.Address, 0, len(w.vaults))
	for addr := range w.vaults {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Token implements chain.Backend.
func (w *World) Token(addr common.Address) (chain.Token, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ledger.known(addr); err != nil {
		return nil, err
	}
	return &Token{w: w, addr: addr}, nil
}

// Vault implements chain.Backend.
func (w *World) Vault(addr common.Address) (chain.Vault, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.vaults[addr]; !ok {
		return nil, fmt.Errorf("no vault at %s", addr)
	}
	return &Vault{w: w, addr: addr}, nil
}

// Router implements chain.Backend.
func (w *World) Router(addr common.Address) (chain.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.routers[addr]; !ok {
		return nil, fmt.Errorf("no router at %s", addr)
	}
	return &Router{w: w, addr: addr}, nil
}

// Snapshot records the ledger so it can be restored with RevertToSnapshot.
func (w *World) Snapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.journal = append(w.journal, w.ledger.clone())
	return len(w.journal) - 1
}

// RevertToSnapshot restores the ledger to snapshot id and drops every later one.
func (w *World) RevertToSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id < 0 || id >= len(w.journal) {
		panic(fmt.Sprintf("revert to unknown snapshot %d", id))
	}
	w.ledger = w.journal[id]
	w.journal = w.journal[:id]
}

// DiscardSnapshot forgets snapshot id and every later one, keeping the ledger.
func (w *World) DiscardSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id < 0 || id >= len(w.journal) {
		return
	}
	w.journal = w.journal[:id]
}

// Mint creates amount of token for to. Used to fund accounts and seed pools.
func (w *World) Mint(token, to common.Address, amount *uint256.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.mint(token, to, amount)
}

// BalanceOf reads a ledger balance without going through a Token handle.
func (w *World) BalanceOf(token, holder common.Address) *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.balanceOf(token, holder)
}

// TotalSupply reads a token's supply.
func (w *World) TotalSupply(token common.Address) *uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.totalSupply(token)
}

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}
