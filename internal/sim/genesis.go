package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Genesis describes a world to build from scratch.
type Genesis struct {
	Tokens  []GenesisToken
	Routers []GenesisRouter
	// Pools are seeded by Provider, which receives the pool tokens.
	Pools    []GenesisPool
	Vaults   []GenesisVault
	Balances []GenesisBalance
	Provider common.Address
}

type GenesisToken struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

type GenesisRouter struct {
	Address common.Address
	FeeBps  uint64
}

type GenesisPool struct {
	Router           common.Address
	TokenA, TokenB   common.Address
	AmountA, AmountB *uint256.Int
}

// GenesisVault accepts Want, or the pool token of Pool when Want is zero.
type GenesisVault struct {
	Address  common.Address
	Want     common.Address
	Pool     [2]common.Address
	Strategy StrategyInfo
	APRBps   uint64
}

type GenesisBalance struct {
	Token  common.Address
	Holder common.Address
	Amount *uint256.Int
}

// Build creates a world from g.
func Build(g *Genesis, now func() time.Time) (*World, error) {
	w := NewWorld(now)
	ctx := context.Background()

	for _, t := range g.Tokens {
		if err := w.AddToken(t.Address, t.Symbol, t.Decimals); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
	}
	for _, r := range g.Routers {
		if err := w.AddRouter(r.Address, r.FeeBps); err != nil {
			return nil, err
		}
	}

	if len(g.Pools) > 0 && g.Provider == (common.Address{}) {
		return nil, fmt.Errorf("genesis pools need a liquidity provider")
	}
	deadline := uint64(w.Now().Add(time.Hour).Unix())
	for _, p := range g.Pools {
		if _, err := w.CreatePair(p.Router, p.TokenA, p.TokenB); err != nil {
			return nil, err
		}
		if p.AmountA == nil || p.AmountB == nil || p.AmountA.IsZero() || p.AmountB.IsZero() {
			continue
		}
		for _, leg := range []struct {
			token  common.Address
			amount *uint256.Int
		}{{p.TokenA, p.AmountA}, {p.TokenB, p.AmountB}} {
			if err := w.Mint(leg.token, g.Provider, leg.amount); err != nil {
				return nil, err
			}
			tok, err := w.Token(leg.token)
			if err != nil {
				return nil, err
			}
			if err := tok.Approve(ctx, g.Provider, p.Router, leg.amount); err != nil {
				return nil, err
			}
		}
		r, err := w.Router(p.Router)
		if err != nil {
			return nil, err
		}
		zero := new(uint256.Int)
		if _, _, _, err := r.AddLiquidity(ctx, g.Provider, p.TokenA, p.TokenB, p.AmountA, p.AmountB, zero, zero, g.Provider, deadline); err != nil {
			return nil, fmt.Errorf("seed %s/%s: %w", p.TokenA, p.TokenB, err)
		}
	}

	for _, v := range g.Vaults {
		want := v.Want
		if want == (common.Address{}) {
			pairAddr, ok := w.PairFor(v.Pool[0], v.Pool[1])
			if !ok {
				return nil, fmt.Errorf("vault %s: no pool %s/%s", v.Address, v.Pool[0], v.Pool[1])
			}
			want = pairAddr
		}
		if err := w.AddVault(v.Address, want, v.Strategy, v.APRBps); err != nil {
			return nil, err
		}
	}

	for _, b := range g.Balances {
		if err := w.Mint(b.Token, b.Holder, b.Amount); err != nil {
			return nil, fmt.Errorf("balance of %s in %s: %w", b.Holder, b.Token, err)
		}
	}
	return w, nil
}
