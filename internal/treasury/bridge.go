package treasury

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/chain"
)

// ReverseRoute returns route with its hops in the opposite order. route is not modified.
func ReverseRoute(route []common.Address) []common.Address {
	out := make([]common.Address, len(route))
	for i, hop := range route {
		out[len(route)-1-i] = hop
	}
	return out
}

// pairPlan is what the bridge needs to move between the stable coin and a
// vault's pool token.
type pairPlan struct {
	routerAddr common.Address
	router     chain.Router
	lp         [2]common.Address
	routes     [2][]common.Address
}

func (e *Engine) loadPlan(ctx context.Context, vaultID common.Address, vault chain.Vault) (*pairPlan, error) {
	strategy, err := vault.Strategy(ctx)
	if err != nil {
		return nil, external(err, "vault %s strategy()", vaultID)
	}
	p := &pairPlan{}
	if p.routerAddr, err = strategy.Unirouter(ctx); err != nil {
		return nil, external(err, "vault %s unirouter()", vaultID)
	}
	if p.lp[0], err = strategy.LpToken0(ctx); err != nil {
		return nil, external(err, "vault %s lpToken0()", vaultID)
	}
	if p.lp[1], err = strategy.LpToken1(ctx); err != nil {
		return nil, external(err, "vault %s lpToken1()", vaultID)
	}
	if p.routes[0], err = strategy.OutputToLp0(ctx); err != nil {
		return nil, external(err, "vault %s outputToLp0()", vaultID)
	}
	if p.routes[1], err = strategy.OutputToLp1(ctx); err != nil {
		return nil, external(err, "vault %s outputToLp1()", vaultID)
	}
	for i, route := range p.routes {
		if p.lp[i] == e.stable {
			continue
		}
		if len(route) < 2 || route[0] != e.stable || route[len(route)-1] != p.lp[i] {
			return nil, errorsmod.Wrapf(ErrInvalidVaultReference,
				"vault %s route %d %v does not lead from %s to %s", vaultID, i, route, e.stable, p.lp[i])
		}
	}
	if p.router, err = e.backend.Router(p.routerAddr); err != nil {
		return nil, external(err, "resolve router %s", p.routerAddr)
	}
	return p, nil
}

// provision turns amount of the stable coin into the vault's pool token: half
// is routed into each side of the pair, then both sides are added as
// liquidity. Non-stable sides add the engine's whole balance of the token, so
// whatever an earlier add left unmatched goes back into the pool. Minimum
// outputs are zero on every call.
func (e *Engine) provision(ctx context.Context, vaultID common.Address, vault chain.Vault, amount *uint256.Int) error {
	plan, err := e.loadPlan(ctx, vaultID, vault)
	if err != nil {
		return err
	}

	halves := [2]*uint256.Int{new(uint256.Int).Rsh(amount, 1), nil}
	halves[1] = new(uint256.Int).Sub(amount, halves[0])

	var legs [2]*uint256.Int
	for i := range legs {
		if legs[i], err = e.acquire(ctx, plan, i, halves[i]); err != nil {
			return err
		}
	}
	// Approve after both swaps: a swap re-approves the stable coin for its own input.
	for i := range legs {
		if err := e.approve(ctx, plan.lp[i], plan.routerAddr, legs[i]); err != nil {
			return err
		}
	}

	zero := new(uint256.Int)
	_, _, _, err = plan.router.AddLiquidity(ctx, e.self, plan.lp[0], plan.lp[1], legs[0], legs[1], zero, zero, e.self, e.deadline())
	if err != nil {
		return external(err, "add liquidity %s/%s", plan.lp[0], plan.lp[1])
	}
	return nil
}

// acquire swaps amount of the stable coin into side i of the pair and returns
// the engine's resulting balance of that side. The stable side is passed
// through unchanged.
func (e *Engine) acquire(ctx context.Context, plan *pairPlan, i int, amount *uint256.Int) (*uint256.Int, error) {
	token := plan.lp[i]
	if token == e.stable {
		return new(uint256.Int).Set(amount), nil
	}
	if err := e.approve(ctx, e.stable, plan.routerAddr, amount); err != nil {
		return nil, err
	}
	_, err := plan.router.SwapExactTokensForTokens(ctx, e.self, amount, new(uint256.Int), plan.routes[i], e.self, e.deadline())
	if err != nil {
		return nil, external(err, "swap %s into %s", amount, token)
	}
	return e.balanceOf(ctx, token)
}

// unwind withdraws shares from a pool-token vault, removes the liquidity and
// swaps the engine's whole balance of each non-stable side back along its
// route reversed.
func (e *Engine) unwind(ctx context.Context, vaultID, asset common.Address, vault chain.Vault, shares *uint256.Int) error {
	plan, err := e.loadPlan(ctx, vaultID, vault)
	if err != nil {
		return err
	}
	if err := vault.Withdraw(ctx, e.self, shares); err != nil {
		return external(err, "withdraw %s shares from vault %s", shares, vaultID)
	}

	liquidity, err := e.balanceOf(ctx, asset)
	if err != nil {
		return err
	}
	if err := e.approve(ctx, asset, plan.routerAddr, liquidity); err != nil {
		return err
	}
	zero := new(uint256.Int)
	if _, _, err := plan.router.RemoveLiquidity(ctx, e.self, plan.lp[0], plan.lp[1], liquidity, zero, zero, e.self, e.deadline()); err != nil {
		return external(err, "remove liquidity %s/%s", plan.lp[0], plan.lp[1])
	}

	for i, token := range plan.lp {
		if token == e.stable {
			continue
		}
		amount, err := e.balanceOf(ctx, token)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			continue
		}
		if err := e.approve(ctx, plan.lp[i], plan.routerAddr, amount); err != nil {
			return err
		}
		route := ReverseRoute(plan.routes[i])
		if _, err := plan.router.SwapExactTokensForTokens(ctx, e.self, amount, zero, route, e.self, e.deadline()); err != nil {
			return external(err, "swap %s of %s back", amount, plan.lp[i])
		}
	}
	return nil
}

func (e *Engine) balanceOf(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	token, err := e.backend.Token(asset)
	if err != nil {
		return nil, external(err, "resolve token %s", asset)
	}
	bal, err := token.BalanceOf(ctx, e.self)
	if err != nil {
		return nil, external(err, "%s balanceOf", asset)
	}
	return bal, nil
}

func (e *Engine) approve(ctx context.Context, asset, spender common.Address, amount *uint256.Int) error {
	token, err := e.backend.Token(asset)
	if err != nil {
		return external(err, "resolve token %s", asset)
	}
	if err := token.Approve(ctx, e.self, spender, amount); err != nil {
		return external(err, "approve %s on %s", spender, asset)
	}
	return nil
}
