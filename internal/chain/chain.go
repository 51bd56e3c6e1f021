// Package chain declares the collaborators the treasury engine calls out to.
// Implementations may talk to a live network or, as internal/sim does, keep the
// whole ledger in memory.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a fungible asset.
type Token interface {
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
}

// Vault accepts a single asset (Want) and issues shares against it.
type Vault interface {
	Want(ctx context.Context) (common.Address, error)
	// Deposit pulls amount of Want from caller, which must have approved the vault.
	Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) error
	// Withdraw burns shares of caller and returns the underlying Want to it.
	Withdraw(ctx context.Context, caller common.Address, shares *uint256.Int) error
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
	// PricePerShare is scaled by 1e18.
	PricePerShare(ctx context.Context) (*uint256.Int, error)
	Strategy(ctx context.Context) (Strategy, error)
}

// Strategy describes how a vault's pool tokens are acquired.
type Strategy interface {
	Unirouter(ctx context.Context) (common.Address, error)
	LpToken0(ctx context.Context) (common.Address, error)
	LpToken1(ctx context.Context) (common.Address, error)
	OutputToLp0(ctx context.Context) ([]common.Address, error)
	OutputToLp1(ctx context.Context) ([]common.Address, error)
}

// Router swaps along routes and manages pair liquidity. Tokens are pulled from
// caller, which must have approved the router.
type Router interface {
	SwapExactTokensForTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error)
	AddLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (amountA, amountB, liquidity *uint256.Int, err error)
	RemoveLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (amountA, amountB *uint256.Int, err error)
}

// Journal lets a caller make a group of calls all-or-nothing.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Backend resolves addresses to collaborators.
type Backend interface {
	Journal
	Token(addr common.Address) (Token, error)
	Vault(addr common.Address) (Vault, error)
	Router(addr common.Address) (Router, error)
}
