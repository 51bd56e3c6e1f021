package sim

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a handle to one ledger token.
type Token struct {
	w    *World
	addr common.Address
}

func (t *Token) BalanceOf(_ context.Context, holder common.Address) (*uint256.Int, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.ledger.balanceOf(t.addr, holder), nil
}

func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.ledger.transfer(t.addr, from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.ledger.transferFrom(t.addr, spender, from, to, amount)
}

func (t *Token) Approve(_ context.Context, owner, spender common.Address, amount *uint256.Int) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.ledger.approve(t.addr, owner, spender, amount)
}
