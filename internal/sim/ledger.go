package sim

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

var maxUint256 = new(uint256.Int).SetAllOne()

// TokenMeta describes a token registered in the ledger.
type TokenMeta struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ledger holds balances, allowances and supplies for every token. It is not
// safe for concurrent use; World serializes access.
type ledger struct {
	meta       map[common.Address]TokenMeta
	supply     map[common.Address]*uint256.Int
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int
}

func newLedger() *ledger {
	return &ledger{
		meta:       make(map[common.Address]TokenMeta),
		supply:     make(map[common.Address]*uint256.Int),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (l *ledger) register(token common.Address, meta TokenMeta) error {
	if _, ok := l.meta[token]; ok {
		return fmt.Errorf("token %s already registered", token)
	}
	l.meta[token] = meta
	l.supply[token] = new(uint256.Int)
	l.balances[token] = make(map[common.Address]*uint256.Int)
	l.allowances[token] = make(map[common.Address]map[common.Address]*uint256.Int)
	return nil
}

func (l *ledger) known(token common.Address) error {
	if _, ok := l.meta[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return nil
}

func (l *ledger) balanceOf(token, holder common.Address) *uint256.Int {
	if b, ok := l.balances[token][holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (l *ledger) totalSupply(token common.Address) *uint256.Int {
	if s, ok := l.supply[token]; ok {
		return new(uint256.Int).Set(s)
	}
	return new(uint256.Int)
}

func (l *ledger) setBalance(token, holder common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(l.balances[token], holder)
		return
	}
	l.balances[token][holder] = v
}

func (l *ledger) mint(token, to common.Address, amount *uint256.Int) error {
	if err := l.known(token); err != nil {
		return err
	}
	supply, overflow := new(uint256.Int).AddOverflow(l.supply[token], amount)
	if overflow {
		return fmt.Errorf("mint %s: supply overflow", token)
	}
	l.supply[token] = supply
	bal, _ := new(uint256.Int).AddOverflow(l.balanceOf(token, to), amount)
	l.setBalance(token, to, bal)
	return nil
}

func (l *ledger) burn(token, from common.Address, amount *uint256.Int) error {
	if err := l.known(token); err != nil {
		return err
	}
	bal := l.balanceOf(token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("burn %s: %w", token, ErrInsufficientBalance)
	}
	l.setBalance(token, from, bal.Sub(bal, amount))
	l.supply[token] = new(uint256.Int).Sub(l.supply[token], amount)
	return nil
}

func (l *ledger) transfer(token, from, to common.Address, amount *uint256.Int) error {
	if err := l.known(token); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer %s: to the zero address", token)
	}
	bal := l.balanceOf(token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("transfer %s from %s: %w", token, from, ErrInsufficientBalance)
	}
	l.setBalance(token, from, bal.Sub(bal, amount))
	dst, _ := new(uint256.Int).AddOverflow(l.balanceOf(token, to), amount)
	l.setBalance(token, to, dst)
	return nil
}

func (l *ledger) allowance(token, owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[token][owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

func (l *ledger) approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if err := l.known(token); err != nil {
		return err
	}
	byOwner, ok := l.allowances[token][owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		l.allowances[token][owner] = byOwner
	}
	if amount.IsZero() {
		delete(byOwner, spender)
		return nil
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
	return nil
}

func (l *ledger) transferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	if err := l.known(token); err != nil {
		return err
	}
	allowed := l.allowance(token, from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("transferFrom %s by %s: %w", token, spender, ErrInsufficientAllowance)
	}
	if err := l.transfer(token, from, to, amount); err != nil {
		return err
	}
	if !allowed.Eq(maxUint256) {
		return l.approve(token, from, spender, allowed.Sub(allowed, amount))
	}
	return nil
}

func (l *ledger) clone() *ledger {
	c := newLedger()
	for token, meta := range l.meta {
		c.meta[token] = meta
		c.supply[token] = new(uint256.Int).Set(l.supply[token])
		balances := make(map[common.Address]*uint256.Int, len(l.balances[token]))
		for holder, bal := range l.balances[token] {
			balances[holder] = new(uint256.Int).Set(bal)
		}
		c.balances[token] = balances
		allowances := make(map[common.Address]map[common.Address]*uint256.Int, len(l.allowances[token]))
		for owner, bySpender := range l.allowances[token] {
			m := make(map[common.Address]*uint256.Int, len(bySpender))
			for spender, a := range bySpender {
				m[spender] = new(uint256.Int).Set(a)
			}
			allowances[owner] = m
		}
		c.allowances[token] = allowances
	}
	return c
}
