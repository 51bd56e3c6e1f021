package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const bpsDenominator = 10_000

var (
	ErrExpired                     = errors.New("router: expired")
	ErrInvalidPath                 = errors.New("router: invalid path")
	ErrNoPair                      = errors.New("router: pair does not exist")
	ErrInsufficientInput           = errors.New("router: insufficient input amount")
	ErrInsufficientOutput          = errors.New("router: insufficient output amount")
	ErrInsufficientLiquidity       = errors.New("router: insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("router: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("router: insufficient liquidity burned")
	ErrOverflow                    = errors.New("arithmetic overflow")
)

// Router is a handle to a constant-product router.
type Router struct {
	w    *World
	addr common.Address
}

func (r *Router) fee() uint64 {
	return r.w.routers[r.addr].FeeBps
}

func (r *Router) checkDeadline(deadline uint64) error {
	if now := r.w.now().Unix(); uint64(now) > deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrExpired, deadline, now)
	}
	return nil
}

func (r *Router) pairOf(tokenA, tokenB common.Address) (*pair, error) {
	t0, t1 := sortTokens(tokenA, tokenB)
	addr, ok := r.w.byToken[[2]common.Address{t0, t1}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPair, tokenA, tokenB)
	}
	p := r.w.pairs[addr]
	if p.Router != r.addr {
		return nil, fmt.Errorf("%w: %s/%s on router %s", ErrNoPair, tokenA, tokenB, r.addr)
	}
	return p, nil
}

// GetAmountOut is the constant-product output for amountIn after a fee in basis points.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(bpsDenominator-feeBps))
	if overflow {
		return nil, ErrOverflow
	}
	den, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(bpsDenominator))
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = den.AddOverflow(den, inWithFee); overflow {
		return nil, ErrOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(inWithFee, reserveOut, den)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// quote returns amountA priced in B at the current reserve ratio.
func quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amountA, reserveB, reserveA)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// SwapExactTokensForTokens implements chain.Router.
func (r *Router) SwapExactTokensForTokens(_ context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	if err := r.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d hops", ErrInvalidPath, len(path))
	}

	l := r.w.ledger
	amounts := make([]*uint256.Int, len(path))
	amounts[0] = new(uint256.Int).Set(amountIn)
	pairs := make([]*pair, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		p, err := r.pairOf(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := GetAmountOut(amounts[i], l.balanceOf(path[i], p.Address), l.balanceOf(path[i+1], p.Address), r.fee())
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
		pairs[i] = p
	}
	if amounts[len(amounts)-1].Lt(amountOutMin) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutput, amounts[len(amounts)-1], amountOutMin)
	}

	err := r.w.atomically(func() error {
		if err := r.w.ledger.transferFrom(path[0], r.addr, caller, pairs[0].Address, amounts[0]); err != nil {
			return err
		}
		for i, p := range pairs {
			dst := to
			if i < len(pairs)-1 {
				dst = pairs[i+1].Address
			}
			if err := r.w.ledger.transfer(path[i+1], p.Address, dst, amounts[i+1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// AddLiquidity implements chain.Router. Amounts are matched to the pool ratio
// the way a Uniswap V2 router does.
func (r *Router) AddLiquidity(_ context.Context, caller, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	if err := r.checkDeadline(deadline); err != nil {
		return nil, nil, nil, err
	}
	p, err := r.pairOf(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}

	l := r.w.ledger
	reserveA, reserveB := l.balanceOf(tokenA, p.Address), l.balanceOf(tokenB, p.Address)
	amountA, amountB := new(uint256.Int).Set(amountADesired), new(uint256.Int).Set(amountBDesired)
	if !reserveA.IsZero() || !reserveB.IsZero() {
		bOptimal, err := quote(amountADesired, reserveA, reserveB)
		if err != nil {
			return nil, nil, nil, err
		}
		if !bOptimal.Gt(amountBDesired) {
			if bOptimal.Lt(amountBMin) {
				return nil, nil, nil, fmt.Errorf("%w: B amount %s below %s", ErrInsufficientOutput, bOptimal, amountBMin)
			}
			amountB = bOptimal
		} else {
			aOptimal, err := quote(amountBDesired, reserveB, reserveA)
			if err != nil {
				return nil, nil, nil, err
			}
			if aOptimal.Lt(amountAMin) {
				return nil, nil, nil, fmt.Errorf("%w: A amount %s below %s", ErrInsufficientOutput, aOptimal, amountAMin)
			}
			amountA = aOptimal
		}
	}

	liquidity, err := mintable(amountA, amountB, reserveA, reserveB, l.totalSupply(p.Address))
	if err != nil {
		return nil, nil, nil, err
	}

	err = r.w.atomically(func() error {
		if err := r.w.ledger.transferFrom(tokenA, r.addr, caller, p.Address, amountA); err != nil {
			return err
		}
		if err := r.w.ledger.transferFrom(tokenB, r.addr, caller, p.Address, amountB); err != nil {
			return err
		}
		return r.w.ledger.mint(p.Address, to, liquidity)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// mintable is the pool-token amount minted for a deposit of amountA/amountB.
func mintable(amountA, amountB, reserveA, reserveB, supply *uint256.Int) (*uint256.Int, error) {
	var liquidity *uint256.Int
	if supply.IsZero() {
		product, overflow := new(uint256.Int).MulOverflow(amountA, amountB)
		if overflow {
			return nil, ErrOverflow
		}
		liquidity = new(uint256.Int).Sqrt(product)
	} else {
		la, overflowA := new(uint256.Int).MulDivOverflow(amountA, supply, reserveA)
		lb, overflowB := new(uint256.Int).MulDivOverflow(amountB, supply, reserveB)
		if overflowA || overflowB {
			return nil, ErrOverflow
		}
		liquidity = la
		if lb.Lt(la) {
			liquidity = lb
		}
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, nil
}

// RemoveLiquidity implements chain.Router.
func (r *Router) RemoveLiquidity(_ context.Context, caller, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	if err := r.checkDeadline(deadline); err != nil {
		return nil, nil, err
	}
	p, err := r.pairOf(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}

	l := r.w.ledger
	supply := l.totalSupply(p.Address)
	if supply.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}
	amountA, overflowA := new(uint256.Int).MulDivOverflow(liquidity, l.balanceOf(tokenA, p.Address), supply)
	amountB, overflowB := new(uint256.Int).MulDivOverflow(liquidity, l.balanceOf(tokenB, p.Address), supply)
	if overflowA || overflowB {
		return nil, nil, ErrOverflow
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientLiquidityBurned
	}
	if amountA.Lt(amountAMin) || amountB.Lt(amountBMin) {
		return nil, nil, fmt.Errorf("%w: got %s/%s", ErrInsufficientOutput, amountA, amountB)
	}

	err = r.w.atomically(func() error {
		if err := r.w.ledger.transferFrom(p.Address, r.addr, caller, p.Address, liquidity); err != nil {
			return err
		}
		if err := r.w.ledger.burn(p.Address, p.Address, liquidity); err != nil {
			return err
		}
		if err := r.w.ledger.transfer(tokenA, p.Address, to, amountA); err != nil {
			return err
		}
		return r.w.ledger.transfer(tokenB, p.Address, to, amountB)
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// atomically runs fn against the ledger and restores it if fn fails. The
// caller holds w.mu.
func (w *World) atomically(fn func() error) error {
	saved := w.ledger.clone()
	if err := fn(); err != nil {
		w.ledger = saved
		return err
	}
	return nil
}
