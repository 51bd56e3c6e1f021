package treasury

import (
	"context"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"VaultTreasury/internal/model"
)

// YieldScale expresses yield in thousandths of a percent: 100000 is +100%.
const YieldScale = 100000

// ShareScale is the fixed-point scale of a vault's price per share.
var ShareScale = uint256.NewInt(1e18)

// ShareValue is balance * pricePerShare / 1e18.
func ShareValue(balance, pricePerShare *uint256.Int) (*uint256.Int, error) {
	value, overflow := new(uint256.Int).MulDivOverflow(balance, pricePerShare, ShareScale)
	if overflow {
		return nil, errorsmod.Wrap(ErrInvalidAmount, "share value overflows")
	}
	return value, nil
}

// Yield is (value - principal) * YieldScale / principal, truncated toward zero.
// It is negative when value is below principal.
func Yield(value, principal *uint256.Int) (*big.Int, error) {
	if principal.IsZero() {
		return nil, errorsmod.Wrap(ErrDivisionByZero, "principal is zero")
	}
	p := principal.ToBig()
	y := new(big.Int).Sub(value.ToBig(), p)
	y.Mul(y, big.NewInt(YieldScale))
	return y.Quo(y, p), nil
}

// CalculateYield reports the yield of the vault at index against its recorded principal.
func (e *Engine) CalculateYield(ctx context.Context, index int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	y, err := e.vaultYield(ctx, index)
	if err != nil {
		return nil, err
	}
	return y.Yield, nil
}

// YieldReport returns the yield of every vault that has received principal.
func (e *Engine) YieldReport(ctx context.Context) ([]model.VaultYield, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.VaultYield
	for i := range e.vaults {
		if e.vaults[i].Principal.IsZero() {
			continue
		}
		y, err := e.vaultYield(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, *y)
	}
	return out, nil
}

func (e *Engine) vaultYield(ctx context.Context, index int) (*model.VaultYield, error) {
	entry, err := e.entry(index)
	if err != nil {
		return nil, err
	}
	if entry.Principal.IsZero() {
		return nil, errorsmod.Wrapf(ErrDivisionByZero, "vault %d has no principal", index)
	}
	vault, err := e.backend.Vault(entry.VaultID)
	if err != nil {
		return nil, external(err, "resolve vault %s", entry.VaultID)
	}
	shares, err := vault.BalanceOf(ctx, e.self)
	if err != nil {
		return nil, external(err, "vault %s balanceOf", entry.VaultID)
	}
	pps, err := vault.PricePerShare(ctx)
	if err != nil {
		return nil, external(err, "vault %s pricePerShare()", entry.VaultID)
	}
	value, err := ShareValue(shares, pps)
	if err != nil {
		return nil, err
	}
	y, err := Yield(value, entry.Principal)
	if err != nil {
		return nil, err
	}
	return &model.VaultYield{
		Index:     index,
		VaultID:   entry.VaultID,
		Principal: new(uint256.Int).Set(entry.Principal),
		Value:     value,
		Yield:     y,
	}, nil
}
