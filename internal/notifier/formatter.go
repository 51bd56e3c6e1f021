package notifier

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"VaultTreasury/internal/model"
)

// yieldDecimals converts yield units (100000 = +100%) to percent.
const yieldDecimals = 3

// AssetLookup returns the display symbol and decimals of a token.
type AssetLookup func(asset common.Address) (symbol string, decimals uint8)

func (l AssetLookup) resolve(asset common.Address) (string, uint8) {
	if l == nil {
		return shortAddr(asset), 0
	}
	return l(asset)
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

// FormatAmount renders a base-unit amount with the token's decimals.
func FormatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}

// FormatYield renders a yield as a signed percentage.
func FormatYield(y *big.Int) string {
	if y == nil {
		return "n/a"
	}
	d := decimal.NewFromBigInt(y, -yieldDecimals)
	sign := ""
	if d.IsPositive() {
		sign = "+"
	}
	return sign + d.StringFixed(yieldDecimals) + "%"
}

// weightShare is weight/total as a percentage with one decimal.
func weightShare(weight, total *uint256.Int) string {
	if total == nil || total.IsZero() {
		return "0.0%"
	}
	w := decimal.NewFromBigInt(weight.ToBig(), 0)
	t := decimal.NewFromBigInt(total.ToBig(), 0)
	return w.Div(t).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// FormatTreasuryStatus formats the treasury bookkeeping for display.
func FormatTreasuryStatus(state *model.TreasuryState, lookup AssetLookup) string {
	symbol, decimals := lookup.resolve(state.StableCoin)
	var b strings.Builder
	b.WriteString("🏦 <b>Treasury</b>\n\n")
	b.WriteString(fmt.Sprintf("Stable balance: %s %s\n", FormatAmount(state.StableBalance, decimals), symbol))
	b.WriteString(fmt.Sprintf("Vaults: %d | Total weight: %s\n", len(state.Vaults), state.TotalWeight.Dec()))
	if !state.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatVaults lists registry entries with their weights and principal.
func FormatVaults(vaults []model.VaultEntry, totalWeight *uint256.Int, lookup AssetLookup) string {
	if len(vaults) == 0 {
		return "No vaults registered."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Vaults</b>\n\n")
	for i, v := range vaults {
		symbol, decimals := lookup.resolve(v.AssetID)
		b.WriteString(fmt.Sprintf("#%d %s (%s)\n", i, shortAddr(v.VaultID), symbol))
		b.WriteString(fmt.Sprintf("   weight %s (%s) | principal %s\n",
			v.Weight.Dec(), weightShare(v.Weight, totalWeight), FormatAmount(v.Principal, decimals)))
	}
	return b.String()
}

// FormatYieldReport formats one yield report. vaults supplies each entry's asset.
func FormatYieldReport(at time.Time, report []model.VaultYield, vaults []model.VaultEntry, lookup AssetLookup) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>Yield report</b> | %s\n\n", at.Format("2006-01-02")))
	if len(report) == 0 {
		b.WriteString("No funded vaults yet.\n")
		return b.String()
	}
	for _, y := range report {
		var decimals uint8
		symbol := ""
		if y.Index < len(vaults) {
			symbol, decimals = lookup.resolve(vaults[y.Index].AssetID)
		}
		b.WriteString(fmt.Sprintf("#%d %s: %s\n", y.Index, shortAddr(y.VaultID), FormatYield(y.Yield)))
		b.WriteString(fmt.Sprintf("   %s → %s %s\n",
			FormatAmount(y.Principal, decimals), FormatAmount(y.Value, decimals), symbol))
	}
	return b.String()
}

// FormatEvents lists events, one per line.
func FormatEvents(events []*model.Event, lookup AssetLookup) string {
	if len(events) == 0 {
		return "No history yet."
	}
	var b strings.Builder
	b.WriteString("🧾 <b>History</b>\n\n")
	for _, e := range events {
		b.WriteString(e.At.Format("01-02 15:04") + " " + describe(e, lookup) + "\n")
	}
	return b.String()
}

func describe(e *model.Event, lookup AssetLookup) string {
	symbol, decimals := lookup.resolve(e.Asset)
	amount := func(v *uint256.Int) string { return FormatAmount(v, decimals) + " " + symbol }
	switch e.Type {
	case model.EventVaultAdded:
		return fmt.Sprintf("vault #%d %s added, weight %s", e.Index, shortAddr(e.Vault), e.Weight.Dec())
	case model.EventAllocationUpdated:
		return fmt.Sprintf("vault #%d weight %s → %s", e.Index, e.OldWeight.Dec(), e.Weight.Dec())
	case model.EventDepositReceived:
		return fmt.Sprintf("deposit %s from %s", amount(e.Amount), shortAddr(e.Account))
	case model.EventVaultFunded:
		return fmt.Sprintf("vault #%d received %s", e.Index, amount(e.Secondary))
	case model.EventDistributed:
		return fmt.Sprintf("distributed %s, %s left idle", amount(e.Amount), amount(e.Secondary))
	case model.EventWithdrawn:
		return fmt.Sprintf("vault #%d: %s shares redeemed", e.Index, e.Amount.Dec())
	case model.EventSwept:
		return fmt.Sprintf("swept %s to %s", amount(e.Amount), shortAddr(e.Account))
	default:
		return string(e.Type)
	}
}
