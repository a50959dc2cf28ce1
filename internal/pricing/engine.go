package pricing

import "github.com/shopspring/decimal"

// Fallback VAT settings applied until the shop configuration has been loaded.
const (
	DefaultVatPercent = 5.0
	DefaultInclusive  = false
)

// VatConfig describes the active VAT rate and whether entered rates already include it.
type VatConfig struct {
	Percent   float64 `json:"vat_percent"`
	Inclusive bool    `json:"include_vat_in_price"`
}

// DefaultVatConfig returns the configuration used before any shop settings are known.
func DefaultVatConfig() VatConfig {
	return VatConfig{Percent: DefaultVatPercent, Inclusive: DefaultInclusive}
}

// Item describes a line item used for pricing calculation. Subtotal, VatAmount
// and Total are derived and written by Recompute.
type Item struct {
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
	Discount    float64 `json:"discount"`
	VatPercent  float64 `json:"vat_percent"`
	AdvancePaid float64 `json:"advance_paid"`
	Subtotal    float64 `json:"subtotal"`
	VatAmount   float64 `json:"vat_amount"`
	Total       float64 `json:"total"`
}

// Totals aggregates bill level amounts.
type Totals struct {
	Subtotal           float64 `json:"subtotal"`
	TotalVat           float64 `json:"total_vat"`
	TotalAdvance       float64 `json:"total_advance"`
	AmountDue          float64 `json:"amount_due"`
	TotalBeforeAdvance float64 `json:"total_before_advance"`
}

// Recompute returns item with its derived amounts populated for the provided
// VAT settings. Inputs are expected to be coerced already: non-negative
// quantity and rate, discount within 0..100. Values are kept at full precision.
// The applied rate is recorded on the item.
func Recompute(item Item, vatPercent float64, inclusive bool) Item {
	item.VatPercent = vatPercent
	base := float64(item.Quantity) * item.Rate
	discounted := base * (1 - item.Discount/100)
	if inclusive {
		item.Total = discounted
		item.Subtotal = discounted / (1 + vatPercent/100)
		item.VatAmount = item.Total - item.Subtotal
		return item
	}
	item.Subtotal = discounted
	item.VatAmount = item.Subtotal * vatPercent / 100
	item.Total = item.Subtotal + item.VatAmount
	return item
}

// ClampAdvance bounds the advance payment of item to [0, Total].
func ClampAdvance(item Item) Item {
	if item.AdvancePaid < 0 {
		item.AdvancePaid = 0
	}
	if item.AdvancePaid > item.Total {
		item.AdvancePaid = item.Total
	}
	return item
}

// ComputeTotals sums the derived amounts of items. It has no hidden state and
// only reads the cached per-item values, so it must be called after Recompute.
func ComputeTotals(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.Subtotal
		t.TotalVat += it.VatAmount
		t.TotalAdvance += it.AdvancePaid
		t.TotalBeforeAdvance += it.Total
	}
	t.AmountDue = t.TotalBeforeAdvance - t.TotalAdvance
	return t
}

// Rounded returns a copy of t with every amount rounded to two decimals.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:           Round2(t.Subtotal),
		TotalVat:           Round2(t.TotalVat),
		TotalAdvance:       Round2(t.TotalAdvance),
		AmountDue:          Round2(t.AmountDue),
		TotalBeforeAdvance: Round2(t.TotalBeforeAdvance),
	}
}

// Rounded returns a copy of it with monetary amounts rounded to two decimals.
func (it Item) Rounded() Item {
	it.Rate = Round2(it.Rate)
	it.AdvancePaid = Round2(it.AdvancePaid)
	it.Subtotal = Round2(it.Subtotal)
	it.VatAmount = Round2(it.VatAmount)
	it.Total = Round2(it.Total)
	return it
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Format renders v with exactly two decimals.
func Format(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
