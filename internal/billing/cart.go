package billing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/settings"
)

// Rules are the shop settings a cart computation reads. They are taken from
// the settings provider at the moment of each operation.
type Rules struct {
	Vat  pricing.VatConfig
	Mode settings.PaymentMode
}

// Cart is the ordered list of line items. Insertion order is display order.
type Cart struct {
	items []LineItem
}

// AddResult describes what Add did.
type AddResult struct {
	Index    int  `json:"index"`
	Merged   bool `json:"merged"`
	Declined bool `json:"declined"`
}

// Item fields accepted by UpdateField.
const (
	FieldQuantity    = "quantity"
	FieldRate        = "rate"
	FieldDiscount    = "discount"
	FieldAdvancePaid = "advance_paid"
	FieldNotes       = "notes"
)

// Items returns a copy of the line items.
func (c *Cart) Items() []LineItem {
	return append([]LineItem(nil), c.items...)
}

// Len returns the number of line items.
func (c *Cart) Len() int { return len(c.items) }

// Totals aggregates the cached item amounts.
func (c *Cart) Totals() pricing.Totals {
	items := make([]pricing.Item, len(c.items))
	for i, it := range c.items {
		items[i] = it.Item
	}
	return pricing.ComputeTotals(items)
}

func (c *Cart) clone() *Cart {
	return &Cart{items: c.Items()}
}

func (c *Cart) clear() { c.items = nil }

func (c *Cart) indexOf(id string) int {
	for i, it := range c.items {
		if it.ProductID.String() == id {
			return i
		}
	}
	return -1
}

// Add appends a new line item, or merges it into the row holding the same
// product after the confirmer agrees. Declining leaves the cart untouched.
func (c *Cart) Add(ctx context.Context, draft Draft, rules Rules, confirm Confirmer) (AddResult, error) {
	d, err := ParseDraft(draft)
	if err != nil {
		return AddResult{}, err
	}
	advance := d.AdvancePaid
	if !rules.Mode.AllowsAdvance() {
		advance = 0
	}

	if idx := c.indexOf(d.ProductID.String()); idx >= 0 {
		existing := c.items[idx]
		if existing.Quantity > math.MaxInt32-d.Quantity {
			return AddResult{}, &ValidationError{Fields: map[string]string{
				"quantity": fmt.Sprintf("must be at most %d in total, %d already on this bill", math.MaxInt32, existing.Quantity),
			}}
		}
		ok, err := confirm.Confirm(ctx, Prompt{
			Kind:    PromptMerge,
			Field:   "confirm_merge",
			Message: fmt.Sprintf("%s is already on this bill with quantity %d. Add %d more?", existing.ProductName, existing.Quantity, d.Quantity),
		})
		if err != nil {
			return AddResult{}, err
		}
		if !ok {
			return AddResult{Index: idx, Declined: true}, nil
		}
		existing.Quantity += d.Quantity
		existing.Rate = d.Rate
		existing.Discount = d.Discount
		existing.AdvancePaid = advance
		if d.Notes != "" {
			existing.Notes = d.Notes
		}
		c.items[idx] = price(existing, rules)
		return AddResult{Index: idx, Merged: true}, nil
	}

	item := LineItem{
		ProductID:   d.ProductID,
		ProductName: d.ProductName,
		Item: pricing.Item{
			Quantity:    d.Quantity,
			Rate:        d.Rate,
			Discount:    d.Discount,
			AdvancePaid: advance,
		},
		Notes: d.Notes,
	}
	c.items = append(c.items, price(item, rules))
	return AddResult{Index: len(c.items) - 1}, nil
}

// EditLoad removes the item at index and returns it so the caller can put it
// back into the entry form. The item is gone from the cart until re-added.
func (c *Cart) EditLoad(index int) (LineItem, error) {
	if index < 0 || index >= len(c.items) {
		return LineItem{}, ErrItemNotFound
	}
	item := c.items[index]
	c.items = append(c.items[:index:index], c.items[index+1:]...)
	return item, nil
}

// Delete removes the item at index once the confirmer agrees. It reports
// whether the item was removed.
func (c *Cart) Delete(ctx context.Context, index int, confirm Confirmer) (bool, error) {
	if index < 0 || index >= len(c.items) {
		return false, ErrItemNotFound
	}
	ok, err := confirm.Confirm(ctx, Prompt{
		Kind:    PromptDelete,
		Field:   "confirm",
		Message: fmt.Sprintf("Remove %s from this bill? This cannot be undone.", c.items[index].ProductName),
	})
	if err != nil || !ok {
		return false, err
	}
	c.items = append(c.items[:index:index], c.items[index+1:]...)
	return true, nil
}

// UpdateField coerces value for field, stores it on the item at index and
// recomputes the item.
func (c *Cart) UpdateField(index int, field string, value any, rules Rules) (LineItem, error) {
	if index < 0 || index >= len(c.items) {
		return LineItem{}, ErrItemNotFound
	}
	item := c.items[index]
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldQuantity:
		item.Quantity = coerceQuantity(value)
	case FieldRate:
		item.Rate = coerceAmount(value)
	case FieldDiscount:
		item.Discount = math.Min(coerceAmount(value), 100)
	case FieldAdvancePaid:
		item.AdvancePaid = coerceAmount(value)
	case FieldNotes:
		item.Notes = strings.TrimSpace(coerceString(value))
	default:
		return LineItem{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	c.items[index] = price(item, rules)
	return c.items[index], nil
}

// Reprice recomputes every item against rules.
func (c *Cart) Reprice(rules Rules) {
	for i := range c.items {
		c.items[i] = price(c.items[i], rules)
	}
}

// price recomputes the derived amounts and repairs the advance invariant.
func price(item LineItem, rules Rules) LineItem {
	item.Item = pricing.Recompute(item.Item, rules.Vat.Percent, rules.Vat.Inclusive)
	if !rules.Mode.AllowsAdvance() {
		item.AdvancePaid = 0
	}
	item.Item = pricing.ClampAdvance(item.Item)
	return item
}

func coerceQuantity(value any) int {
	var q float64
	switch v := value.(type) {
	case float64:
		q = v
	case int:
		q = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 1
		}
		q = parsed
	default:
		return 1
	}
	q = math.Trunc(finite(q))
	if q < 1 || q > math.MaxInt32 {
		return 1
	}
	return int(q)
}

func coerceAmount(value any) float64 {
	var a float64
	switch v := value.(type) {
	case float64:
		a = v
	case int:
		a = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		a = parsed
	default:
		return 0
	}
	return math.Max(finite(a), 0)
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
