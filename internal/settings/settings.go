// Package settings holds the shop configuration every bill computation reads:
// the VAT rule, the payment mode and the billing screen feature flags.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// PaymentMode gates whether line items may carry an advance payment.
type PaymentMode string

const (
	// PaymentFull requires the bill to be paid at creation; advances are forced to zero.
	PaymentFull PaymentMode = "full"
	// PaymentAdvance allows per-item advance payments.
	PaymentAdvance PaymentMode = "advance"
)

// DefaultPaymentMode applies until the backend has been read.
const DefaultPaymentMode = PaymentAdvance

// ParsePaymentMode accepts the backend spellings of the two modes.
func ParsePaymentMode(raw string) (PaymentMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "full", "full_payment", "full-payment":
		return PaymentFull, nil
	case "advance", "advance_payment", "advance-payment", "partial":
		return PaymentAdvance, nil
	default:
		return "", fmt.Errorf("unknown payment mode %q", raw)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *PaymentMode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("payment mode must be a string: %w", err)
	}
	parsed, err := ParsePaymentMode(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// AllowsAdvance reports whether advance payments are editable.
func (m PaymentMode) AllowsAdvance() bool { return m != PaymentFull }

// BillingConfig mirrors the billing screen options of the shop settings.
type BillingConfig struct {
	EnableTrialDate          bool   `json:"enable_trial_date"`
	EnableDeliveryDate       bool   `json:"enable_delivery_date"`
	EnableAdvancePayment     bool   `json:"enable_advance_payment"`
	EnableCustomerNotes      bool   `json:"enable_customer_notes"`
	EnableEmployeeAssignment bool   `json:"enable_employee_assignment"`
	DefaultDeliveryDays      int    `json:"default_delivery_days"`
	DefaultTrialDays         int    `json:"default_trial_days"`
	DefaultEmployeeID        string `json:"default_employee_id,omitempty"`
}

// DefaultBillingConfig applies until the backend has been read.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		EnableDeliveryDate:   true,
		EnableAdvancePayment: true,
		EnableCustomerNotes:  true,
	}
}

// Snapshot is the full configuration at one point in time.
type Snapshot struct {
	Vat         pricing.VatConfig `json:"vat"`
	PaymentMode PaymentMode       `json:"payment_mode"`
	Billing     BillingConfig     `json:"billing"`
	Loaded      bool              `json:"loaded"`
	LoadedAt    time.Time         `json:"loaded_at,omitempty"`
}

// DefaultSnapshot returns the configuration used before any load.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Vat:         pricing.DefaultVatConfig(),
		PaymentMode: DefaultPaymentMode,
		Billing:     DefaultBillingConfig(),
	}
}

// EffectivePaymentMode folds the billing flag into the payment mode: a shop
// that disabled advance payments behaves as full payment.
func (s Snapshot) EffectivePaymentMode() PaymentMode {
	if !s.Billing.EnableAdvancePayment {
		return PaymentFull
	}
	return s.PaymentMode
}
