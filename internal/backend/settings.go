package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/settings"
)

type vatWire struct {
	VatPercent        *number `json:"vat_percent"`
	VatRate           *number `json:"vat_rate"`
	IncludeVatInPrice *flag   `json:"include_vat_in_price"`
	VatInclusive      *flag   `json:"vat_inclusive"`
}

// FetchVatConfig implements settings.Source.
func (c *Client) FetchVatConfig(ctx context.Context) (pricing.VatConfig, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "vat_config", "/api/settings/vat", nil, &raw); err != nil {
		return pricing.VatConfig{}, err
	}
	var wire vatWire
	if err := json.Unmarshal(unwrapData(raw), &wire); err != nil {
		return pricing.VatConfig{}, &Error{Operation: "vat_config", Message: "unreadable vat config: " + err.Error()}
	}
	cfg := pricing.DefaultVatConfig()
	switch {
	case wire.VatPercent != nil:
		cfg.Percent = float64(*wire.VatPercent)
	case wire.VatRate != nil:
		cfg.Percent = float64(*wire.VatRate)
	default:
		return pricing.VatConfig{}, &Error{Operation: "vat_config", Message: "vat_percent missing"}
	}
	switch {
	case wire.IncludeVatInPrice != nil:
		cfg.Inclusive = bool(*wire.IncludeVatInPrice)
	case wire.VatInclusive != nil:
		cfg.Inclusive = bool(*wire.VatInclusive)
	}
	if cfg.Percent < 0 {
		return pricing.VatConfig{}, &Error{Operation: "vat_config", Message: fmt.Sprintf("negative vat percent %v", cfg.Percent)}
	}
	return cfg, nil
}

// FetchPaymentMode implements settings.Source.
func (c *Client) FetchPaymentMode(ctx context.Context) (settings.PaymentMode, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "payment_mode", "/api/settings/payment-mode", nil, &raw); err != nil {
		return "", err
	}
	var wire struct {
		PaymentMode string `json:"payment_mode"`
		Mode        string `json:"mode"`
	}
	if err := json.Unmarshal(unwrapData(raw), &wire); err != nil {
		return "", &Error{Operation: "payment_mode", Message: "unreadable payment mode: " + err.Error()}
	}
	value := wire.PaymentMode
	if value == "" {
		value = wire.Mode
	}
	mode, err := settings.ParsePaymentMode(value)
	if err != nil {
		return "", &Error{Operation: "payment_mode", Message: err.Error()}
	}
	return mode, nil
}

type billingWire struct {
	EnableTrialDate          flag   `json:"enable_trial_date"`
	EnableDeliveryDate       flag   `json:"enable_delivery_date"`
	EnableAdvancePayment     flag   `json:"enable_advance_payment"`
	EnableCustomerNotes      flag   `json:"enable_customer_notes"`
	EnableEmployeeAssignment flag   `json:"enable_employee_assignment"`
	DefaultDeliveryDays      number `json:"default_delivery_days"`
	DefaultTrialDays         number `json:"default_trial_days"`
	DefaultEmployeeID        ID     `json:"default_employee_id"`
}

// FetchBillingConfig implements settings.Source.
func (c *Client) FetchBillingConfig(ctx context.Context) (settings.BillingConfig, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "billing_config", "/api/settings/billing", nil, &raw); err != nil {
		return settings.BillingConfig{}, err
	}
	var wire billingWire
	if err := json.Unmarshal(unwrapData(raw), &wire); err != nil {
		return settings.BillingConfig{}, &Error{Operation: "billing_config", Message: "unreadable billing config: " + err.Error()}
	}
	return settings.BillingConfig{
		EnableTrialDate:          bool(wire.EnableTrialDate),
		EnableDeliveryDate:       bool(wire.EnableDeliveryDate),
		EnableAdvancePayment:     bool(wire.EnableAdvancePayment),
		EnableCustomerNotes:      bool(wire.EnableCustomerNotes),
		EnableEmployeeAssignment: bool(wire.EnableEmployeeAssignment),
		DefaultDeliveryDays:      max(int(wire.DefaultDeliveryDays), 0),
		DefaultTrialDays:         max(int(wire.DefaultTrialDays), 0),
		DefaultEmployeeID:        wire.DefaultEmployeeID.String(),
	}, nil
}
