package billing

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/backend"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// LineItem is one product row of the bill being composed.
type LineItem struct {
	ProductID   backend.ID `json:"product_id"`
	ProductName string     `json:"product_name"`
	pricing.Item
	Notes string `json:"notes,omitempty"`
}

// Draft is validated, already coerced input for Cart.Add.
type Draft struct {
	ProductID   backend.ID `json:"product_id" validate:"required"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity" validate:"gt=0,lte=2147483647"`
	Rate        float64    `json:"rate" validate:"gt=0"`
	Discount    float64    `json:"discount" validate:"gte=0,lte=100"`
	AdvancePaid float64    `json:"advance_paid" validate:"gte=0"`
	Notes       string     `json:"notes" validate:"max=500"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseDraft trims and clamps raw input, then validates the hard rules:
// a product must be selected and quantity and rate must be positive.
// Discount and advance are clamped rather than rejected.
func ParseDraft(d Draft) (Draft, error) {
	d.ProductID = backend.ID(strings.TrimSpace(d.ProductID.String()))
	d.ProductName = strings.TrimSpace(d.ProductName)
	if d.ProductName == "" {
		d.ProductName = d.ProductID.String()
	}
	d.Notes = strings.TrimSpace(d.Notes)
	d.Rate = finite(d.Rate)
	d.Discount = clamp(finite(d.Discount), 0, 100)
	d.AdvancePaid = math.Max(finite(d.AdvancePaid), 0)
	if err := validate.Struct(d); err != nil {
		return Draft{}, toValidationError(err)
	}
	return d, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describeRule(fe)
	}
	return out
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "is too long"
	case "datetime":
		return "must be a YYYY-MM-DD date"
	default:
		return "is invalid"
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
