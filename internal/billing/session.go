package billing

import (
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/backend-kasir/internal/backend"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/settings"
)

// State is the workflow position of a bill. It is derived from the session
// data rather than stored.
type State string

const (
	StateEmpty     State = "empty"
	StateComposing State = "composing"
	StateSaved     State = "saved"
)

// Customer holds the customer fields of the bill.
type Customer struct {
	Name    string `json:"name" validate:"max=200"`
	Mobile  string `json:"mobile" validate:"max=32"`
	Address string `json:"address" validate:"max=500"`
	City    string `json:"city" validate:"max=100"`
	Area    string `json:"area" validate:"max=100"`
	TRN     string `json:"trn" validate:"max=32"`
}

// Meta holds bill metadata. Dates use YYYY-MM-DD.
type Meta struct {
	BillNumber   string `json:"bill_number" validate:"max=64"`
	BillDate     string `json:"bill_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryDate string `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	TrialDate    string `json:"trial_date" validate:"omitempty,datetime=2006-01-02"`
	EmployeeID   string `json:"employee_id" validate:"max=64"`
	Notes        string `json:"notes" validate:"max=1000"`
}

func (c Customer) trimmed() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Mobile:  strings.TrimSpace(c.Mobile),
		Address: strings.TrimSpace(c.Address),
		City:    strings.TrimSpace(c.City),
		Area:    strings.TrimSpace(c.Area),
		TRN:     strings.TrimSpace(c.TRN),
	}
}

func (m Meta) trimmed() Meta {
	return Meta{
		BillNumber:   strings.TrimSpace(m.BillNumber),
		BillDate:     strings.TrimSpace(m.BillDate),
		DeliveryDate: strings.TrimSpace(m.DeliveryDate),
		TrialDate:    strings.TrimSpace(m.TrialDate),
		EmployeeID:   strings.TrimSpace(m.EmployeeID),
		Notes:        strings.TrimSpace(m.Notes),
	}
}

// Session is one open billing screen: the cart, the customer and bill fields,
// and the workflow state. All access goes through the Service.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	cart       *Cart
	customer   Customer
	meta       Meta
	billID     backend.ID
	pending    string
	generation uint64
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, cart: &Cart{}}
}

func (s *Session) stateLocked() State {
	switch {
	case !s.billID.IsZero():
		return StateSaved
	case s.cart.Len() > 0:
		return StateComposing
	default:
		return StateEmpty
	}
}

// begin marks action as in flight. Only one action runs per session.
func (s *Session) begin(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != "" {
		return ErrActionInProgress
	}
	s.pending = action
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.pending = ""
	s.mu.Unlock()
}

// editableLocked reports whether cart, customer or meta may change.
func (s *Session) editableLocked() error {
	if s.pending != "" {
		return ErrActionInProgress
	}
	if !s.billID.IsZero() {
		return ErrBillLocked
	}
	return nil
}

// ItemView is a line item as shown to the user, amounts rounded to 2 dp.
type ItemView struct {
	Index int `json:"index"`
	LineItem
}

// View is the rendered session.
type View struct {
	ID            string               `json:"id"`
	State         State                `json:"state"`
	Items         []ItemView           `json:"items"`
	Totals        pricing.Totals       `json:"totals"`
	Customer      Customer             `json:"customer"`
	Meta          Meta                 `json:"meta"`
	BillID        backend.ID           `json:"bill_id"`
	PaymentMode   settings.PaymentMode `json:"payment_mode"`
	Vat           pricing.VatConfig    `json:"vat"`
	PendingAction string               `json:"pending_action,omitempty"`
	Warning       string               `json:"warning,omitempty"`
}

func (s *Session) viewLocked(rules Rules) View {
	items := s.cart.Items()
	views := make([]ItemView, len(items))
	for i, it := range items {
		it.Item = it.Item.Rounded()
		views[i] = ItemView{Index: i, LineItem: it}
	}
	return View{
		ID:            s.ID,
		State:         s.stateLocked(),
		Items:         views,
		Totals:        s.cart.Totals().Rounded(),
		Customer:      s.customer,
		Meta:          s.meta,
		BillID:        s.billID,
		PaymentMode:   rules.Mode,
		Vat:           rules.Vat,
		PendingAction: s.pending,
	}
}
