package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is an identifier the shop backend may send as a number or a string.
// Numeric ids are written back as JSON numbers.
type ID string

// String returns the id text.
func (id ID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// number accepts 5, 5.5 or "5.5".
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

// flag accepts true, 1, "1", "true", "yes".
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch raw {
	case "true", "1", "yes", "on":
		*f = true
	case "false", "0", "no", "off", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %q", raw)
	}
	return nil
}

// Product is a product search hit.
type Product struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Rate        float64 `json:"rate"`
	Description string  `json:"description,omitempty"`
}

// Customer is a customer search hit.
type Customer struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Area    string `json:"area,omitempty"`
	TRN     string `json:"trn,omitempty"`
}

type productWire struct {
	ID          ID     `json:"id"`
	ProductID   ID     `json:"product_id"`
	Name        string `json:"name"`
	ProductName string `json:"product_name"`
	Rate        number `json:"rate"`
	Price       number `json:"price"`
	Description string `json:"description"`
}

func (w productWire) product() Product {
	p := Product{ID: w.ID, Name: w.Name, Rate: float64(w.Rate), Description: w.Description}
	if p.ID.IsZero() {
		p.ID = w.ProductID
	}
	if p.Name == "" {
		p.Name = w.ProductName
	}
	if p.Rate == 0 {
		p.Rate = float64(w.Price)
	}
	return p
}

type customerWire struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
	City    string `json:"city"`
	Area    string `json:"area"`
	TRN     string `json:"trn"`
}

func (w customerWire) customer() Customer {
	c := Customer{ID: w.ID, Name: w.Name, Phone: w.Phone, Address: w.Address, City: w.City, Area: w.Area, TRN: w.TRN}
	if c.Phone == "" {
		c.Phone = w.Mobile
	}
	return c
}

// BillHeader holds the bill level and customer fields of a create-bill call.
type BillHeader struct {
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerAddress string  `json:"customer_address,omitempty"`
	CustomerCity    string  `json:"customer_city,omitempty"`
	CustomerArea    string  `json:"customer_area,omitempty"`
	CustomerTRN     string  `json:"customer_trn,omitempty"`
	BillNumber      string  `json:"bill_number,omitempty"`
	BillDate        string  `json:"bill_date,omitempty"`
	DeliveryDate    string  `json:"delivery_date,omitempty"`
	TrialDate       string  `json:"trial_date,omitempty"`
	EmployeeID      ID      `json:"employee_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	PaymentMode     string  `json:"payment_mode"`
	Subtotal        float64 `json:"subtotal"`
	VatAmount       float64 `json:"vat_amount"`
	VatPercent      float64 `json:"vat_percent"`
	TotalAmount     float64 `json:"total_amount"`
	AdvancePaid     float64 `json:"advance_paid"`
	BalanceAmount   float64 `json:"balance_amount"`
}

// BillItem is one line of a create-bill call.
type BillItem struct {
	ProductID   ID      `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
	Discount    float64 `json:"discount"`
	VatPercent  float64 `json:"vat_percent"`
	VatAmount   float64 `json:"vat_amount"`
	Subtotal    float64 `json:"subtotal"`
	Total       float64 `json:"total"`
	AdvancePaid float64 `json:"advance_paid"`
	Notes       string  `json:"notes,omitempty"`
}

// BillRequest is the create-bill body.
type BillRequest struct {
	Bill  BillHeader `json:"bill"`
	Items []BillItem `json:"items"`
}

// CreatedBill is the create-bill success response.
type CreatedBill struct {
	BillID     ID `json:"bill_id"`
	BillNumber ID `json:"bill_number"`
}

// MessageLink is the send-message response.
type MessageLink struct {
	WhatsAppURL string `json:"whatsapp_url"`
}

// envelope captures the failure fields the backend may attach to any body.
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e envelope) failure() (string, bool) {
	if strings.TrimSpace(e.Error) != "" {
		return e.Error, true
	}
	if e.Success != nil && !*e.Success {
		if e.Message != "" {
			return e.Message, true
		}
		return "request was not successful", true
	}
	return "", false
}
