package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// NextBillNumber returns the number the backend will suggest for the next bill.
func (c *Client) NextBillNumber(ctx context.Context) (string, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "next_bill_number", "/api/bills/next-number", nil, &raw); err != nil {
		return "", err
	}
	data := unwrapData(raw)
	var wire struct {
		BillNumber     ID `json:"bill_number"`
		NextBillNumber ID `json:"next_bill_number"`
		Number         ID `json:"number"`
	}
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return "", &Error{Operation: "next_bill_number", Message: "unreadable bill number: " + err.Error()}
		}
		for _, candidate := range []ID{wire.BillNumber, wire.NextBillNumber, wire.Number} {
			if !candidate.IsZero() {
				return candidate.String(), nil
			}
		}
		return "", &Error{Operation: "next_bill_number", Message: "bill number missing"}
	}
	var bare ID
	if err := json.Unmarshal(data, &bare); err != nil || bare.IsZero() {
		return "", &Error{Operation: "next_bill_number", Message: "bill number missing"}
	}
	return bare.String(), nil
}

// CreateBill persists a bill. It is never retried.
func (c *Client) CreateBill(ctx context.Context, bill BillRequest) (CreatedBill, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "create_bill", "/api/bills", bill, &raw); err != nil {
		return CreatedBill{}, err
	}
	var created CreatedBill
	if err := json.Unmarshal(unwrapData(raw), &created); err != nil {
		return CreatedBill{}, &Error{Operation: "create_bill", Message: "unreadable response: " + err.Error()}
	}
	if created.BillID.IsZero() {
		return CreatedBill{}, &Error{Operation: "create_bill", Message: "bill_id missing from response"}
	}
	if created.BillNumber.IsZero() {
		created.BillNumber = ID(bill.Bill.BillNumber)
	}
	return created, nil
}

// SendBillMessage asks the backend for a WhatsApp link for a saved bill.
func (c *Client) SendBillMessage(ctx context.Context, billID ID, phone, language string) (MessageLink, error) {
	body := map[string]string{"phone": phone, "language": language}
	var raw json.RawMessage
	path := "/api/bills/" + url.PathEscape(billID.String()) + "/whatsapp"
	if err := c.post(ctx, "send_bill_message", path, body, &raw); err != nil {
		return MessageLink{}, err
	}
	var link MessageLink
	if err := json.Unmarshal(unwrapData(raw), &link); err != nil {
		return MessageLink{}, &Error{Operation: "send_bill_message", Message: "unreadable response: " + err.Error()}
	}
	if strings.TrimSpace(link.WhatsAppURL) == "" {
		return MessageLink{}, &Error{Operation: "send_bill_message", Message: "whatsapp_url missing from response"}
	}
	return link, nil
}
