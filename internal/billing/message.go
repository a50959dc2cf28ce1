package billing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Message languages.
const (
	LangEnglish = "en"
	LangArabic  = "ar"
)

type messageLabels struct {
	bill, draft, date, customer, subtotal, vat, total, advance, balance, delivery, trial, thanks string
}

var labels = map[string]messageLabels{
	LangEnglish: {
		bill:     "Bill No",
		draft:    "Draft",
		date:     "Date",
		customer: "Customer",
		subtotal: "Subtotal",
		vat:      "VAT",
		total:    "Total",
		advance:  "Advance",
		balance:  "Balance",
		delivery: "Delivery",
		trial:    "Trial",
		thanks:   "Thank you for your business!",
	},
	LangArabic: {
		bill:     "رقم الفاتورة",
		draft:    "مسودة",
		date:     "التاريخ",
		customer: "العميل",
		subtotal: "المجموع الفرعي",
		vat:      "ضريبة القيمة المضافة",
		total:    "الإجمالي",
		advance:  "المدفوع مقدماً",
		balance:  "المتبقي",
		delivery: "التسليم",
		trial:    "البروفة",
		thanks:   "شكراً لتعاملكم معنا",
	},
}

// NormalizeLanguage maps lang onto a supported message language, falling back
// to fallback and then English.
func NormalizeLanguage(lang, fallback string) string {
	for _, candidate := range []string{lang, fallback} {
		code, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(candidate)), "-")
		if _, ok := labels[code]; ok {
			return code
		}
	}
	return LangEnglish
}

// ComposeMessage renders the bill as plain text for a chat message. An unsaved
// bill is labelled as a draft.
func ComposeMessage(sub Submission, lang string) string {
	l := labels[NormalizeLanguage(lang, "")]
	bill := sub.Request.Bill

	var b strings.Builder
	number := bill.BillNumber
	if sub.Draft || number == "" {
		number = l.draft
	}
	fmt.Fprintf(&b, "%s: %s\n", l.bill, number)
	if bill.BillDate != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.date, bill.BillDate)
	}
	if bill.CustomerName != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.customer, bill.CustomerName)
	}
	b.WriteString("------------------\n")
	for i, it := range sub.Request.Items {
		fmt.Fprintf(&b, "%d. %s x%d @ %s = %s\n", i+1, it.ProductName, it.Quantity, pricing.Format(it.Rate), pricing.Format(it.Total))
	}
	b.WriteString("------------------\n")
	fmt.Fprintf(&b, "%s: %s\n", l.subtotal, pricing.Format(bill.Subtotal))
	fmt.Fprintf(&b, "%s (%s%%): %s\n", l.vat, strconv.FormatFloat(bill.VatPercent, 'f', -1, 64), pricing.Format(bill.VatAmount))
	fmt.Fprintf(&b, "%s: %s\n", l.total, pricing.Format(bill.TotalAmount))
	if bill.AdvancePaid > 0 {
		fmt.Fprintf(&b, "%s: %s\n", l.advance, pricing.Format(bill.AdvancePaid))
	}
	fmt.Fprintf(&b, "%s: %s\n", l.balance, pricing.Format(bill.BalanceAmount))
	if bill.DeliveryDate != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.delivery, bill.DeliveryDate)
	}
	if bill.TrialDate != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.trial, bill.TrialDate)
	}
	b.WriteString(l.thanks)
	return b.String()
}

// WhatsAppLink builds a wa.me link for phone carrying text. Non-digits are
// dropped, a leading 00 is stripped and a single leading 0 is replaced by
// countryCode.
func WhatsAppLink(phone, text, countryCode string) (string, error) {
	digits := onlyDigits(phone)
	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = onlyDigits(countryCode) + digits[1:]
	}
	if digits == "" {
		return "", ErrMissingMobile
	}
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + escaped, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
