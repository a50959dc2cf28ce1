package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-kasir/internal/backend"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/settings"
)

const dateLayout = "2006-01-02"

// Backend is the part of the shop backend the workflow calls.
type Backend interface {
	NextBillNumber(ctx context.Context) (string, error)
	CreateBill(ctx context.Context, bill backend.BillRequest) (backend.CreatedBill, error)
	SendBillMessage(ctx context.Context, billID backend.ID, phone, language string) (backend.MessageLink, error)
	PrintURL(billID backend.ID) string
}

// Settings exposes the current shop configuration.
type Settings interface {
	Vat() pricing.VatConfig
	PaymentMode() settings.PaymentMode
	Billing() settings.BillingConfig
}

// Service runs cart edits and the save, print, share and reset workflow on
// stored sessions.
type Service struct {
	Store    *Store
	Backend  Backend
	Settings Settings
	Guard    lock.Guard
	Events   *events.Bus
	Logger   zerolog.Logger

	PrintResetDelay time.Duration
	SaveGuardTTL    time.Duration
	CountryCode     string
	DefaultLanguage string

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func())
}

// Submission is a prepared create-bill payload. Amounts are rounded to 2 dp.
type Submission struct {
	Request backend.BillRequest `json:"request"`
	Totals  pricing.Totals      `json:"totals"`
	Draft   bool                `json:"draft"`
}

// SaveResult describes a saved bill.
type SaveResult struct {
	BillID       backend.ID `json:"bill_id"`
	BillNumber   string     `json:"bill_number"`
	AlreadySaved bool       `json:"already_saved,omitempty"`
	View         View       `json:"session"`
}

// PrintResult carries the print view of a saved bill.
type PrintResult struct {
	BillID       backend.ID `json:"bill_id"`
	BillNumber   string     `json:"bill_number"`
	PrintURL     string     `json:"print_url"`
	ResetAfterMS int64      `json:"reset_after_ms"`
}

// Share modes.
const (
	ShareSaved = "saved"
	ShareDraft = "draft"
)

// ShareRequest holds the answers a share call may need.
type ShareRequest struct {
	SaveFirst *bool  `json:"save_first"`
	Language  string `json:"language"`
}

// ShareResult carries the links produced by a share.
type ShareResult struct {
	Mode        string     `json:"mode"`
	BillID      backend.ID `json:"bill_id,omitempty"`
	BillNumber  string     `json:"bill_number,omitempty"`
	WhatsAppURL string     `json:"whatsapp_url"`
	PrintURL    string     `json:"print_url,omitempty"`
	Message     string     `json:"message,omitempty"`
	View        View       `json:"session"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) afterFunc(d time.Duration, f func()) {
	if s.AfterFunc != nil {
		s.AfterFunc(d, f)
		return
	}
	time.AfterFunc(d, f)
}

func (s *Service) guard() lock.Guard {
	if s.Guard == nil {
		s.Guard = lock.NewMemoryGuard()
	}
	return s.Guard
}

// Rules reads the current VAT and payment mode.
func (s *Service) Rules() Rules {
	if s.Settings == nil {
		return Rules{Vat: pricing.DefaultVatConfig(), Mode: settings.DefaultPaymentMode}
	}
	return Rules{Vat: s.Settings.Vat(), Mode: s.Settings.PaymentMode()}
}

func (s *Service) billing() settings.BillingConfig {
	if s.Settings == nil {
		return settings.DefaultBillingConfig()
	}
	return s.Settings.Billing()
}

func (s *Service) session(id string) (*Session, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("billing service not configured")
	}
	return s.Store.Get(id)
}

// Create opens a session with defaults applied. A failed bill number lookup
// leaves the number blank and is reported as a warning.
func (s *Service) Create(ctx context.Context) (View, error) {
	if s == nil || s.Store == nil {
		return View{}, errors.New("billing service not configured")
	}
	sess := s.Store.Create()
	sess.mu.Lock()
	gen := s.clearLocked(sess)
	sess.mu.Unlock()
	err := s.fillBillNumber(ctx, sess, gen)
	view := s.view(sess)
	if err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("next bill number unavailable")
		view.Warning = "next bill number unavailable; enter it manually"
	}
	return view, nil
}

// Discard removes the session.
func (s *Service) Discard(id string) error {
	if s == nil || s.Store == nil || !s.Store.Delete(id) {
		return ErrSessionNotFound
	}
	return nil
}

// View renders the session.
func (s *Service) View(id string) (View, error) {
	sess, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

func (s *Service) view(sess *Session) View {
	rules := s.Rules()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked(rules)
}

// edit applies fn to a copy of the cart and swaps it in on success, then
// reprices every item against the current rules.
func (s *Service) edit(id, op string, fn func(sess *Session, cart *Cart, rules Rules) error) (View, error) {
	sess, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	rules := s.Rules()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.editableLocked(); err != nil {
		return View{}, err
	}
	cart := sess.cart.clone()
	if err := fn(sess, cart, rules); err != nil {
		return View{}, err
	}
	cart.Reprice(rules)
	sess.cart = cart
	obs.RecordCartMutation(op)
	return sess.viewLocked(rules), nil
}

// AddItem adds draft to the cart. Merging into an existing row for the same
// product asks confirm first.
func (s *Service) AddItem(ctx context.Context, id string, draft Draft, confirm Confirmer) (AddResult, View, error) {
	var res AddResult
	view, err := s.edit(id, "add", func(_ *Session, cart *Cart, rules Rules) error {
		var err error
		res, err = cart.Add(ctx, draft, rules, confirm)
		return err
	})
	return res, view, err
}

// UpdateItem sets one field of the item at index.
func (s *Service) UpdateItem(id string, index int, field string, value any) (View, error) {
	return s.edit(id, "update", func(_ *Session, cart *Cart, rules Rules) error {
		_, err := cart.UpdateField(index, field, value, rules)
		return err
	})
}

// EditItem moves the item at index out of the cart and returns it.
func (s *Service) EditItem(id string, index int) (LineItem, View, error) {
	var item LineItem
	view, err := s.edit(id, "edit_load", func(_ *Session, cart *Cart, _ Rules) error {
		var err error
		item, err = cart.EditLoad(index)
		return err
	})
	if err == nil {
		item.Item = item.Item.Rounded()
	}
	return item, view, err
}

// DeleteItem removes the item at index once confirm agrees.
func (s *Service) DeleteItem(ctx context.Context, id string, index int, confirm Confirmer) (bool, View, error) {
	var removed bool
	view, err := s.edit(id, "delete", func(_ *Session, cart *Cart, _ Rules) error {
		var err error
		removed, err = cart.Delete(ctx, index, confirm)
		return err
	})
	return removed, view, err
}

// SetCustomer replaces the customer fields.
func (s *Service) SetCustomer(id string, c Customer) (View, error) {
	c = c.trimmed()
	if err := validate.Struct(c); err != nil {
		return View{}, toValidationError(err)
	}
	return s.edit(id, "customer", func(sess *Session, _ *Cart, _ Rules) error {
		sess.customer = c
		return nil
	})
}

// SetMeta replaces the bill metadata.
func (s *Service) SetMeta(id string, m Meta) (View, error) {
	m = m.trimmed()
	if err := validate.Struct(m); err != nil {
		return View{}, toValidationError(err)
	}
	return s.edit(id, "meta", func(sess *Session, _ *Cart, _ Rules) error {
		sess.meta = m
		return nil
	})
}

// Prepare builds the create-bill payload without saving. Every item is
// repriced against the current VAT first.
func (s *Service) Prepare(id string) (Submission, error) {
	sess, err := s.session(id)
	if err != nil {
		return Submission{}, err
	}
	rules := s.Rules()
	cfg := s.billing()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.prepareLocked(sess, rules, cfg)
}

func (s *Service) prepareLocked(sess *Session, rules Rules, cfg settings.BillingConfig) (Submission, error) {
	if sess.cart.Len() == 0 {
		return Submission{}, ErrEmptyCart
	}
	if strings.TrimSpace(sess.customer.Mobile) == "" {
		return Submission{}, ErrMissingMobile
	}
	sess.cart.Reprice(rules)
	totals := sess.cart.Totals().Rounded()

	meta := sess.meta
	if !cfg.EnableDeliveryDate {
		meta.DeliveryDate = ""
	}
	if !cfg.EnableTrialDate {
		meta.TrialDate = ""
	}
	if !cfg.EnableEmployeeAssignment {
		meta.EmployeeID = ""
	}
	if !cfg.EnableCustomerNotes {
		meta.Notes = ""
	}

	items := sess.cart.Items()
	reqItems := make([]backend.BillItem, len(items))
	for i, it := range items {
		r := it.Item.Rounded()
		reqItems[i] = backend.BillItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    r.Quantity,
			Rate:        r.Rate,
			Discount:    r.Discount,
			VatPercent:  r.VatPercent,
			VatAmount:   r.VatAmount,
			Subtotal:    r.Subtotal,
			Total:       r.Total,
			AdvancePaid: r.AdvancePaid,
			Notes:       it.Notes,
		}
	}
	c := sess.customer
	return Submission{
		Request: backend.BillRequest{
			Bill: backend.BillHeader{
				CustomerName:    c.Name,
				CustomerPhone:   c.Mobile,
				CustomerAddress: c.Address,
				CustomerCity:    c.City,
				CustomerArea:    c.Area,
				CustomerTRN:     c.TRN,
				BillNumber:      meta.BillNumber,
				BillDate:        meta.BillDate,
				DeliveryDate:    meta.DeliveryDate,
				TrialDate:       meta.TrialDate,
				EmployeeID:      backend.ID(meta.EmployeeID),
				Notes:           meta.Notes,
				PaymentMode:     string(rules.Mode),
				Subtotal:        totals.Subtotal,
				VatAmount:       totals.TotalVat,
				VatPercent:      rules.Vat.Percent,
				TotalAmount:     totals.TotalBeforeAdvance,
				AdvancePaid:     totals.TotalAdvance,
				BalanceAmount:   totals.AmountDue,
			},
			Items: reqItems,
		},
		Totals: totals,
		Draft:  sess.billID.IsZero(),
	}, nil
}

// Save persists the bill. Saving an already saved bill returns it unchanged.
// On failure the session stays as it was.
func (s *Service) Save(ctx context.Context, id string) (res SaveResult, err error) {
	sess, err := s.session(id)
	if err != nil {
		return SaveResult{}, err
	}
	if err := sess.begin("save"); err != nil {
		return SaveResult{}, err
	}
	defer sess.end()
	ctx, end := obs.StartSpan(ctx, "billing.save", attribute.String("billing.session_id", id))
	defer func() {
		end(err)
		obs.RecordBillAction("save", err)
	}()

	res, err = s.save(ctx, sess)
	if err != nil {
		return SaveResult{}, err
	}
	res.View = s.view(sess)
	return res, nil
}

func (s *Service) save(ctx context.Context, sess *Session) (SaveResult, error) {
	rules := s.Rules()
	cfg := s.billing()
	sess.mu.Lock()
	if !sess.billID.IsZero() {
		res := SaveResult{BillID: sess.billID, BillNumber: sess.meta.BillNumber, AlreadySaved: true}
		sess.mu.Unlock()
		return res, nil
	}
	sub, err := s.prepareLocked(sess, rules, cfg)
	sess.mu.Unlock()
	if err != nil {
		return SaveResult{}, err
	}

	key := "bill-number:" + sub.Request.Bill.BillNumber
	if sub.Request.Bill.BillNumber == "" {
		key = "session:" + sess.ID
	}
	release, err := s.guard().TryAcquire(ctx, key, s.SaveGuardTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return SaveResult{}, ErrActionInProgress
		}
		return SaveResult{}, fmt.Errorf("acquire save guard: %w", err)
	}
	defer release()

	created, err := s.Backend.CreateBill(ctx, sub.Request)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save bill: %w", err)
	}

	sess.mu.Lock()
	sess.billID = created.BillID
	if !created.BillNumber.IsZero() {
		sess.meta.BillNumber = created.BillNumber.String()
	}
	res := SaveResult{BillID: sess.billID, BillNumber: sess.meta.BillNumber}
	sess.mu.Unlock()

	s.Logger.Info().Str("session_id", sess.ID).Str("bill_id", res.BillID.String()).Str("bill_number", res.BillNumber).Msg("bill saved")
	s.emit(ctx, events.TopicBillSaved, sess.ID, map[string]any{
		"bill_id":      res.BillID,
		"bill_number":  res.BillNumber,
		"total_amount": sub.Totals.TotalBeforeAdvance,
	})
	return res, nil
}

// Print saves the bill when needed and returns its print view. The session
// resets after PrintResetDelay unless another bill has been saved meanwhile.
func (s *Service) Print(ctx context.Context, id string) (res PrintResult, err error) {
	sess, err := s.session(id)
	if err != nil {
		return PrintResult{}, err
	}
	if err := sess.begin("print"); err != nil {
		return PrintResult{}, err
	}
	ctx, end := obs.StartSpan(ctx, "billing.print", attribute.String("billing.session_id", id))
	res, err = s.print(ctx, sess)
	sess.end()
	end(err)
	obs.RecordBillAction("print", err)
	if err != nil {
		return PrintResult{}, err
	}

	billID := res.BillID
	s.afterFunc(s.PrintResetDelay, func() { s.resetAfterPrint(sess, billID) })
	return res, nil
}

func (s *Service) print(ctx context.Context, sess *Session) (PrintResult, error) {
	sess.mu.Lock()
	mobile := strings.TrimSpace(sess.customer.Mobile)
	sess.mu.Unlock()
	if mobile == "" {
		return PrintResult{}, ErrMissingMobile
	}
	saved, err := s.save(ctx, sess)
	if err != nil {
		return PrintResult{}, err
	}
	res := PrintResult{
		BillID:       saved.BillID,
		BillNumber:   saved.BillNumber,
		PrintURL:     s.Backend.PrintURL(saved.BillID),
		ResetAfterMS: s.PrintResetDelay.Milliseconds(),
	}
	s.emit(ctx, events.TopicBillPrinted, sess.ID, map[string]any{"bill_id": res.BillID, "bill_number": res.BillNumber})
	return res, nil
}

func (s *Service) resetAfterPrint(sess *Session, billID backend.ID) {
	sess.mu.Lock()
	if sess.billID != billID || sess.pending != "" {
		sess.mu.Unlock()
		return
	}
	gen := s.clearLocked(sess)
	sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.fillBillNumber(ctx, sess, gen); err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("next bill number unavailable after print")
	}
	s.emit(ctx, events.TopicBillReset, sess.ID, map[string]any{"reason": "printed", "bill_id": billID})
}

// Share sends the bill to the customer's mobile. An unsaved bill prompts
// save_first: yes saves and shares the stored bill, no shares a locally
// composed draft. The session resets after a successful share.
func (s *Service) Share(ctx context.Context, id string, req ShareRequest) (res ShareResult, err error) {
	sess, err := s.session(id)
	if err != nil {
		return ShareResult{}, err
	}
	if err := sess.begin("share"); err != nil {
		return ShareResult{}, err
	}
	defer sess.end()
	ctx, end := obs.StartSpan(ctx, "billing.share", attribute.String("billing.session_id", id))
	defer func() {
		end(err)
		obs.RecordBillAction("share", err)
	}()

	res, err = s.share(ctx, sess, req)
	if err != nil {
		return ShareResult{}, err
	}

	sess.mu.Lock()
	gen := s.clearLocked(sess)
	sess.mu.Unlock()
	if fillErr := s.fillBillNumber(ctx, sess, gen); fillErr != nil {
		s.Logger.Warn().Err(fillErr).Str("session_id", sess.ID).Msg("next bill number unavailable after share")
	}
	s.emit(ctx, events.TopicBillReset, sess.ID, map[string]any{"reason": "shared", "bill_id": res.BillID})
	res.View = s.view(sess)
	return res, nil
}

func (s *Service) share(ctx context.Context, sess *Session, req ShareRequest) (ShareResult, error) {
	lang := NormalizeLanguage(req.Language, s.DefaultLanguage)
	rules := s.Rules()
	cfg := s.billing()

	sess.mu.Lock()
	mobile := strings.TrimSpace(sess.customer.Mobile)
	saved := !sess.billID.IsZero()
	empty := sess.cart.Len() == 0
	sess.mu.Unlock()
	if !saved && empty {
		return ShareResult{}, ErrEmptyCart
	}
	if mobile == "" {
		return ShareResult{}, ErrMissingMobile
	}

	if !saved {
		ok, err := Answer(req.SaveFirst).Confirm(ctx, Prompt{
			Kind:    PromptSaveFirst,
			Field:   "save_first",
			Message: "This bill has not been saved yet. Save it before sending?",
		})
		if err != nil {
			return ShareResult{}, err
		}
		if ok {
			if _, err := s.save(ctx, sess); err != nil {
				return ShareResult{}, err
			}
			saved = true
		}
	}

	var res ShareResult
	if saved {
		sess.mu.Lock()
		billID, number := sess.billID, sess.meta.BillNumber
		sess.mu.Unlock()
		link, err := s.Backend.SendBillMessage(ctx, billID, mobile, lang)
		if err != nil {
			return ShareResult{}, fmt.Errorf("send bill message: %w", err)
		}
		res = ShareResult{
			Mode:        ShareSaved,
			BillID:      billID,
			BillNumber:  number,
			WhatsAppURL: link.WhatsAppURL,
			PrintURL:    s.Backend.PrintURL(billID),
		}
	} else {
		sess.mu.Lock()
		sub, err := s.prepareLocked(sess, rules, cfg)
		sess.mu.Unlock()
		if err != nil {
			return ShareResult{}, err
		}
		text := ComposeMessage(sub, lang)
		link, err := WhatsAppLink(mobile, text, s.CountryCode)
		if err != nil {
			return ShareResult{}, err
		}
		res = ShareResult{Mode: ShareDraft, WhatsAppURL: link, Message: text}
	}
	s.emit(ctx, events.TopicBillShared, sess.ID, map[string]any{"mode": res.Mode, "bill_id": res.BillID, "language": lang})
	return res, nil
}

// Reset clears the session and reapplies the defaults. A failed bill number
// lookup is reported as a warning on the returned view.
func (s *Service) Reset(ctx context.Context, id string) (View, error) {
	sess, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	if sess.pending != "" {
		sess.mu.Unlock()
		return View{}, ErrActionInProgress
	}
	gen := s.clearLocked(sess)
	sess.mu.Unlock()

	fillErr := s.fillBillNumber(ctx, sess, gen)
	obs.RecordBillAction("reset", nil)
	s.emit(ctx, events.TopicBillReset, sess.ID, map[string]any{"reason": "manual"})
	view := s.view(sess)
	if fillErr != nil {
		s.Logger.Warn().Err(fillErr).Str("session_id", id).Msg("next bill number unavailable")
		view.Warning = "next bill number unavailable; enter it manually"
	}
	return view, nil
}

// clearLocked empties the session and applies default metadata. It returns
// the new generation so a late bill number lookup can tell it is stale.
func (s *Service) clearLocked(sess *Session) uint64 {
	sess.cart.clear()
	sess.billID = ""
	sess.customer = Customer{}
	sess.meta = s.defaultMeta()
	sess.generation++
	return sess.generation
}

func (s *Service) defaultMeta() Meta {
	cfg := s.billing()
	today := s.now()
	m := Meta{BillDate: today.Format(dateLayout)}
	if cfg.EnableDeliveryDate {
		m.DeliveryDate = today.AddDate(0, 0, cfg.DefaultDeliveryDays).Format(dateLayout)
	}
	if cfg.EnableTrialDate {
		m.TrialDate = today.AddDate(0, 0, cfg.DefaultTrialDays).Format(dateLayout)
	}
	if cfg.EnableEmployeeAssignment {
		m.EmployeeID = cfg.DefaultEmployeeID
	}
	return m
}

func (s *Service) fillBillNumber(ctx context.Context, sess *Session, gen uint64) error {
	if s.Backend == nil {
		return errors.New("billing backend not configured")
	}
	number, err := s.Backend.NextBillNumber(ctx)
	if err != nil {
		return fmt.Errorf("next bill number: %w", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation == gen && sess.meta.BillNumber == "" {
		sess.meta.BillNumber = number
	}
	return nil
}

func (s *Service) emit(ctx context.Context, topic, sessionID string, payload any) {
	if _, err := s.Events.Emit(ctx, topic, sessionID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("session_id", sessionID).Msg("bill event notify failed")
	}
}
