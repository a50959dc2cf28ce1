package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Source fetches configuration from the shop backend.
type Source interface {
	FetchVatConfig(ctx context.Context) (pricing.VatConfig, error)
	FetchPaymentMode(ctx context.Context) (PaymentMode, error)
	FetchBillingConfig(ctx context.Context) (BillingConfig, error)
}

// Provider serves the last loaded configuration without touching the network.
// Loading happens only through Refresh, Restore and Run.
type Provider struct {
	mu sync.RWMutex
	// loading serialises Refresh and Restore so an older fetch cannot land
	// after a newer one.
	loading sync.Mutex
	snap    Snapshot
	source  Source
	cache   *Cache
	logger  zerolog.Logger
	now     func() time.Time
}

// NewProvider constructs a Provider holding the defaults.
func NewProvider(source Source, cache *Cache, logger zerolog.Logger) *Provider {
	return &Provider{
		snap:   DefaultSnapshot(),
		source: source,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Vat returns the current VAT rule, or the 5% exclusive default if never loaded.
func (p *Provider) Vat() pricing.VatConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.Vat
}

// PaymentMode returns the effective payment mode.
func (p *Provider) PaymentMode() PaymentMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.EffectivePaymentMode()
}

// Billing returns the billing screen options.
func (p *Provider) Billing() BillingConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.Billing
}

// Snapshot returns a copy of the whole configuration.
func (p *Provider) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Apply replaces the configuration.
func (p *Provider) Apply(snap Snapshot) {
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}

// Refresh reads every part of the configuration from the source. Parts that
// fail keep their previous value; the errors are joined and returned. Any
// successful part is written through to the cache.
func (p *Provider) Refresh(ctx context.Context) (Snapshot, error) {
	if p.source == nil {
		return p.Snapshot(), errors.New("settings: source not configured")
	}
	p.loading.Lock()
	defer p.loading.Unlock()
	next := p.Snapshot()
	var (
		errs    error
		fetched int
	)
	if vat, err := p.source.FetchVatConfig(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("vat config: %w", err))
	} else {
		next.Vat = vat
		fetched++
	}
	if mode, err := p.source.FetchPaymentMode(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("payment mode: %w", err))
	} else {
		next.PaymentMode = mode
		fetched++
	}
	if billing, err := p.source.FetchBillingConfig(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("billing config: %w", err))
	} else {
		next.Billing = billing
		fetched++
	}

	if fetched == 0 {
		return p.Snapshot(), errs
	}
	next.Loaded = true
	next.LoadedAt = p.now().UTC()
	p.Apply(next)
	if err := p.cache.Store(ctx, next); err != nil {
		p.logger.Warn().Err(err).Msg("settings cache store failed")
	}
	return next, errs
}

// Restore loads the cached snapshot when nothing has been loaded yet.
func (p *Provider) Restore(ctx context.Context) bool {
	p.loading.Lock()
	defer p.loading.Unlock()
	if p.Snapshot().Loaded {
		return false
	}
	snap, ok, err := p.cache.Load(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("settings cache load failed")
		return false
	}
	if !ok {
		return false
	}
	p.Apply(snap)
	p.logger.Info().Time("loaded_at", snap.LoadedAt).Msg("settings restored from cache")
	return true
}

// Init performs the screen-init load: refresh, falling back to the cache.
func (p *Provider) Init(ctx context.Context) error {
	_, err := p.Refresh(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("settings refresh failed")
		if !p.Snapshot().Loaded {
			p.Restore(ctx)
		}
	}
	return err
}

// Run refreshes on every tick until ctx is cancelled. A non-positive interval
// returns immediately.
func (p *Provider) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Refresh(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("settings refresh failed")
			}
		}
	}
}
