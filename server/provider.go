package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/librecur/server/auth"
	authmem "github.com/cyp0633/librecur/server/auth/memory"
	"github.com/cyp0633/librecur/server/instances"
	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/cyp0633/librecur/server/storage"
)

// Provider is the entry point for callers: it validates and normalizes
// event writes, keeps exception links intact and serves instance queries
// from the materialized instance table, expanding calendars on demand.
type Provider struct {
	store    storage.Storage
	engine   *recurrence.Engine
	expander *instances.Expander
	tracker  *instances.Tracker
	access   auth.Authenticator
	zones    recurrence.TimeZoneResolver
	logger   *slog.Logger

	local         *time.Location
	defaultWindow time.Duration
	engineConfig  recurrence.EngineConfig
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger for the provider and the components it builds
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocalTimeZone sets the zone of the day and minute instance fields
func WithLocalTimeZone(loc *time.Location) Option {
	return func(p *Provider) {
		if loc != nil {
			p.local = loc
		}
	}
}

// WithTimeZoneResolver sets how event zone identifiers are resolved
func WithTimeZoneResolver(r recurrence.TimeZoneResolver) Option {
	return func(p *Provider) {
		p.zones = r
	}
}

// WithEngineConfig sets the recurrence engine configuration
func WithEngineConfig(config recurrence.EngineConfig) Option {
	return func(p *Provider) {
		p.engineConfig = config
	}
}

// WithDefaultWindow sets how far the first expansion of a calendar reaches
// past the queried start
func WithDefaultWindow(d time.Duration) Option {
	return func(p *Provider) {
		p.defaultWindow = d
	}
}

// WithAuthenticator sets the authenticator used to log in callers and to
// check their access to calendars
func WithAuthenticator(a auth.Authenticator) Option {
	return func(p *Provider) {
		p.access = a
	}
}

// New creates a provider over store
func New(store storage.Storage, opts ...Option) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	p := &Provider{
		store:        store,
		zones:        recurrence.NewLocationResolver(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		local:        time.UTC,
		engineConfig: recurrence.DefaultEngineConfig,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.engine = recurrence.NewEngineWithConfig(p.engineConfig, recurrence.WithLogger(p.logger))
	p.expander = instances.NewExpander(p.engine,
		instances.WithLogger(p.logger),
		instances.WithLocalTimeZone(p.local),
		instances.WithTimeZoneResolver(p.zones))
	p.tracker = instances.NewTracker(store, p.expander, instances.WithTrackerLogger(p.logger))

	return p, nil
}

// NewFromConfig creates a provider from a normalized Config. Adapters listed
// in the configuration are registered with an in-memory authenticator unless
// opts supply another one.
func NewFromConfig(store storage.Storage, cfg *Config, opts ...Option) (*Provider, error) {
	loc, err := time.LoadLocation(cfg.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("local_timezone: %w", err)
	}

	base := []Option{
		WithLocalTimeZone(loc),
		WithDefaultWindow(cfg.DefaultWindow),
		WithEngineConfig(cfg.Engine),
	}
	if len(cfg.Adapters) > 0 {
		users := authmem.New()
		for _, a := range cfg.Adapters {
			if err := users.AddUser(authmem.User{
				Username:    a.Username,
				Password:    a.Password,
				Account:     a.Account,
				SyncAdapter: true,
			}); err != nil {
				return nil, err
			}
		}
		base = append(base, WithAuthenticator(users))
	}
	return New(store, append(base, opts...)...)
}

// Close releases the provider's caches
func (p *Provider) Close() {
	p.engine.Close()
}

// Store returns the underlying storage
func (p *Provider) Store() storage.Storage {
	return p.store
}

// Login authenticates creds and returns a context carrying the principal.
func (p *Provider) Login(ctx context.Context, creds auth.Credentials) (context.Context, error) {
	if p.access == nil {
		return nil, &auth.Error{
			Type:    auth.ErrUnauthorized,
			Message: "no authenticator configured",
		}
	}
	principal, err := p.access.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return auth.WithPrincipal(ctx, principal), nil
}

// checkAccess applies the authenticator's policy, or the account policy
// when none is configured.
func (p *Provider) checkAccess(ctx context.Context, cal *storage.Calendar) error {
	principal := auth.GetPrincipalFromContext(ctx)
	if p.access != nil {
		return p.access.ValidateAccess(ctx, principal, cal)
	}
	return auth.CheckAccountAccess(principal, cal)
}

// Calendar operations

// CreateCalendar stores a new calendar and assigns its id
func (p *Provider) CreateCalendar(ctx context.Context, cal *storage.Calendar) error {
	if cal.AccountName == "" {
		return &MissingRequiredFieldError{Field: "account_name"}
	}
	if err := p.checkAccess(ctx, cal); err != nil {
		return err
	}
	if cal.TimeZone == "" {
		cal.TimeZone = p.local.String()
	}
	if err := p.store.CreateCalendar(ctx, cal); err != nil {
		return fmt.Errorf("failed to create calendar: %w", err)
	}
	p.logger.Info("calendar created",
		"calendar_id", cal.ID,
		"account", cal.AccountName)
	return nil
}

// UpdateCalendar replaces a calendar's attributes. The owning account cannot
// change.
func (p *Provider) UpdateCalendar(ctx context.Context, cal *storage.Calendar) error {
	existing, err := p.store.GetCalendar(ctx, cal.ID)
	if err != nil {
		return err
	}
	if err := p.checkAccess(ctx, existing); err != nil {
		return err
	}
	if cal.AccountName != existing.AccountName {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "a calendar cannot move between accounts",
		}
	}
	return p.store.UpdateCalendar(ctx, cal)
}

// DeleteCalendar removes a calendar with its events, instances and tracked range
func (p *Provider) DeleteCalendar(ctx context.Context, id int64) error {
	unlock := p.tracker.Lock(id)
	defer unlock()

	cal, err := p.store.GetCalendar(ctx, id)
	if err != nil {
		return err
	}
	if err := p.checkAccess(ctx, cal); err != nil {
		return err
	}
	if err := p.store.DeleteCalendar(ctx, id); err != nil {
		return fmt.Errorf("failed to delete calendar %d: %w", id, err)
	}
	p.logger.Info("calendar deleted", "calendar_id", id)
	return nil
}

// Calendar returns one calendar
func (p *Provider) Calendar(ctx context.Context, id int64) (*storage.Calendar, error) {
	return p.store.GetCalendar(ctx, id)
}

// Calendars lists calendars matching filter
func (p *Provider) Calendars(ctx context.Context, filter storage.CalendarFilter) ([]*storage.Calendar, error) {
	return p.store.ListCalendars(ctx, filter)
}
