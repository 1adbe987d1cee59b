// Package core implements the estatecore mutation gateway: the single write
// boundary over the entity registry. Every write is validated, applied in one
// store transaction together with its audit entry, and checked by the rules
// engine before it becomes visible.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	blobcore "estatecore/internal/blob/core"
	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

// SystemActor is recorded as the acting user when no session is active.
const SystemActor = "system"

// Notifier delivers a stored notification to a partner over an external channel.
type Notifier interface {
	Notify(ctx context.Context, partner domain.Partner, notification domain.Notification) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	logger   *zap.Logger
	metrics  MetricsRecorder
	blobs    blobcore.Store
	notifier Notifier
	clock    Clock
	engine   *domain.RulesEngine
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *serviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *serviceConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithBlobStore sets the attachment store used by upload operations.
func WithBlobStore(store blobcore.Store) Option {
	return func(c *serviceConfig) { c.blobs = store }
}

// WithNotifier sets the supplier notification channel.
func WithNotifier(n Notifier) Option {
	return func(c *serviceConfig) { c.notifier = n }
}

// WithClock overrides the time source. It only affects stores built by NewInMemoryService.
func WithClock(clock Clock) Option {
	return func(c *serviceConfig) { c.clock = clock }
}

// WithRulesEngine overrides the rules engine used by NewInMemoryService.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(c *serviceConfig) { c.engine = engine }
}

// Service is the mutation gateway. Reads go through View; writes go through
// the typed handles returned by Properties, Tasks, Financial and the others.
type Service struct {
	store    domain.PersistentStore
	logger   *zap.Logger
	metrics  MetricsRecorder
	validate *validator.Validate
	blobs    blobcore.Store
	notifier Notifier

	mu      sync.RWMutex
	session string
}

func buildConfig(opts []Option) serviceConfig {
	cfg := serviceConfig{
		logger:  zap.NewNop(),
		metrics: noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewService constructs a gateway over the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	return newService(store, buildConfig(opts))
}

// NewInMemoryService creates a gateway over a fresh in-memory store using the
// default rules unless WithRulesEngine is supplied.
func NewInMemoryService(opts ...Option) *Service {
	cfg := buildConfig(opts)
	engine := cfg.engine
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	var storeOpts []memory.Option
	if cfg.clock != nil {
		storeOpts = append(storeOpts, memory.WithClock(cfg.clock.Now))
	}
	return newService(memory.NewStore(engine, storeOpts...), cfg)
}

func newService(store domain.PersistentStore, cfg serviceConfig) *Service {
	return &Service{
		store:    store,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		validate: newValidator(),
		blobs:    cfg.blobs,
		notifier: cfg.notifier,
	}
}

// Store returns the underlying persistence implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// View runs fn against a consistent read-only snapshot of the registry.
func (s *Service) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

func (s *Service) sessionUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// actor resolves the acting user inside a transaction snapshot.
func actor(view domain.TransactionView, userID string) (domain.User, bool) {
	if userID == "" {
		return domain.User{}, false
	}
	return view.FindUser(userID)
}

func auditEntry(action domain.AuditAction, entity domain.EntityType, id, details string, related ...domain.EntityRef) domain.AuditLogEntry {
	return domain.AuditLogEntry{Action: action, Entity: entity, EntityID: id, Details: details, Related: related}
}

// mutate runs fn in a store transaction and appends the audit entry it returns
// in that same transaction, stamped with the acting user.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error)) error {
	_, err := s.apply(ctx, op, fn)
	return err
}

func (s *Service) apply(ctx context.Context, op string, fn func(tx domain.Transaction, user domain.User) (domain.AuditLogEntry, error)) (domain.AuditLogEntry, error) {
	start := time.Now()
	userID := s.sessionUserID()
	var stored domain.AuditLogEntry
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		user, ok := actor(tx.Snapshot(), userID)
		entry, err := fn(tx, user)
		if err != nil {
			return err
		}
		switch {
		case ok:
			entry.UserID, entry.UserName = user.ID, user.Name
		case userID != "":
			entry.UserID, entry.UserName = userID, userID
		default:
			entry.UserName = SystemActor
		}
		stored, err = tx.AppendAudit(entry)
		return err
	})
	s.observe(ctx, op, res, err, time.Since(start))
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

func (s *Service) observe(ctx context.Context, op string, res domain.Result, err error, elapsed time.Duration) {
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", zap.String("operation", op), zap.String("rule", v.Rule), zap.String("message", v.Message))
		}
	}
	if err != nil {
		s.logger.Debug("mutation rejected", zap.String("operation", op), zap.Error(err), zap.Duration("elapsed", elapsed))
		return
	}
	s.logger.Debug("mutation applied", zap.String("operation", op), zap.Duration("elapsed", elapsed))
}

// read is a small helper returning a value computed from a snapshot.
func read[T any](ctx context.Context, s *Service, fn func(domain.TransactionView) T) T {
	var out T
	_ = s.store.View(ctx, func(v domain.TransactionView) error {
		out = fn(v)
		return nil
	})
	return out
}

func requireRole(user domain.User, op string, roles ...domain.Role) error {
	if user.ID != "" && user.Can(roles...) {
		return nil
	}
	return domain.AuthorizationError{Operation: op, UserID: user.ID, Required: roles}
}

// Handles.

func (s *Service) Properties() Properties         { return Properties{s} }
func (s *Service) Owners() Owners                 { return Owners{s} }
func (s *Service) Partners() Partners             { return Partners{s} }
func (s *Service) Tenants() Tenants               { return Tenants{s} }
func (s *Service) Tasks() Tasks                   { return Tasks{s} }
func (s *Service) Bookings() Bookings             { return Bookings{s} }
func (s *Service) Financial() Financial           { return Financial{s} }
func (s *Service) Audit() Audit                   { return Audit{s} }
func (s *Service) Auth() Auth                     { return Auth{s} }
func (s *Service) Users() Users                   { return Users{s} }
func (s *Service) Notifications() Notifications   { return Notifications{s} }
func (s *Service) Messages() Messages             { return Messages{s} }
func (s *Service) Condominiums() Condominiums     { return Condominiums{s} }
func (s *Service) Advertisements() Advertisements { return Advertisements{s} }
func (s *Service) Visits() Visits                 { return Visits{s} }
