package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/observability"
	"retailpos/internal/store"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// StockAlerter receives low-stock alerts after a sale commits.
type StockAlerter interface {
	NotifyLowStock(ctx context.Context, alerts []domain.LowStockAlert) error
}

type noopAlerter struct{}

func (noopAlerter) NotifyLowStock(context.Context, []domain.LowStockAlert) error { return nil }

type Options struct {
	// Now is the clock used for timestamps, invoice years and report days.
	Now            func() time.Time
	Location       *time.Location
	ReportCache    cache.ReportCache
	ReportCacheTTL time.Duration
	Alerter        StockAlerter
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

type Service struct {
	repo     store.Repository
	now      func() time.Time
	loc      *time.Location
	cache    cache.ReportCache
	cacheTTL time.Duration
	alerter  StockAlerter
	metrics  *observability.Metrics
	logger   *zap.Logger
	validate *validator.Validate
	reports  singleflight.Group
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 30 * time.Second
	}
	if opts.Alerter == nil {
		opts.Alerter = noopAlerter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		now:      opts.Now,
		loc:      opts.Location,
		cache:    opts.ReportCache,
		cacheTTL: opts.ReportCacheTTL,
		alerter:  opts.Alerter,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks struct tags and reports failures as ErrInvalidInput.
func (s *Service) Validate(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", store.ErrInvalidInput, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: requires one of %v", ErrForbidden, roles)
	}
	return actor, nil
}

// localMidnight is the start of t's calendar day in the report location.
func (s *Service) localMidnight(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Location is the zone that defines report days.
func (s *Service) Location() *time.Location {
	return s.loc
}
