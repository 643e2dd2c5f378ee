package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cantina/backend/internal/cache"
	"cantina/backend/internal/domain"
	"cantina/backend/internal/ledger"
	"cantina/backend/internal/notify"
	"cantina/backend/internal/settlement"
	"cantina/backend/internal/store"
	"cantina/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Accounts        cache.AccountCache
	Publisher       notify.Publisher
	DebtCeiling     decimal.Decimal
	AccountCacheTTL time.Duration
	Logger          *zap.Logger
	Now             func() time.Time
}

type Service struct {
	repo      store.Repository
	accounts  cache.AccountCache
	publisher notify.Publisher
	ledger    ledger.Ledger
	evaluator settlement.Evaluator
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Accounts == nil {
		opts.Accounts = cache.NoopAccountCache{}
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := ledger.New(opts.DebtCeiling)
	return &Service{
		repo:      repo,
		accounts:  opts.Accounts,
		publisher: opts.Publisher,
		ledger:    l,
		evaluator: settlement.NewEvaluator(l),
		cacheTTL:  opts.AccountCacheTTL,
		logger:    opts.Logger.Named("service"),
		now:       opts.Now,
	}
}

func (s *Service) DebtCeiling() decimal.Decimal {
	return s.ledger.DebtCeiling
}

// authorize returns the actor in ctx when it holds capability.
func (s *Service) authorize(ctx context.Context, capability domain.Capability) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.AccountID == "" {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", domain.ErrForbidden)
	}
	if !actor.Can(capability) {
		return domain.Actor{}, fmt.Errorf("%w: %s role lacks %s", domain.ErrForbidden, actor.Role, capability)
	}
	return actor, nil
}

func (s *Service) authenticated(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.AccountID == "" {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", domain.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New(),
		ActorID:       actor.AccountID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// invalidate drops cached snapshots of accounts whose state just changed.
func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if err := s.accounts.Invalidate(ctx, ids...); err != nil {
		s.logger.Warn("failed to invalidate account cache", zap.Strings("account_ids", ids), zap.Error(err))
	}
}
