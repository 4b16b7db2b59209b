// Package service runs the share register: assignment, repricing, transfer
// and soft deletion. Every read passes the access policy and every mutation
// records an audit entry, failed writes included.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/policy"
	ratemodels "shareledger/internal/ratelimit/models"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/store"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

// Store is the share persistence port.
type Store interface {
	Create(ctx context.Context, share *models.Share) error
	FindByID(ctx context.Context, shareID id.ShareID) (*models.Share, error)
	Update(ctx context.Context, shareID id.ShareID, fn store.UpdateFunc) (*models.Share, error)
	List(ctx context.Context, opts store.ListOptions) ([]*models.Share, int, error)
	ListByOwner(ctx context.Context, owner id.UserID, includeInactive bool) ([]*models.Share, error)
}

// OwnerDirectory resolves prospective share owners.
type OwnerDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
}

// Limiter gates the sensitive mutations.
type Limiter interface {
	Check(ctx context.Context, actorID id.UserID, rule ratemodels.Rule) error
}

type Service struct {
	store    Store
	owners   OwnerDirectory
	guard    *policy.Guard
	recorder audit.Recorder
	limiter  Limiter
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLimiter enables the sensitive-operation limits on assign, transfer and
// delete.
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// New constructs a Service. A nil recorder discards entries.
func New(shares Store, owners OwnerDirectory, guard *policy.Guard, recorder audit.Recorder, opts ...Option) *Service {
	if recorder == nil {
		recorder = audit.Nop
	}
	s := &Service{
		store:    shares,
		owners:   owners,
		guard:    guard,
		recorder: recorder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errOwnerNotEligible = dErrors.New(dErrors.CodeValidation, "owner must be an active shareholder")

// Assign creates a share for an active shareholder.
func (s *Service) Assign(ctx context.Context, actor policy.Actor, a models.Assignment) (*models.Share, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjShare, policy.ActAssign, audit.TargetShare, ""); err != nil {
		return nil, err
	}
	if err := s.checkLimit(ctx, actor, ratemodels.RuleShareCreate); err != nil {
		return nil, err
	}
	if err := s.requireEligibleOwner(ctx, a.OwnerID); err != nil {
		return nil, err
	}

	share, err := models.NewShare(id.ShareID(uuid.New()), a, actor.ID, s.now())
	if err != nil {
		return nil, err
	}
	entry := s.entry(actor, audit.ActionShareCreated, share.ID)
	entry.After = audit.Snapshot(share.Valuation())
	entry.Details = map[string]any{"owner_id": share.OwnerID.String(), "count": share.Count}
	if err := s.store.Create(ctx, share); err != nil {
		s.fail(ctx, entry, "store_error")
		return nil, mapStoreErr(err, "failed to assign share")
	}
	s.recorder.Record(ctx, entry)
	return share, nil
}

// Get returns one share if actor may see its owner's records.
func (s *Service) Get(ctx context.Context, actor policy.Actor, shareID id.ShareID) (*models.Share, error) {
	share, err := s.store.FindByID(ctx, shareID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load share")
	}
	if err := s.guard.Authorize(ctx, actor, share.OwnerID, policy.ResourceShare, shareID.String()); err != nil {
		return nil, err
	}
	if !share.Active && !actor.Role.IsElevated() {
		return nil, dErrors.New(dErrors.CodeNotFound, "share not found")
	}
	s.recorder.Record(ctx, s.entry(actor, audit.ActionShareViewed, share.ID))
	return share, nil
}

// ListRequest narrows a listing on top of the access filter.
type ListRequest struct {
	OwnerID         *id.UserID
	IncludeInactive bool
	Page            id.Page
}

// List returns the shares actor may see. Inactive shares are listed only for
// elevated roles.
func (s *Service) List(ctx context.Context, actor policy.Actor, req ListRequest) ([]*models.Share, int, error) {
	opts := store.ListOptions{
		Access:          policy.AccessFilter(actor),
		OwnerID:         req.OwnerID,
		IncludeInactive: req.IncludeInactive && actor.Role.IsElevated(),
		Page:            req.Page,
	}
	shares, total, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list shares")
	}
	return shares, total, nil
}

// Portfolio totals ownerID's active holdings.
func (s *Service) Portfolio(ctx context.Context, actor policy.Actor, ownerID id.UserID) (*models.Portfolio, error) {
	if err := s.guard.Authorize(ctx, actor, ownerID, policy.ResourceShare, ownerID.String()); err != nil {
		return nil, err
	}
	shares, err := s.store.ListByOwner(ctx, ownerID, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load portfolio")
	}
	p := models.NewPortfolio(ownerID, shares)
	return &p, nil
}

func (s *Service) requireEligibleOwner(ctx context.Context, ownerID id.UserID) error {
	if ownerID.IsNil() {
		return errOwnerNotEligible
	}
	owner, err := s.owners.FindByID(ctx, ownerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return errOwnerNotEligible
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load owner")
	}
	if !owner.Active || owner.Role != id.RoleShareholder {
		return errOwnerNotEligible
	}
	return nil
}

func (s *Service) checkLimit(ctx context.Context, actor policy.Actor, rule ratemodels.Rule) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Check(ctx, actor.ID, rule)
}

func (s *Service) entry(actor policy.Actor, action audit.Action, shareID id.ShareID) audit.Entry {
	return audit.Entry{
		ActorID:    audit.Actor(actor.ID),
		ActorRole:  actor.Role,
		Action:     action,
		TargetType: audit.TargetShare,
		TargetID:   shareID.String(),
		Success:    true,
	}
}

// fail records e as a failed attempt.
func (s *Service) fail(ctx context.Context, e audit.Entry, reason string) {
	e.Success = false
	e.ErrorMessage = reason
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details["reason"] = reason
	s.recorder.Record(ctx, e)
}

func mapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "share not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "share already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
