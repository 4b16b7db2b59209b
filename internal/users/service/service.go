// Package service manages accounts on behalf of privileged actors: creation,
// profile and role changes, activation, and deletion into a restorable
// tombstone.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	userStore "shareledger/internal/auth/store/user"
	certmodels "shareledger/internal/certificates/models"
	"shareledger/internal/policy"
	ratemodels "shareledger/internal/ratelimit/models"
	sharemodels "shareledger/internal/shares/models"
	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type UserStore interface {
	Create(ctx context.Context, u *authmodels.User) error
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
	Update(ctx context.Context, userID id.UserID, fn userStore.UpdateFunc) (*authmodels.User, error)
	List(ctx context.Context, opts userStore.ListOptions) ([]*authmodels.User, int, error)
	Delete(ctx context.Context, userID id.UserID) error
}

type TombstoneStore interface {
	Create(ctx context.Context, d *models.DeletedUser) error
	FindByID(ctx context.Context, tombID id.TombstoneID) (*models.DeletedUser, error)
	List(ctx context.Context, page id.Page) ([]*models.DeletedUser, int, error)
	Delete(ctx context.Context, tombID id.TombstoneID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ShareLedger is the slice of the share manager that account deletion needs.
type ShareLedger interface {
	Holdings(ctx context.Context, ownerID id.UserID) ([]*sharemodels.Share, error)
	RetireShares(ctx context.Context, actor policy.Actor, shareIDs []id.ShareID) error
	ReinstateShares(ctx context.Context, actor policy.Actor, shareIDs []id.ShareID) (int, error)
}

// CertificateArchive snapshots an owner's certificates for the tombstone.
type CertificateArchive interface {
	SnapshotByOwner(ctx context.Context, ownerID id.UserID) ([]*certmodels.Certificate, error)
}

// SessionRevoker ends every refresh session of a user.
type SessionRevoker interface {
	RevokeByUser(ctx context.Context, userID id.UserID) (int, error)
}

type Limiter interface {
	Check(ctx context.Context, actorID id.UserID, rule ratemodels.Rule) error
}

var (
	errSelfRoleChange = dErrors.New(dErrors.CodeValidation, "cannot change your own role")
	errSelfDeactivate = dErrors.New(dErrors.CodeValidation, "cannot deactivate your own account")
	errSelfDelete     = dErrors.New(dErrors.CodeValidation, "cannot delete your own account")
	errSameRole       = dErrors.New(dErrors.CodeValidation, "user already has this role")
	errInvalidRole    = dErrors.New(dErrors.CodeValidation, "role is not recognised")
)

// Service owns account administration. Every successful change and every
// failed write is audited.
type Service struct {
	users      UserStore
	tombstones TombstoneStore
	shares     ShareLedger
	certs      CertificateArchive
	sessions   SessionRevoker
	hasher     *secrets.Hasher
	guard      *policy.Guard
	recorder   audit.Recorder
	limiter    Limiter
	logger     *slog.Logger
	retention  time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithRetention sets how long a deleted account stays restorable.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithCertificates enables the certificate snapshot on deletion.
func WithCertificates(c CertificateArchive) Option {
	return func(s *Service) { s.certs = c }
}

// WithSessions revokes refresh sessions on deactivation and deletion.
func WithSessions(r SessionRevoker) Option {
	return func(s *Service) { s.sessions = r }
}

func New(
	users UserStore,
	tombstones TombstoneStore,
	shares ShareLedger,
	hasher *secrets.Hasher,
	guard *policy.Guard,
	recorder audit.Recorder,
	opts ...Option,
) *Service {
	if recorder == nil {
		recorder = audit.Nop
	}
	s := &Service{
		users:      users,
		tombstones: tombstones,
		shares:     shares,
		hasher:     hasher,
		guard:      guard,
		recorder:   recorder,
		logger:     slog.Default(),
		retention:  models.DefaultRetention,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes an account created by an administrator.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     id.Role
}

// Create adds an account. Only actors holding the elevated grant may create
// directors or super admins.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (*authmodels.User, error) {
	if !in.Role.IsValid() {
		return nil, errInvalidRole
	}
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActCreate, audit.TargetUser, ""); err != nil {
		return nil, err
	}
	if in.Role.IsElevated() {
		if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActCreateElevated, audit.TargetUser, ""); err != nil {
			return nil, err
		}
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := &authmodels.User{
		ID:           id.UserID(uuid.New()),
		Email:        authmodels.NormalizeEmail(in.Email),
		Name:         in.Name,
		Role:         in.Role,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := s.entry(actor, audit.ActionUserCreated, u)
	entry.Details = map[string]any{"role": string(u.Role), "self_registered": false}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to create user")
	}
	entry.After = audit.Snapshot(u)
	s.recorder.Record(ctx, entry)
	return u, nil
}

// Get returns one account if actor may see it.
func (s *Service) Get(ctx context.Context, actor policy.Actor, userID id.UserID) (*authmodels.User, error) {
	if err := s.guard.Authorize(ctx, actor, userID, policy.ResourceUser, userID.String()); err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load user")
	}
	return u, nil
}

// ListRequest narrows a listing on top of the access filter.
type ListRequest struct {
	Role   id.Role
	Active *bool
	Search string
	Page   id.Page
}

// List returns the accounts actor may see. The filter is part of the query.
func (s *Service) List(ctx context.Context, actor policy.Actor, req ListRequest) ([]*authmodels.User, int, error) {
	if req.Role != "" && !req.Role.IsValid() {
		return nil, 0, errInvalidRole
	}
	users, total, err := s.users.List(ctx, userStore.ListOptions{
		Access: policy.AccessFilter(actor),
		Role:   req.Role,
		Active: req.Active,
		Search: req.Search,
		Page:   req.Page,
	})
	if err != nil {
		return nil, 0, mapStoreErr(err, "failed to list users")
	}
	return users, total, nil
}

// ProfileChanges are the optional profile fields; nil leaves a field as is.
type ProfileChanges struct {
	Email *string
	Name  *string
}

// UpdateProfile changes name or email. The owner and directors may do this.
func (s *Service) UpdateProfile(ctx context.Context, actor policy.Actor, userID id.UserID, c ProfileChanges) (*authmodels.User, error) {
	if err := s.guard.Authorize(ctx, actor, userID, policy.ResourceUser, userID.String()); err != nil {
		return nil, err
	}
	fields := []string{}
	return s.mutate(ctx, actor, userID, audit.ActionUserUpdated, func(u *authmodels.User) (map[string]any, error) {
		if c.Email != nil && authmodels.NormalizeEmail(*c.Email) != u.Email {
			u.Email = authmodels.NormalizeEmail(*c.Email)
			fields = append(fields, "email")
		}
		if c.Name != nil && *c.Name != u.Name {
			u.Name = *c.Name
			fields = append(fields, "name")
		}
		return map[string]any{"fields": fields}, nil
	})
}

// ChangeRole moves a user to role. Granting or revoking an elevated role
// needs the elevated grant on top of the plain capability.
func (s *Service) ChangeRole(ctx context.Context, actor policy.Actor, userID id.UserID, role id.Role) (*authmodels.User, error) {
	if !role.IsValid() {
		return nil, errInvalidRole
	}
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActChangeRole, audit.TargetUser, userID.String()); err != nil {
		return nil, err
	}
	if userID == actor.ID {
		return nil, errSelfRoleChange
	}
	current, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load user")
	}
	if current.Role == role {
		return nil, errSameRole
	}
	if role.IsElevated() || current.Role.IsElevated() {
		if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActGrantElevated, audit.TargetUser, userID.String()); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, actor, userID, audit.ActionRoleChanged, func(u *authmodels.User) (map[string]any, error) {
		from := u.Role
		u.Role = role
		return map[string]any{"from": string(from), "to": string(role)}, nil
	})
}

// SetActive activates or deactivates an account. Deactivation ends the
// user's refresh sessions.
func (s *Service) SetActive(ctx context.Context, actor policy.Actor, userID id.UserID, active bool) (*authmodels.User, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActDeactivate, audit.TargetUser, userID.String()); err != nil {
		return nil, err
	}
	if !active && userID == actor.ID {
		return nil, errSelfDeactivate
	}
	if err := s.requireElevatedGrant(ctx, actor, userID); err != nil {
		return nil, err
	}
	action := audit.ActionUserActivated
	if !active {
		action = audit.ActionUserDeactivated
	}
	u, err := s.mutate(ctx, actor, userID, action, func(u *authmodels.User) (map[string]any, error) {
		was := u.Active
		u.Active = active
		return map[string]any{"was_active": was}, nil
	})
	if err != nil {
		return nil, err
	}
	if !active {
		s.revokeSessions(ctx, userID)
	}
	return u, nil
}

// requireElevatedGrant guards operations on directors and super admins.
func (s *Service) requireElevatedGrant(ctx context.Context, actor policy.Actor, userID id.UserID) error {
	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return mapStoreErr(err, "failed to load user")
	}
	if !target.Role.IsElevated() {
		return nil
	}
	return s.guard.Require(ctx, actor, policy.ObjUser, policy.ActGrantElevated, audit.TargetUser, userID.String())
}

// mutate runs fn inside the store's read-modify-write and records one entry
// with before and after snapshots.
func (s *Service) mutate(ctx context.Context, actor policy.Actor, userID id.UserID, action audit.Action, fn func(*authmodels.User) (map[string]any, error)) (*authmodels.User, error) {
	var (
		before  *authmodels.User
		details map[string]any
	)
	domainErr := false
	updated, err := s.users.Update(ctx, userID, func(u *authmodels.User) error {
		before = u.Clone()
		d, err := fn(u)
		if err != nil {
			domainErr = true
			return err
		}
		details = d
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if !domainErr && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrConflict) {
			e := s.entry(actor, action, &authmodels.User{ID: userID})
			if before != nil {
				e.TargetEmail = before.Email
			}
			s.fail(ctx, e, "store_error")
		}
		return nil, mapStoreErr(err, "failed to update user")
	}
	e := s.entry(actor, action, updated)
	e.Details = details
	e.Before = audit.Snapshot(before)
	e.After = audit.Snapshot(updated)
	s.recorder.Record(ctx, e)
	return updated, nil
}

func (s *Service) revokeSessions(ctx context.Context, userID id.UserID) int {
	if s.sessions == nil {
		return 0
	}
	n, err := s.sessions.RevokeByUser(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens", "error", err, "user_id", userID.String())
	}
	return n
}

func (s *Service) checkLimit(ctx context.Context, actor policy.Actor, rule ratemodels.Rule) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Check(ctx, actor.ID, rule)
}

func (s *Service) entry(actor policy.Actor, action audit.Action, u *authmodels.User) audit.Entry {
	return audit.Entry{
		ActorID:     audit.Actor(actor.ID),
		ActorRole:   actor.Role,
		Action:      action,
		TargetType:  audit.TargetUser,
		TargetID:    u.ID.String(),
		TargetEmail: u.Email,
		Success:     true,
	}
}

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
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
