package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	certmodels "shareledger/internal/certificates/models"
	"shareledger/internal/policy"
	ratemodels "shareledger/internal/ratelimit/models"
	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

var errTombstoneExpired = dErrors.New(dErrors.CodeNotFound, "deleted user not found")

// Delete removes userID from the live register. The tombstone is written
// first; the shares are retired and the live record removed after it. When a
// later step fails the tombstone is withdrawn so the account is not left in
// both places.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, userID id.UserID, reason string) (*models.DeletedUser, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActDelete, audit.TargetUser, userID.String()); err != nil {
		return nil, err
	}
	if userID == actor.ID {
		return nil, errSelfDelete
	}
	if err := s.checkLimit(ctx, actor, ratemodels.RuleUserDelete); err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load user")
	}
	if u.Role.IsElevated() {
		if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActGrantElevated, audit.TargetUser, userID.String()); err != nil {
			return nil, err
		}
	}

	entry := s.entry(actor, audit.ActionUserDeleted, u)
	entry.Before = audit.Snapshot(u)

	holdings, err := s.shares.Holdings(ctx, userID)
	if err != nil {
		s.fail(ctx, entry, "snapshot_failed")
		return nil, err
	}
	var certs []*certmodels.Certificate
	if s.certs != nil {
		if certs, err = s.certs.SnapshotByOwner(ctx, userID); err != nil {
			s.fail(ctx, entry, "snapshot_failed")
			return nil, err
		}
	}

	now := s.now()
	tomb := models.NewDeletedUser(id.TombstoneID(uuid.New()), u, holdings, certs, actor.ID, reason, now, s.retention)
	if err := s.tombstones.Create(ctx, tomb); err != nil {
		s.fail(ctx, entry, "store_error")
		return nil, mapStoreErr(err, "failed to delete user")
	}
	if err := s.shares.RetireShares(ctx, actor, tomb.RetiredShareIDs); err != nil {
		s.withdraw(ctx, tomb)
		s.fail(ctx, entry, "retire_shares_failed")
		return nil, err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if _, rerr := s.shares.ReinstateShares(ctx, actor, tomb.RetiredShareIDs); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to reinstate shares after aborted deletion",
				"user_id", userID.String(), "error", rerr)
		}
		s.withdraw(ctx, tomb)
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to delete user")
	}
	revoked := s.revokeSessions(ctx, userID)

	entry.Details = map[string]any{
		"tombstone_id":      tomb.ID.String(),
		"reason_given":      reason != "",
		"share_count":       len(tomb.Shares),
		"retired_shares":    len(tomb.RetiredShareIDs),
		"certificate_count": len(tomb.Certificates),
		"revoked_tokens":    revoked,
		"purge_at":          tomb.PurgeAt,
	}
	s.recorder.Record(ctx, entry)
	return tomb, nil
}

func (s *Service) withdraw(ctx context.Context, tomb *models.DeletedUser) {
	if err := s.tombstones.Delete(ctx, tomb.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to withdraw tombstone",
			"tombstone_id", tomb.ID.String(), "error", err)
	}
}

// ListDeleted pages through restorable accounts.
func (s *Service) ListDeleted(ctx context.Context, actor policy.Actor, page id.Page) ([]models.Summary, int, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActListDeleted, audit.TargetUser, ""); err != nil {
		return nil, 0, err
	}
	items, total, err := s.tombstones.List(ctx, page)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deleted users")
	}
	out := make([]models.Summary, 0, len(items))
	for _, d := range items {
		out = append(out, d.Summary())
	}
	return out, total, nil
}

// Restore brings a deleted account back with the shares its deletion
// retired. An expired tombstone is treated as gone, and an email taken by a
// newer account is a conflict.
func (s *Service) Restore(ctx context.Context, actor policy.Actor, tombID id.TombstoneID) (*models.DeletedUser, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActRestore, audit.TargetUser, tombID.String()); err != nil {
		return nil, err
	}
	tomb, err := s.tombstones.FindByID(ctx, tombID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errTombstoneExpired
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deleted user")
	}
	now := s.now()
	if tomb.Expired(now) {
		return nil, errTombstoneExpired
	}
	if tomb.User.Role.IsElevated() {
		if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActGrantElevated, audit.TargetUser, tomb.User.ID.String()); err != nil {
			return nil, err
		}
	}

	u := tomb.User.Clone()
	u.UpdatedAt = now
	entry := s.entry(actor, audit.ActionUserRestored, u)
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to restore user")
	}
	reinstated, err := s.shares.ReinstateShares(ctx, actor, tomb.RetiredShareIDs)
	if err != nil {
		s.logger.ErrorContext(ctx, "restored user with partial holdings",
			"user_id", u.ID.String(), "reinstated", reinstated, "error", err)
	}
	if err := s.tombstones.Delete(ctx, tomb.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove tombstone after restore",
			"tombstone_id", tomb.ID.String(), "error", err)
	}

	entry.After = audit.Snapshot(u)
	entry.Details = map[string]any{
		"tombstone_id":      tomb.ID.String(),
		"reinstated_shares": reinstated,
		"deleted_at":        tomb.DeletedAt,
	}
	s.recorder.Record(ctx, entry)
	tomb.User = *u
	return tomb, nil
}

// PurgeExpired permanently removes tombstones past their purge time. It has
// the sweeper.Job shape.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return s.tombstones.DeleteExpired(ctx, now)
}
