package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"shareledger/internal/policy"
	ratemodels "shareledger/internal/ratelimit/models"
	"shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

// Update changes count and/or price.
func (s *Service) Update(ctx context.Context, actor policy.Actor, shareID id.ShareID, count *int, price *decimal.Decimal) (*models.Share, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjShare, policy.ActUpdate, audit.TargetShare, shareID.String()); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, shareID, audit.ActionShareUpdated, nil, func(sh *models.Share) error {
		return sh.Modify(count, price, actor.ID, s.now())
	})
}

// UpdateValue reprices a share.
func (s *Service) UpdateValue(ctx context.Context, actor policy.Actor, shareID id.ShareID, price decimal.Decimal, note string) (*models.Share, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjShare, policy.ActUpdate, audit.TargetShare, shareID.String()); err != nil {
		return nil, err
	}
	details := map[string]any{"price": price.String()}
	return s.mutate(ctx, actor, shareID, audit.ActionShareValueUpdated, details, func(sh *models.Share) error {
		return sh.UpdateValue(price, actor.ID, s.now(), note)
	})
}

// Transfer moves a share to another active shareholder.
func (s *Service) Transfer(ctx context.Context, actor policy.Actor, shareID id.ShareID, to id.UserID, note string) (*models.Share, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjShare, policy.ActTransfer, audit.TargetShare, shareID.String()); err != nil {
		return nil, err
	}
	if err := s.checkLimit(ctx, actor, ratemodels.RuleShareTransfer); err != nil {
		return nil, err
	}
	if err := s.requireEligibleOwner(ctx, to); err != nil {
		return nil, err
	}
	details := map[string]any{"to_owner_id": to.String()}
	return s.mutate(ctx, actor, shareID, audit.ActionShareTransferred, details, func(sh *models.Share) error {
		details["from_owner_id"] = sh.OwnerID.String()
		return sh.Transfer(to, actor.ID, s.now(), note)
	})
}

// Delete soft-deletes a share.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, shareID id.ShareID, reason string) error {
	if err := s.guard.Require(ctx, actor, policy.ObjShare, policy.ActDelete, audit.TargetShare, shareID.String()); err != nil {
		return err
	}
	if err := s.checkLimit(ctx, actor, ratemodels.RuleShareDelete); err != nil {
		return err
	}
	details := map[string]any{}
	if reason != "" {
		details["reason_given"] = reason
	}
	_, err := s.mutate(ctx, actor, shareID, audit.ActionShareDeleted, details, func(sh *models.Share) error {
		return sh.Delete(actor.ID, s.now(), reason, false)
	})
	return err
}

// RetireShares soft-deletes the given shares as part of their owner's
// deletion. Shares already inactive are skipped.
func (s *Service) RetireShares(ctx context.Context, actor policy.Actor, shareIDs []id.ShareID) error {
	for _, shareID := range shareIDs {
		details := map[string]any{"reason": "owner_deleted"}
		_, err := s.mutate(ctx, actor, shareID, audit.ActionShareDeleted, details, func(sh *models.Share) error {
			return sh.Delete(actor.ID, s.now(), "owner_deleted", true)
		})
		if err != nil && !errors.Is(err, models.ErrInactive) {
			return err
		}
	}
	return nil
}

// ReinstateShares reverses RetireShares and reports how many came back.
// Shares deleted for other reasons stay deleted.
func (s *Service) ReinstateShares(ctx context.Context, actor policy.Actor, shareIDs []id.ShareID) (int, error) {
	restored := 0
	for _, shareID := range shareIDs {
		details := map[string]any{"reason": "owner_restored"}
		_, err := s.mutate(ctx, actor, shareID, audit.ActionShareUpdated, details, func(sh *models.Share) error {
			return sh.Reinstate(actor.ID, s.now())
		})
		switch {
		case err == nil:
			restored++
		case dErrors.HasCode(err, dErrors.CodeInvariantViolation), dErrors.HasCode(err, dErrors.CodeNotFound):
			s.logger.InfoContext(ctx, "share not reinstated", "share_id", shareID.String(), "error", err)
		default:
			return restored, err
		}
	}
	return restored, nil
}

// Holdings returns every share ownerID has held, deleted ones included,
// without an access check. It backs the user tombstone snapshot.
func (s *Service) Holdings(ctx context.Context, ownerID id.UserID) ([]*models.Share, error) {
	shares, err := s.store.ListByOwner(ctx, ownerID, true)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load holdings")
	}
	return shares, nil
}

// mutate applies fn inside the store's read-modify-write and records one
// entry with before/after valuations. Domain rejections are not audited.
func (s *Service) mutate(ctx context.Context, actor policy.Actor, shareID id.ShareID, action audit.Action, details map[string]any, fn func(*models.Share) error) (*models.Share, error) {
	var before models.Valuation
	domainErr := false
	updated, err := s.store.Update(ctx, shareID, func(sh *models.Share) error {
		before = sh.Valuation()
		if err := fn(sh); err != nil {
			domainErr = true
			return err
		}
		return nil
	})
	entry := s.entry(actor, action, shareID)
	entry.Details = details
	if err != nil {
		if !domainErr && !dErrors.HasCode(mapStoreErr(err, ""), dErrors.CodeNotFound) {
			entry.Before = audit.Snapshot(before)
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to update share")
	}
	entry.Before = audit.Snapshot(before)
	entry.After = audit.Snapshot(updated.Valuation())
	s.recorder.Record(ctx, entry)
	return updated, nil
}
