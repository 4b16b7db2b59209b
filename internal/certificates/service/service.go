// Package service runs the certificate review workflow: versioned uploads,
// director review and owner-scoped reads.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"shareledger/internal/certificates/models"
	"shareledger/internal/certificates/store"
	"shareledger/internal/policy"
	sharemodels "shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
	strutil "shareledger/pkg/platform/strings"
)

// DefaultMaxSize bounds one upload.
const DefaultMaxSize int64 = 10 << 20

var defaultAllowedTypes = []string{"application/pdf", "image/png", "image/jpeg"}

// Store is the certificate record port.
type Store interface {
	AddVersion(ctx context.Context, owner id.UserID, shareID id.ShareID, build store.VersionFunc) (*models.Certificate, error)
	FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	Update(ctx context.Context, certID id.CertificateID, fn store.UpdateFunc) (*models.Certificate, error)
	List(ctx context.Context, opts store.ListOptions) ([]*models.Certificate, int, error)
	ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Certificate, error)
	Remove(ctx context.Context, certID id.CertificateID, now time.Time, check store.RemoveFunc) (*models.Certificate, error)
}

// FileStore holds the uploaded bytes.
type FileStore interface {
	Put(ctx context.Context, certID id.CertificateID, data []byte) error
	Get(ctx context.Context, certID id.CertificateID) ([]byte, error)
	Delete(ctx context.Context, certID id.CertificateID) error
}

// ShareDirectory resolves the share a certificate backs.
type ShareDirectory interface {
	FindByID(ctx context.Context, shareID id.ShareID) (*sharemodels.Share, error)
}

type Service struct {
	store        Store
	files        FileStore
	shares       ShareDirectory
	guard        *policy.Guard
	recorder     audit.Recorder
	logger       *slog.Logger
	now          func() time.Time
	maxSize      int64
	allowedTypes []string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxSize overrides DefaultMaxSize. Non-positive values are ignored.
func WithMaxSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithAllowedTypes replaces the accepted mime types.
func WithAllowedTypes(types ...string) Option {
	return func(s *Service) {
		if len(types) > 0 {
			s.allowedTypes = types
		}
	}
}

// New constructs a Service. A nil recorder discards entries.
func New(certs Store, files FileStore, shares ShareDirectory, guard *policy.Guard, recorder audit.Recorder, opts ...Option) *Service {
	if recorder == nil {
		recorder = audit.Nop
	}
	s := &Service{
		store:        certs,
		files:        files,
		shares:       shares,
		guard:        guard,
		recorder:     recorder,
		logger:       slog.Default(),
		now:          time.Now,
		maxSize:      DefaultMaxSize,
		allowedTypes: defaultAllowedTypes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload is the file half of an upload request.
type Upload struct {
	ShareID  id.ShareID
	Name     string
	MimeType string
	Data     []byte
}

var (
	errEmptyFile      = dErrors.New(dErrors.CodeValidation, "file is required")
	errFileTooLarge   = dErrors.New(dErrors.CodeValidation, "file exceeds the maximum size")
	errTypeNotAllowed = dErrors.New(dErrors.CodeValidation, "file type is not allowed")
	errTypeMismatch   = dErrors.New(dErrors.CodeValidation, "file content does not match its declared type")
	errShareInactive  = dErrors.New(dErrors.CodeInvariantViolation, "share is no longer active")
	errNotDeletable   = dErrors.New(dErrors.CodeInvariantViolation, "reviewed certificates can only be deleted by a director")
)

// Upload stores a new version of the certificate backing up.ShareID. The
// certificate always belongs to the share's owner; directors may upload on
// their behalf.
func (s *Service) Upload(ctx context.Context, actor policy.Actor, up Upload) (*models.Certificate, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjCertificate, policy.ActUpload, audit.TargetCertificate, ""); err != nil {
		return nil, err
	}
	mime, err := s.checkFile(up)
	if err != nil {
		return nil, err
	}
	share, err := s.shares.FindByID(ctx, up.ShareID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "share not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load share")
	}
	if err := s.guard.Authorize(ctx, actor, share.OwnerID, policy.ResourceShare, share.ID.String()); err != nil {
		return nil, err
	}
	if !share.Active {
		return nil, errShareInactive
	}

	sum := sha256.Sum256(up.Data)
	file := models.File{
		Name:     up.Name,
		Size:     int64(len(up.Data)),
		MimeType: mime,
		Checksum: hex.EncodeToString(sum[:]),
	}
	certID := id.CertificateID(uuid.New())
	now := s.now()
	entry := s.entry(actor, audit.ActionCertificateUploaded, certID)
	entry.Details = map[string]any{
		"share_id": share.ID.String(),
		"owner_id": share.OwnerID.String(),
		"checksum": file.Checksum,
		"size":     file.Size,
	}

	cert, err := s.store.AddVersion(ctx, share.OwnerID, share.ID, func(owned []*models.Certificate, latest *models.Certificate) (*models.Certificate, error) {
		for _, c := range owned {
			if c.File.Checksum == file.Checksum && c.BlocksDuplicate() {
				return nil, models.ErrDuplicateUpload
			}
		}
		return models.NewVersion(certID, share.OwnerID, share.ID, file, latest, now), nil
	})
	if err != nil {
		if !isRejection(err) {
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to store certificate")
	}
	if err := s.files.Put(ctx, cert.ID, up.Data); err != nil {
		if _, rmErr := s.store.Remove(ctx, cert.ID, now, func(*models.Certificate) error { return nil }); rmErr != nil {
			s.logger.ErrorContext(ctx, "failed to withdraw certificate without file",
				"certificate_id", cert.ID.String(), "error", rmErr)
		}
		s.fail(ctx, entry, "file_store_error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate file")
	}

	entry.Details["version"] = cert.Version
	entry.After = audit.Snapshot(cert)
	s.recorder.Record(ctx, entry)
	return cert, nil
}

// checkFile enforces size and type limits and returns the sniffed type.
func (s *Service) checkFile(up Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", errEmptyFile
	}
	if int64(len(up.Data)) > s.maxSize {
		return "", errFileTooLarge
	}
	detected := mimetype.Detect(up.Data)
	allowed := ""
	for _, t := range s.allowedTypes {
		if detected.Is(t) {
			allowed = t
			break
		}
	}
	if allowed == "" {
		return "", errTypeNotAllowed
	}
	if up.MimeType != "" && !detected.Is(up.MimeType) {
		return "", errTypeMismatch
	}
	return allowed, nil
}

// Approve records a director's approval of a pending certificate.
func (s *Service) Approve(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, error) {
	if err := s.guard.Require(ctx, actor, policy.ObjCertificate, policy.ActReview, audit.TargetCertificate, certID.String()); err != nil {
		return nil, err
	}
	return s.review(ctx, actor, certID, audit.ActionCertificateApproved, func(c *models.Certificate, now time.Time) error {
		return c.Approve(actor.ID, now)
	})
}

// Reject records a director's rejection. An empty reason is refused before
// anything is read or written.
func (s *Service) Reject(ctx context.Context, actor policy.Actor, certID id.CertificateID, reason string) (*models.Certificate, error) {
	if reason == "" {
		return nil, models.ErrReasonRequired
	}
	if err := s.guard.Require(ctx, actor, policy.ObjCertificate, policy.ActReview, audit.TargetCertificate, certID.String()); err != nil {
		return nil, err
	}
	return s.review(ctx, actor, certID, audit.ActionCertificateRejected, func(c *models.Certificate, now time.Time) error {
		return c.Reject(actor.ID, reason, now)
	})
}

func (s *Service) review(ctx context.Context, actor policy.Actor, certID id.CertificateID, action audit.Action, apply func(*models.Certificate, time.Time) error) (*models.Certificate, error) {
	var before []byte
	now := s.now()
	updated, err := s.store.Update(ctx, certID, func(c *models.Certificate) error {
		before = audit.Snapshot(c)
		return apply(c, now)
	})
	entry := s.entry(actor, action, certID)
	if err != nil {
		if !isRejection(err) {
			s.fail(ctx, entry, "store_error")
		}
		return nil, mapStoreErr(err, "failed to review certificate")
	}
	entry.Before = before
	entry.After = audit.Snapshot(updated)
	entry.Details = map[string]any{"owner_id": updated.OwnerID.String(), "share_id": updated.ShareID.String()}
	if updated.RejectionReason != "" {
		entry.Details["reason"] = updated.RejectionReason
	}
	s.recorder.Record(ctx, entry)
	return updated, nil
}

// BulkApprove approves each pending certificate in ids independently and
// records one bulk entry for the whole batch.
func (s *Service) BulkApprove(ctx context.Context, actor policy.Actor, ids []id.CertificateID) (*models.BulkResult, error) {
	return s.bulk(ctx, actor, ids, audit.ActionBulkApprove, "", func(c *models.Certificate, now time.Time) error {
		return c.Approve(actor.ID, now)
	})
}

// BulkReject rejects each pending certificate in ids with the same reason.
func (s *Service) BulkReject(ctx context.Context, actor policy.Actor, ids []id.CertificateID, reason string) (*models.BulkResult, error) {
	if reason == "" {
		return nil, models.ErrReasonRequired
	}
	return s.bulk(ctx, actor, ids, audit.ActionBulkReject, reason, func(c *models.Certificate, now time.Time) error {
		return c.Reject(actor.ID, reason, now)
	})
}

func (s *Service) bulk(ctx context.Context, actor policy.Actor, ids []id.CertificateID, action audit.Action, reason string, apply func(*models.Certificate, time.Time) error) (*models.BulkResult, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "ids is required")
	}
	if len(ids) > models.MaxBulkItems {
		return nil, dErrors.New(dErrors.CodeValidation, "too many ids in one request")
	}
	if err := s.guard.Require(ctx, actor, policy.ObjCertificate, policy.ActBulkReview, audit.TargetCertificate, ""); err != nil {
		return nil, err
	}

	now := s.now()
	result := &models.BulkResult{Results: make([]models.ItemResult, 0, len(ids))}
	unique := strutil.Dedupe(ids)
	var succeeded []string
	for _, certID := range unique {
		_, err := s.store.Update(ctx, certID, func(c *models.Certificate) error { return apply(c, now) })
		if err != nil {
			mapped := mapStoreErr(err, "failed to review certificate")
			if !isRejection(err) {
				s.logger.ErrorContext(ctx, "bulk review item failed",
					"certificate_id", certID.String(), "error", err)
			}
			result.Results = append(result.Results, models.ItemResult{ID: certID, Error: mapped.Error()})
			result.Failed++
			continue
		}
		result.Results = append(result.Results, models.ItemResult{ID: certID, Success: true})
		result.Succeeded++
		succeeded = append(succeeded, certID.String())
	}

	entry := audit.Entry{
		ActorID:    audit.Actor(actor.ID),
		ActorRole:  actor.Role,
		Action:     action,
		TargetType: audit.TargetCertificate,
		Success:    result.Failed == 0,
		Details: map[string]any{
			"requested":       len(unique),
			"succeeded":       result.Succeeded,
			"failed":          result.Failed,
			"certificate_ids": succeeded,
		},
	}
	if reason != "" {
		entry.Details["reason"] = reason
	}
	if result.Failed > 0 {
		entry.ErrorMessage = "some certificates could not be reviewed"
	}
	s.recorder.Record(ctx, entry)
	return result, nil
}

// Get returns one certificate if actor may see its owner's records.
func (s *Service) Get(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.load(ctx, actor, certID)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, s.entry(actor, audit.ActionCertificateViewed, cert.ID))
	return cert, nil
}

// ListRequest narrows a listing on top of the access filter.
type ListRequest struct {
	OwnerID    *id.UserID
	ShareID    *id.ShareID
	Status     models.Status
	LatestOnly bool
	Page       id.Page
}

func (s *Service) List(ctx context.Context, actor policy.Actor, req ListRequest) ([]*models.Certificate, int, error) {
	if req.Status != "" && !req.Status.IsValid() {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "unknown certificate status")
	}
	certs, total, err := s.store.List(ctx, store.ListOptions{
		Access:     policy.AccessFilter(actor),
		OwnerID:    req.OwnerID,
		ShareID:    req.ShareID,
		Status:     req.Status,
		LatestOnly: req.LatestOnly,
		Page:       req.Page,
	})
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return certs, total, nil
}

// Download returns the certificate and its bytes.
func (s *Service) Download(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, []byte, error) {
	cert, err := s.load(ctx, actor, certID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.files.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "certificate file not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate file")
	}
	entry := s.entry(actor, audit.ActionCertificateDownloaded, cert.ID)
	entry.Details = map[string]any{"owner_id": cert.OwnerID.String(), "size": cert.File.Size}
	s.recorder.Record(ctx, entry)
	return cert, data, nil
}

// Delete removes a certificate. Owners may delete their pending or rejected
// versions; holders of certificate:delete_any may delete any version.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, certID id.CertificateID) error {
	if _, err := s.load(ctx, actor, certID); err != nil {
		return err
	}
	anyVersion := s.guard.Can(actor.Role, policy.ObjCertificate, policy.ActDeleteAny)

	now := s.now()
	entry := s.entry(actor, audit.ActionCertificateDeleted, certID)
	removed, err := s.store.Remove(ctx, certID, now, func(c *models.Certificate) error {
		if !anyVersion && !c.DeletableByOwner() {
			return errNotDeletable
		}
		return nil
	})
	if err != nil {
		if !isRejection(err) {
			s.fail(ctx, entry, "store_error")
		}
		return mapStoreErr(err, "failed to delete certificate")
	}
	if err := s.files.Delete(ctx, certID); err != nil {
		s.logger.WarnContext(ctx, "certificate file left behind",
			"certificate_id", certID.String(), "error", err)
	}
	entry.Before = audit.Snapshot(removed)
	entry.Details = map[string]any{
		"owner_id":   removed.OwnerID.String(),
		"share_id":   removed.ShareID.String(),
		"version":    removed.Version,
		"was_latest": removed.Latest,
	}
	s.recorder.Record(ctx, entry)
	return nil
}

// SnapshotByOwner returns every version owner has uploaded, for account
// tombstones.
func (s *Service) SnapshotByOwner(ctx context.Context, owner id.UserID) ([]*models.Certificate, error) {
	certs, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot certificates")
	}
	return certs, nil
}

func (s *Service) load(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.store.FindByID(ctx, certID)
	if err != nil {
		return nil, mapStoreErr(err, "failed to load certificate")
	}
	if err := s.guard.Authorize(ctx, actor, cert.OwnerID, policy.ResourceCertificate, certID.String()); err != nil {
		return nil, err
	}
	return cert, nil
}

func (s *Service) entry(actor policy.Actor, action audit.Action, certID id.CertificateID) audit.Entry {
	return audit.Entry{
		ActorID:    audit.Actor(actor.ID),
		ActorRole:  actor.Role,
		Action:     action,
		TargetType: audit.TargetCertificate,
		TargetID:   certID.String(),
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

// isRejection reports whether err is a domain outcome rather than a fault.
func isRejection(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de) || errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict)
}

func mapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "certificate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "certificate version conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
