package models

import (
	"time"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// Status is the review state of one certificate version.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// File describes the stored upload. Checksum is the hex sha256 of the bytes.
type File struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Checksum string `json:"checksum"`
}

// Certificate is one uploaded version of the proof backing a share.
type Certificate struct {
	ID              id.CertificateID  `json:"id"`
	OwnerID         id.UserID         `json:"owner_id"`
	ShareID         id.ShareID        `json:"share_id"`
	File            File              `json:"file"`
	Status          Status            `json:"status"`
	ReviewedBy      *id.UserID        `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Version         int               `json:"version"`
	PreviousID      *id.CertificateID `json:"previous_id,omitempty"`
	Latest          bool              `json:"latest"`
	UploadedAt      time.Time         `json:"uploaded_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

var (
	ErrNotPending      = dErrors.New(dErrors.CodeInvariantViolation, "certificate has already been reviewed")
	ErrReasonRequired  = dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	ErrDuplicateUpload = dErrors.New(dErrors.CodeConflict, "an identical certificate is already on file")
)

// NewVersion builds the first version, or the successor of prev when prev is
// the current latest for the same share.
func NewVersion(certID id.CertificateID, owner id.UserID, share id.ShareID, f File, prev *Certificate, now time.Time) *Certificate {
	c := &Certificate{
		ID:         certID,
		OwnerID:    owner,
		ShareID:    share,
		File:       f,
		Status:     StatusPending,
		Version:    1,
		Latest:     true,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if prev != nil {
		prevID := prev.ID
		c.Version = prev.Version + 1
		c.PreviousID = &prevID
	}
	return c
}

// Supersede clears the latest flag on a replaced version.
func (c *Certificate) Supersede(now time.Time) {
	c.Latest = false
	c.UpdatedAt = now
}

// Approve moves a pending certificate to approved.
func (c *Certificate) Approve(reviewer id.UserID, now time.Time) error {
	if c.Status != StatusPending {
		return ErrNotPending
	}
	c.Status = StatusApproved
	c.review(reviewer, now)
	return nil
}

// Reject moves a pending certificate to rejected. The reason is mandatory.
func (c *Certificate) Reject(reviewer id.UserID, reason string, now time.Time) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if c.Status != StatusPending {
		return ErrNotPending
	}
	c.Status = StatusRejected
	c.RejectionReason = reason
	c.review(reviewer, now)
	return nil
}

func (c *Certificate) review(reviewer id.UserID, now time.Time) {
	c.ReviewedBy = &reviewer
	c.ReviewedAt = &now
	c.UpdatedAt = now
}

// DeletableByOwner reports whether the owning shareholder may still remove
// this version.
func (c *Certificate) DeletableByOwner() bool {
	return c.Status == StatusPending || c.Status == StatusRejected
}

// BlocksDuplicate reports whether an upload with the same checksum must be
// refused while this version exists.
func (c *Certificate) BlocksDuplicate() bool {
	return c.Status != StatusRejected
}

// Clone returns a deep copy.
func (c *Certificate) Clone() *Certificate {
	out := *c
	if c.ReviewedBy != nil {
		v := *c.ReviewedBy
		out.ReviewedBy = &v
	}
	if c.ReviewedAt != nil {
		v := *c.ReviewedAt
		out.ReviewedAt = &v
	}
	if c.PreviousID != nil {
		v := *c.PreviousID
		out.PreviousID = &v
	}
	return &out
}

// ItemResult is the per-certificate outcome of a bulk review.
type ItemResult struct {
	ID      id.CertificateID `json:"id"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
}

// BulkResult summarises a bulk review.
type BulkResult struct {
	Results   []ItemResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}
