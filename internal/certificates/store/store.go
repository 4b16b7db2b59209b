// Package store persists certificate records and their file bytes. Records
// and bytes live in separate stores so listings never load file content.
package store

import (
	"shareledger/internal/certificates/models"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
)

// ListOptions narrows a certificate listing. Zero values mean "any".
type ListOptions struct {
	Access  policy.Filter
	OwnerID *id.UserID
	ShareID *id.ShareID
	Status  models.Status
	// LatestOnly hides superseded versions.
	LatestOnly bool
	Page       id.Page
}

// UpdateFunc mutates a certificate inside an atomic read-modify-write.
type UpdateFunc func(c *models.Certificate) error

// VersionFunc builds the next version for a share. owned holds every
// certificate of the share's owner and latest is the share's current latest
// version, or nil. Returning an error aborts the upload.
type VersionFunc func(owned []*models.Certificate, latest *models.Certificate) (*models.Certificate, error)

// RemoveFunc vets a certificate before it is removed.
type RemoveFunc func(c *models.Certificate) error

func matches(c *models.Certificate, opts ListOptions) bool {
	if !opts.Access.Matches(c.OwnerID) {
		return false
	}
	if opts.OwnerID != nil && c.OwnerID != *opts.OwnerID {
		return false
	}
	if opts.ShareID != nil && c.ShareID != *opts.ShareID {
		return false
	}
	if opts.Status != "" && c.Status != opts.Status {
		return false
	}
	if opts.LatestOnly && !c.Latest {
		return false
	}
	return true
}

func latestFor(owned []*models.Certificate, shareID id.ShareID) *models.Certificate {
	for _, c := range owned {
		if c.ShareID == shareID && c.Latest {
			return c
		}
	}
	return nil
}
