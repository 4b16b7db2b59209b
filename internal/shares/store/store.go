// Package store persists shares. Both implementations hand out copies, and
// every write goes through Update so history and value change together.
package store

import (
	"shareledger/internal/policy"
	"shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
)

// ListOptions narrows a share listing. Zero values mean "any".
type ListOptions struct {
	Access policy.Filter
	// OwnerID further restricts the listing to one shareholder.
	OwnerID *id.UserID
	// IncludeInactive returns soft-deleted shares as well.
	IncludeInactive bool
	Page            id.Page
}

// UpdateFunc mutates a share inside an atomic read-modify-write. Returning
// an error aborts the write.
type UpdateFunc func(s *models.Share) error

func matches(s *models.Share, opts ListOptions) bool {
	if !opts.Access.Matches(s.OwnerID) {
		return false
	}
	if opts.OwnerID != nil && s.OwnerID != *opts.OwnerID {
		return false
	}
	if !opts.IncludeInactive && !s.Active {
		return false
	}
	return true
}
