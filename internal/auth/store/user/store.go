// Package user persists accounts. Both implementations hand out copies so a
// caller can never mutate stored state outside Update.
package user

import (
	"shareledger/internal/auth/models"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
)

// ListOptions narrows a user listing. Zero values mean "any".
type ListOptions struct {
	Access policy.Filter
	Role   id.Role
	Active *bool
	// Search matches a substring of the email or name, case-insensitively.
	Search string
	Page   id.Page
}

// UpdateFunc mutates a user inside an atomic read-modify-write. Returning an
// error aborts the write.
type UpdateFunc func(u *models.User) error

func matches(u *models.User, opts ListOptions) bool {
	if !opts.Access.Matches(ownerOf(u)) {
		return false
	}
	if opts.Role != "" && u.Role != opts.Role {
		return false
	}
	if opts.Active != nil && u.Active != *opts.Active {
		return false
	}
	if opts.Search != "" {
		q := models.NormalizeEmail(opts.Search)
		if !containsFold(u.Email, q) && !containsFold(u.Name, q) {
			return false
		}
	}
	return true
}

// ownerOf treats every account as owned by itself.
func ownerOf(u *models.User) id.UserID { return u.ID }
