package adapters

import (
	"context"

	"shareledger/internal/audit/service"
	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
)

// userLookup is the batch read the user store implements.
// Defined locally to avoid coupling the adapter to a store package.
type userLookup interface {
	Lookup(ctx context.Context, ids []id.UserID) (map[id.UserID]models.User, error)
}

// UserDirectory adapts the user store to audit.UserDirectory, mapping user
// models to the identity the audit reports carry.
type UserDirectory struct {
	users userLookup
}

// NewUserDirectory creates a new adapter wrapping the user store.
func NewUserDirectory(users userLookup) *UserDirectory {
	return &UserDirectory{users: users}
}

// Lookup resolves ids. Unknown IDs are absent from the result.
func (d *UserDirectory) Lookup(ctx context.Context, ids []id.UserID) (map[id.UserID]service.UserRef, error) {
	found, err := d.users.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[id.UserID]service.UserRef, len(found))
	for uid, u := range found {
		out[uid] = mapUser(u)
	}
	return out, nil
}

func mapUser(u models.User) service.UserRef {
	return service.UserRef{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}
