package models

import (
	"strings"

	authmodels "shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// CreateRequest is the body of POST /users.
type CreateRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Name     string  `json:"name" validate:"required,max=120"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Role     id.Role `json:"role"`
}

func (r *CreateRequest) Normalize() {
	r.Email = authmodels.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Role == "" {
		r.Role = id.RoleShareholder
	}
}

func (r *CreateRequest) Validate() error {
	if !r.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "role is not recognised")
	}
	return nil
}

// ProfileUpdate carries the optional profile fields of PATCH /users/{id}.
type ProfileUpdate struct {
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
}

func (r *ProfileUpdate) Normalize() {
	if r.Email != nil {
		v := authmodels.NormalizeEmail(*r.Email)
		r.Email = &v
	}
	if r.Name != nil {
		v := strings.TrimSpace(*r.Name)
		r.Name = &v
	}
}

func (r *ProfileUpdate) Validate() error {
	if r.Email == nil && r.Name == nil {
		return dErrors.New(dErrors.CodeValidation, "email or name is required")
	}
	return nil
}

// RoleRequest is the body of PUT /users/{id}/role.
type RoleRequest struct {
	Role id.Role `json:"role"`
}

func (r *RoleRequest) Validate() error {
	if !r.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "role is not recognised")
	}
	return nil
}

// DeleteRequest is the optional body of DELETE /users/{id}.
type DeleteRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

func (r *DeleteRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

// ListResponse wraps a page of accounts.
type ListResponse struct {
	Users []*authmodels.User `json:"users"`
	Total int                `json:"total"`
}

// DeletedListResponse wraps a page of tombstones.
type DeletedListResponse struct {
	Deleted []Summary `json:"deleted"`
	Total   int       `json:"total"`
}
