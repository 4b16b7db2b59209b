package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// AssignRequest is the body of POST /shares.
type AssignRequest struct {
	OwnerID       id.UserID        `json:"owner_id"`
	Count         int              `json:"count" validate:"required,gt=0"`
	Price         decimal.Decimal  `json:"price"`
	PurchaseDate  *time.Time       `json:"purchase_date,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	Note          string           `json:"note,omitempty" validate:"max=500"`
}

func (r *AssignRequest) Normalize() { r.Note = strings.TrimSpace(r.Note) }

func (r *AssignRequest) Validate() error {
	if r.OwnerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "owner_id is required")
	}
	if r.Price.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "price cannot be negative")
	}
	if r.PurchasePrice != nil && r.PurchasePrice.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "purchase_price cannot be negative")
	}
	return nil
}

// Assignment converts the request.
func (r *AssignRequest) Assignment() Assignment {
	a := Assignment{OwnerID: r.OwnerID, Count: r.Count, Price: r.Price, Note: r.Note}
	if r.PurchaseDate != nil {
		a.PurchaseDate = *r.PurchaseDate
	}
	if r.PurchasePrice != nil {
		a.PurchasePrice = *r.PurchasePrice
	}
	return a
}

// UpdateRequest is the body of PATCH /shares/{id}.
type UpdateRequest struct {
	Count *int             `json:"count,omitempty" validate:"omitempty,gt=0"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

func (r *UpdateRequest) Validate() error {
	if r.Count == nil && r.Price == nil {
		return dErrors.New(dErrors.CodeValidation, "count or price is required")
	}
	if r.Price != nil && r.Price.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "price cannot be negative")
	}
	return nil
}

// ValueRequest is the body of PUT /shares/{id}/value.
type ValueRequest struct {
	Price decimal.Decimal `json:"price"`
	Note  string          `json:"note,omitempty" validate:"max=500"`
}

func (r *ValueRequest) Normalize() { r.Note = strings.TrimSpace(r.Note) }

func (r *ValueRequest) Validate() error {
	if r.Price.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "price cannot be negative")
	}
	return nil
}

// TransferRequest is the body of POST /shares/{id}/transfer.
type TransferRequest struct {
	ToOwnerID id.UserID `json:"to_owner_id"`
	Note      string    `json:"note,omitempty" validate:"max=500"`
}

func (r *TransferRequest) Normalize() { r.Note = strings.TrimSpace(r.Note) }

func (r *TransferRequest) Validate() error {
	if r.ToOwnerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "to_owner_id is required")
	}
	return nil
}

// DeleteRequest is the optional body of DELETE /shares/{id}.
type DeleteRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ListResponse is a page of shares.
type ListResponse struct {
	Shares []*Share `json:"shares"`
	Total  int      `json:"total"`
}
