package models

import (
	"strings"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// MaxBulkItems caps one bulk review request.
const MaxBulkItems = 100

// RejectRequest is the body of POST /certificates/{id}/reject. An empty
// reason passes decoding so the service can refuse it without side effects.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (r *RejectRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

// BulkRequest is the body of POST /certificates/bulk/{approve,reject}.
type BulkRequest struct {
	IDs    []id.CertificateID `json:"ids"`
	Reason string             `json:"reason,omitempty" validate:"max=500"`
}

func (r *BulkRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

func (r *BulkRequest) Validate() error {
	if len(r.IDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids is required")
	}
	if len(r.IDs) > MaxBulkItems {
		return dErrors.New(dErrors.CodeValidation, "too many ids in one request")
	}
	return nil
}

// ListResponse is a page of certificates.
type ListResponse struct {
	Certificates []*Certificate `json:"certificates"`
	Total        int            `json:"total"`
}
