package models

import (
	"time"

	authmodels "shareledger/internal/auth/models"
	certmodels "shareledger/internal/certificates/models"
	sharemodels "shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
)

// DefaultRetention is how long a deleted account stays restorable.
const DefaultRetention = 30 * 24 * time.Hour

// DeletedUser is the tombstone written when an account is deleted. It keeps
// the full prior account, including credentials, so a restore is lossless.
type DeletedUser struct {
	ID           id.TombstoneID           `json:"id"`
	User         authmodels.User          `json:"user"`
	Shares       []sharemodels.Share      `json:"shares"`
	Certificates []certmodels.Certificate `json:"certificates"`
	// RetiredShareIDs are the shares this deletion flipped inactive. Restore
	// reinstates exactly these.
	RetiredShareIDs []id.ShareID `json:"retired_share_ids"`
	DeletedBy       id.UserID    `json:"deleted_by"`
	Reason          string       `json:"reason,omitempty"`
	DeletedAt       time.Time    `json:"deleted_at"`
	PurgeAt         time.Time    `json:"purge_at"`
}

// NewDeletedUser snapshots u and its holdings. Shares that were already
// inactive are kept in the snapshot but not marked for reinstatement.
func NewDeletedUser(tombID id.TombstoneID, u *authmodels.User, shares []*sharemodels.Share, certs []*certmodels.Certificate, by id.UserID, reason string, now time.Time, retention time.Duration) *DeletedUser {
	if retention <= 0 {
		retention = DefaultRetention
	}
	d := &DeletedUser{
		ID:              tombID,
		User:            *u.Clone(),
		Shares:          make([]sharemodels.Share, 0, len(shares)),
		Certificates:    make([]certmodels.Certificate, 0, len(certs)),
		RetiredShareIDs: []id.ShareID{},
		DeletedBy:       by,
		Reason:          reason,
		DeletedAt:       now,
		PurgeAt:         now.Add(retention),
	}
	for _, sh := range shares {
		d.Shares = append(d.Shares, *sh.Clone())
		if sh.Active {
			d.RetiredShareIDs = append(d.RetiredShareIDs, sh.ID)
		}
	}
	for _, c := range certs {
		d.Certificates = append(d.Certificates, *c.Clone())
	}
	return d
}

// Expired reports whether the tombstone is due for permanent removal.
func (d *DeletedUser) Expired(now time.Time) bool {
	return !now.Before(d.PurgeAt)
}

// Clone returns a deep copy.
func (d *DeletedUser) Clone() *DeletedUser {
	out := *d
	out.User = *d.User.Clone()
	out.Shares = make([]sharemodels.Share, len(d.Shares))
	for i := range d.Shares {
		out.Shares[i] = *d.Shares[i].Clone()
	}
	out.Certificates = make([]certmodels.Certificate, len(d.Certificates))
	for i := range d.Certificates {
		out.Certificates[i] = *d.Certificates[i].Clone()
	}
	out.RetiredShareIDs = append([]id.ShareID(nil), d.RetiredShareIDs...)
	return &out
}

// Summary is the listing view of a tombstone. Snapshots stay server side.
type Summary struct {
	ID               id.TombstoneID `json:"id"`
	UserID           id.UserID      `json:"user_id"`
	Email            string         `json:"email"`
	Name             string         `json:"name"`
	Role             id.Role        `json:"role"`
	ShareCount       int            `json:"share_count"`
	CertificateCount int            `json:"certificate_count"`
	DeletedBy        id.UserID      `json:"deleted_by"`
	Reason           string         `json:"reason,omitempty"`
	DeletedAt        time.Time      `json:"deleted_at"`
	PurgeAt          time.Time      `json:"purge_at"`
}

func (d *DeletedUser) Summary() Summary {
	return Summary{
		ID:               d.ID,
		UserID:           d.User.ID,
		Email:            d.User.Email,
		Name:             d.User.Name,
		Role:             d.User.Role,
		ShareCount:       len(d.Shares),
		CertificateCount: len(d.Certificates),
		DeletedBy:        d.DeletedBy,
		Reason:           d.Reason,
		DeletedAt:        d.DeletedAt,
		PurgeAt:          d.PurgeAt,
	}
}
