// Package domain holds typed identifiers and small value types shared across
// bounded contexts. Typed IDs keep a UserID from being passed where a ShareID
// is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "shareledger/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	SessionID     uuid.UUID
	ShareID       uuid.UUID
	CertificateID uuid.UUID
	TombstoneID   uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string     { return uuid.UUID(id).String() }
func (id ShareID) String() string       { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id TombstoneID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ShareID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TombstoneID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ShareID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id CertificateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id TombstoneID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ShareID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CertificateID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TombstoneID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseUserID parses a user ID at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

// ParseSessionID parses a session ID at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session")
	return SessionID(u), err
}

// ParseShareID parses a share ID at a trust boundary.
func ParseShareID(s string) (ShareID, error) {
	u, err := parseUUID(s, "share")
	return ShareID(u), err
}

// ParseCertificateID parses a certificate ID at a trust boundary.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate")
	return CertificateID(u), err
}

// ParseTombstoneID parses a deleted-user record ID at a trust boundary.
func ParseTombstoneID(s string) (TombstoneID, error) {
	u, err := parseUUID(s, "deleted user")
	return TombstoneID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	return u, nil
}
