package policy

import (
	id "shareledger/pkg/domain"
)

// FilterKind enumerates the three predicate shapes a list query can take.
type FilterKind int

const (
	FilterEmpty FilterKind = iota
	FilterUnrestricted
	FilterOwnerOnly
)

// Filter is the list-query predicate derived from an actor. Stores translate
// it into their native query form (a WHERE clause, a map scan).
type Filter struct {
	Kind    FilterKind
	OwnerID id.UserID
}

// Unrestricted matches every row.
func Unrestricted() Filter { return Filter{Kind: FilterUnrestricted} }

// OwnerOnly matches rows owned by ownerID.
func OwnerOnly(ownerID id.UserID) Filter { return Filter{Kind: FilterOwnerOnly, OwnerID: ownerID} }

// Empty matches nothing.
func Empty() Filter { return Filter{Kind: FilterEmpty} }

// AccessFilter returns the list predicate for actor.
func AccessFilter(actor Actor) Filter {
	switch actor.Role {
	case id.RoleSuperAdmin, id.RoleDirector:
		return Unrestricted()
	case id.RoleShareholder:
		if actor.ID.IsNil() {
			return Empty()
		}
		return OwnerOnly(actor.ID)
	default:
		return Empty()
	}
}

// Matches reports whether a row owned by ownerID passes the predicate.
func (f Filter) Matches(ownerID id.UserID) bool {
	switch f.Kind {
	case FilterUnrestricted:
		return true
	case FilterOwnerOnly:
		return ownerID == f.OwnerID
	default:
		return false
	}
}

// IsEmpty reports whether the predicate can match nothing.
func (f Filter) IsEmpty() bool { return f.Kind == FilterEmpty }

// Owner returns the owner constraint, if any.
func (f Filter) Owner() (id.UserID, bool) {
	return f.OwnerID, f.Kind == FilterOwnerOnly
}
