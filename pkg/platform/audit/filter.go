package audit

import (
	"slices"
	"time"

	id "shareledger/pkg/domain"
)

// Filter holds caller-supplied query criteria. Zero values mean "any".
type Filter struct {
	From         time.Time
	To           time.Time
	Actions      []Action
	Categories   []Category
	Severities   []Severity
	Success      *bool
	Risky        *bool
	TargetUserID *id.UserID
	ActorID      *id.UserID
	IPAddress    string
}

// Scope is the structural visibility restriction derived from the actor's
// role. Stores apply it inside the query, before any Filter criteria.
type Scope struct {
	// Deny yields an empty result set.
	Deny bool
	// OnlyActor restricts results to entries performed by this user.
	OnlyActor *id.UserID
	// ExcludeActor removes entries performed by this user.
	ExcludeActor *id.UserID
	// ExcludeCategories removes entries in these categories.
	ExcludeCategories []Category
}

// Unrestricted is the scope for principals exempt from audit restrictions.
var Unrestricted = Scope{}

// Page bounds a result set.
type Page = id.Page

const (
	DefaultPageLimit = id.DefaultPageLimit
	MaxPageLimit     = id.MaxPageLimit
)

// Allows reports whether e is visible under the scope.
func (s Scope) Allows(e *Entry) bool {
	if s.Deny {
		return false
	}
	if s.OnlyActor != nil && (!e.HasActor() || *e.ActorID != *s.OnlyActor) {
		return false
	}
	if s.ExcludeActor != nil && e.HasActor() && *e.ActorID == *s.ExcludeActor {
		return false
	}
	if slices.Contains(s.ExcludeCategories, e.Category) {
		return false
	}
	return true
}

// Matches reports whether e satisfies every criterion in the filter.
func (f Filter) Matches(e *Entry) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, e.Category) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, e.Severity) {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.Risky != nil && e.IsRisky() != *f.Risky {
		return false
	}
	if f.TargetUserID != nil && (e.TargetType != TargetUser || e.TargetID != f.TargetUserID.String()) {
		return false
	}
	if f.ActorID != nil && (!e.HasActor() || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	return true
}

// IsSecurityAlert reports whether e qualifies as a security alert: risky,
// high or critical severity, or a failed authentication.
func IsSecurityAlert(e *Entry) bool {
	return e.IsRisky() || e.Severity.IsHigh() || (e.Category == CategoryAuth && !e.Success)
}
