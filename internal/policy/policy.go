// Package policy decides who may see and touch which resources.
//
// The rule set is a Chinese Wall: a shareholder sees only their own records,
// directors see the whole portfolio, and super admins are exempt from every
// restriction. The same decision feeds two call styles. Authorize answers a
// single (actor, owner) question; AccessFilter returns the predicate list
// queries embed so denied rows are never fetched in the first place.
package policy

import (
	"context"

	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/requestcontext"
)

// Actor is the authenticated principal a decision is made for.
type Actor struct {
	ID   id.UserID
	Role id.Role
}

// ActorFrom resolves the actor placed on the context by the auth middleware.
func ActorFrom(ctx context.Context) Actor {
	return Actor{ID: requestcontext.UserID(ctx), Role: requestcontext.Role(ctx)}
}

// Resource names an owner-scoped resource kind.
type Resource string

const (
	ResourceUser        Resource = "user"
	ResourceShare       Resource = "share"
	ResourceCertificate Resource = "certificate"
	ResourceAuditLog    Resource = "audit_log"
)

// TargetType maps the resource onto the audit target vocabulary.
func (r Resource) TargetType() audit.TargetType {
	switch r {
	case ResourceUser:
		return audit.TargetUser
	case ResourceShare:
		return audit.TargetShare
	case ResourceCertificate:
		return audit.TargetCertificate
	case ResourceAuditLog:
		return audit.TargetAuditLog
	default:
		return audit.TargetSystem
	}
}

// Decision is the outcome of an authorization check. Reason is internal and
// goes to the audit trail only.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonSuperAdmin        = "super_admin"
	ReasonDirector          = "director_portfolio_access"
	ReasonOwner             = "owner"
	ReasonNotOwner          = "not_owner"
	ReasonVisitor           = "visitor_denied"
	ReasonUnknownRole       = "unknown_role"
	ReasonOwnAuditHidden    = "own_audit_entries_hidden"
	ReasonSystemAuditHidden = "system_entries_hidden"
)

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Authorize decides whether actor may access a resource owned by ownerID.
func Authorize(actor Actor, ownerID id.UserID, resource Resource) Decision {
	switch actor.Role {
	case id.RoleSuperAdmin:
		return allow(ReasonSuperAdmin)
	case id.RoleDirector:
		if resource == ResourceAuditLog && ownerID == actor.ID {
			return deny(ReasonOwnAuditHidden)
		}
		return allow(ReasonDirector)
	case id.RoleShareholder:
		if !actor.ID.IsNil() && ownerID == actor.ID {
			return allow(ReasonOwner)
		}
		return deny(ReasonNotOwner)
	case id.RoleVisitor:
		return deny(ReasonVisitor)
	default:
		return deny(ReasonUnknownRole)
	}
}

// AuthorizeAuditEntry is the single-entry form of AuditScope.
func AuthorizeAuditEntry(actor Actor, e *audit.Entry) Decision {
	switch actor.Role {
	case id.RoleSuperAdmin:
		return allow(ReasonSuperAdmin)
	case id.RoleDirector:
		if e.HasActor() && *e.ActorID == actor.ID {
			return deny(ReasonOwnAuditHidden)
		}
		if e.Category == audit.CategorySystem {
			return deny(ReasonSystemAuditHidden)
		}
		return allow(ReasonDirector)
	case id.RoleShareholder:
		if e.HasActor() && *e.ActorID == actor.ID {
			return allow(ReasonOwner)
		}
		return deny(ReasonNotOwner)
	case id.RoleVisitor:
		return deny(ReasonVisitor)
	default:
		return deny(ReasonUnknownRole)
	}
}

// AuditScope returns the structural restriction for audit log queries.
// Directors never see their own trail nor system-level entries.
func AuditScope(actor Actor) audit.Scope {
	switch actor.Role {
	case id.RoleSuperAdmin:
		return audit.Unrestricted
	case id.RoleDirector:
		self := actor.ID
		return audit.Scope{
			ExcludeActor:      &self,
			ExcludeCategories: []audit.Category{audit.CategorySystem},
		}
	case id.RoleShareholder:
		if actor.ID.IsNil() {
			return audit.Scope{Deny: true}
		}
		self := actor.ID
		return audit.Scope{OnlyActor: &self}
	default:
		return audit.Scope{Deny: true}
	}
}
