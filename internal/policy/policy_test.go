package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
)

func newActor(role id.Role) Actor {
	return Actor{ID: id.UserID(uuid.New()), Role: role}
}

var allResources = []Resource{ResourceUser, ResourceShare, ResourceCertificate, ResourceAuditLog}

func TestAuthorize_ShareholdersAreWalledOff(t *testing.T) {
	for range 50 {
		s1 := newActor(id.RoleShareholder)
		s2 := newActor(id.RoleShareholder)
		for _, r := range allResources {
			d := Authorize(s1, s2.ID, r)
			assert.False(t, d.Allowed, "resource %s", r)
			assert.Equal(t, ReasonNotOwner, d.Reason)
		}
		assert.Equal(t, OwnerOnly(s1.ID), AccessFilter(s1))
		assert.False(t, AccessFilter(s1).Matches(s2.ID))
	}
}

func TestAuthorize_Roles(t *testing.T) {
	owner := id.UserID(uuid.New())

	tests := []struct {
		name     string
		actor    Actor
		owner    id.UserID
		resource Resource
		allowed  bool
	}{
		{"super admin any resource", newActor(id.RoleSuperAdmin), owner, ResourceShare, true},
		{"super admin own audit", Actor{ID: owner, Role: id.RoleSuperAdmin}, owner, ResourceAuditLog, true},
		{"director share", newActor(id.RoleDirector), owner, ResourceShare, true},
		{"director certificate", newActor(id.RoleDirector), owner, ResourceCertificate, true},
		{"director user", newActor(id.RoleDirector), owner, ResourceUser, true},
		{"director other audit", newActor(id.RoleDirector), owner, ResourceAuditLog, true},
		{"director own audit", Actor{ID: owner, Role: id.RoleDirector}, owner, ResourceAuditLog, false},
		{"shareholder own share", Actor{ID: owner, Role: id.RoleShareholder}, owner, ResourceShare, true},
		{"visitor own record", Actor{ID: owner, Role: id.RoleVisitor}, owner, ResourceUser, false},
		{"unknown role", Actor{ID: owner, Role: id.Role("auditor")}, owner, ResourceUser, false},
		{"nil shareholder vs nil owner", Actor{Role: id.RoleShareholder}, id.UserID{}, ResourceShare, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, Authorize(tt.actor, tt.owner, tt.resource).Allowed)
		})
	}
}

func TestAccessFilter(t *testing.T) {
	other := id.UserID(uuid.New())

	assert.True(t, AccessFilter(newActor(id.RoleSuperAdmin)).Matches(other))
	assert.True(t, AccessFilter(newActor(id.RoleDirector)).Matches(other))

	visitor := AccessFilter(newActor(id.RoleVisitor))
	assert.True(t, visitor.IsEmpty())
	assert.False(t, visitor.Matches(other))

	sh := newActor(id.RoleShareholder)
	f := AccessFilter(sh)
	owner, ok := f.Owner()
	require.True(t, ok)
	assert.Equal(t, sh.ID, owner)
	assert.True(t, f.Matches(sh.ID))
}

func TestAuditScope_DirectorAsymmetry(t *testing.T) {
	d1 := newActor(id.RoleDirector)
	d2 := newActor(id.RoleDirector)

	own := &audit.Entry{ActorID: audit.Actor(d1.ID), Category: audit.CategoryShareMgmt}
	peer := &audit.Entry{ActorID: audit.Actor(d2.ID), Category: audit.CategoryShareMgmt}
	system := &audit.Entry{ActorID: audit.Actor(d2.ID), Category: audit.CategorySystem}
	anonymous := &audit.Entry{TargetEmail: "x@example.com", Category: audit.CategoryAuth}

	scope := AuditScope(d1)
	assert.False(t, scope.Allows(own))
	assert.True(t, scope.Allows(peer))
	assert.False(t, scope.Allows(system))
	assert.True(t, scope.Allows(anonymous))

	for _, e := range []*audit.Entry{own, peer, system, anonymous} {
		assert.Equal(t, scope.Allows(e), AuthorizeAuditEntry(d1, e).Allowed)
	}
}

func TestAuditScope_OtherRoles(t *testing.T) {
	sa := newActor(id.RoleSuperAdmin)
	sh := newActor(id.RoleShareholder)
	visitor := newActor(id.RoleVisitor)

	mine := &audit.Entry{ActorID: audit.Actor(sh.ID)}
	theirs := &audit.Entry{ActorID: audit.Actor(sa.ID), Category: audit.CategorySystem}

	assert.Equal(t, audit.Unrestricted, AuditScope(sa))
	assert.True(t, AuditScope(sa).Allows(theirs))
	assert.True(t, AuthorizeAuditEntry(sa, theirs).Allowed)

	assert.True(t, AuditScope(sh).Allows(mine))
	assert.False(t, AuditScope(sh).Allows(theirs))
	assert.False(t, AuthorizeAuditEntry(sh, theirs).Allowed)

	assert.True(t, AuditScope(visitor).Deny)
	assert.False(t, AuthorizeAuditEntry(visitor, mine).Allowed)
}
