package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	id "shareledger/pkg/domain"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Object and Action name a role-level capability, independent of ownership.
type (
	Object string
	Action string
)

const (
	ObjUser        Object = "user"
	ObjShare       Object = "share"
	ObjCertificate Object = "certificate"
	ObjAuditLog    Object = "audit_log"
)

const (
	ActUpload         Action = "upload"
	ActView           Action = "view"
	ActList           Action = "list"
	ActCreate         Action = "create"
	ActCreateElevated Action = "create_elevated"
	ActChangeRole     Action = "change_role"
	ActGrantElevated  Action = "grant_elevated"
	ActDeactivate     Action = "deactivate"
	ActDelete         Action = "delete"
	ActDeleteAny      Action = "delete_any"
	ActRestore        Action = "restore"
	ActListDeleted    Action = "list_deleted"
	ActUnlock         Action = "unlock"
	ActAssign         Action = "assign"
	ActUpdate         Action = "update"
	ActTransfer       Action = "transfer"
	ActReview         Action = "review"
	ActBulkReview     Action = "bulk_review"
	ActAnalytics      Action = "analytics"
	ActExport         Action = "export"
)

// Capabilities answers role-level questions with a casbin RBAC enforcer
// loaded from the embedded model and policy.
type Capabilities struct {
	enforcer *casbin.SyncedEnforcer
}

// NewCapabilities builds the enforcer.
func NewCapabilities() (*Capabilities, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load capability model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create capability enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Capabilities{enforcer: enforcer}, nil
}

// MustCapabilities is NewCapabilities for wiring and tests; the embedded
// policy is static so a failure is a build defect.
func MustCapabilities() *Capabilities {
	c, err := NewCapabilities()
	if err != nil {
		panic(err)
	}
	return c
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add capability %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add role inheritance %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed capability line %q", line)
		}
	}
	return nil
}

// Can reports whether role holds the capability. Unknown roles hold nothing.
func (c *Capabilities) Can(role id.Role, obj Object, act Action) bool {
	if !role.IsValid() {
		return false
	}
	ok, err := c.enforcer.Enforce(string(role), string(obj), string(act))
	return err == nil && ok
}
