package audit

import (
	"encoding/json"
	"time"

	id "shareledger/pkg/domain"
)

// Action is the closed set of audited domain actions.
type Action string

const (
	// Authentication
	ActionLogin                Action = "login"
	ActionLogout               Action = "logout"
	ActionLoginFailed          Action = "login_failed"
	ActionPasswordChange       Action = "password_change"
	ActionPasswordResetRequest Action = "password_reset_request"
	ActionPasswordReset        Action = "password_reset"
	ActionTwoFactorEnabled     Action = "2fa_enabled"
	ActionTwoFactorDisabled    Action = "2fa_disabled"
	ActionTwoFactorFailed      Action = "2fa_failed"
	ActionTokenRefresh         Action = "token_refresh"

	// User management
	ActionUserCreated     Action = "user_created"
	ActionUserUpdated     Action = "user_updated"
	ActionUserDeleted     Action = "user_deleted"
	ActionUserRestored    Action = "user_restored"
	ActionUserActivated   Action = "user_activated"
	ActionUserDeactivated Action = "user_deactivated"
	ActionRoleChanged     Action = "role_changed"
	ActionAccountLocked   Action = "account_locked"
	ActionAccountUnlocked Action = "account_unlocked"

	// Share management
	ActionShareCreated      Action = "share_created"
	ActionShareUpdated      Action = "share_updated"
	ActionShareDeleted      Action = "share_deleted"
	ActionShareTransferred  Action = "share_transferred"
	ActionShareValueUpdated Action = "share_value_updated"
	ActionShareViewed       Action = "share_viewed"

	// Certificate management
	ActionCertificateUploaded   Action = "certificate_uploaded"
	ActionCertificateApproved   Action = "certificate_approved"
	ActionCertificateRejected   Action = "certificate_rejected"
	ActionCertificateDeleted    Action = "certificate_deleted"
	ActionCertificateViewed     Action = "certificate_viewed"
	ActionCertificateDownloaded Action = "certificate_downloaded"
	ActionBulkApprove           Action = "bulk_approve"
	ActionBulkReject            Action = "bulk_reject"

	// System and security
	ActionDataExport        Action = "data_export"
	ActionSystemAccess      Action = "system_access"
	ActionAPIRequest        Action = "api_request"
	ActionSettingsChanged   Action = "settings_changed"
	ActionAccessDenied      Action = "access_denied"
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
	ActionAuditLogViewed    Action = "audit_log_viewed"
	ActionRetentionSweep    Action = "retention_sweep"
)

// Severity ranks the impact of an entry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsHigh reports whether s is high or critical.
func (s Severity) IsHigh() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Category groups entries by subsystem.
type Category string

const (
	CategoryAuth        Category = "auth"
	CategoryUserMgmt    Category = "user_mgmt"
	CategoryShareMgmt   Category = "share_mgmt"
	CategoryCertificate Category = "certificate_mgmt"
	CategorySystem      Category = "system"
	CategorySecurity    Category = "security"
)

// TargetType names the kind of resource an entry refers to.
type TargetType string

const (
	TargetUser        TargetType = "user"
	TargetShare       TargetType = "share"
	TargetCertificate TargetType = "certificate"
	TargetAuditLog    TargetType = "audit_log"
	TargetSystem      TargetType = "system"
)

// Entry is one immutable audit record. Severity, Category and RiskyAction are
// derived from Action by Prepare when the caller leaves them unset.
type Entry struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	ActorID      *id.UserID      `json:"actor_id,omitempty"`
	ActorRole    id.Role         `json:"actor_role,omitempty"`
	Action       Action          `json:"action"`
	TargetType   TargetType      `json:"target_type,omitempty"`
	TargetID     string          `json:"target_id,omitempty"`
	TargetEmail  string          `json:"target_email,omitempty"`
	Details      map[string]any  `json:"details,omitempty"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   *int64          `json:"duration_ms,omitempty"`
	Severity     Severity        `json:"severity"`
	Category     Category        `json:"category"`
	RiskyAction  *bool           `json:"risky_action"`
}

// IsRisky reports the resolved risky flag.
func (e *Entry) IsRisky() bool {
	return e.RiskyAction != nil && *e.RiskyAction
}

// HasActor reports whether the entry names an actor.
func (e *Entry) HasActor() bool {
	return e.ActorID != nil && !e.ActorID.IsNil()
}

// Actor returns a pointer suitable for Entry.ActorID.
func Actor(userID id.UserID) *id.UserID {
	if userID.IsNil() {
		return nil
	}
	return &userID
}

// Bool returns a pointer to b, for the optional RiskyAction field.
func Bool(b bool) *bool {
	return &b
}

// Snapshot marshals v into a before/after state. Marshal failures yield nil.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
