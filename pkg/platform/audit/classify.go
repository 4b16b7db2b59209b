package audit

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type classification struct {
	severity Severity
	category Category
}

// actionClassification maps each action to its default severity and category.
var actionClassification = map[Action]classification{
	ActionLogin:                {SeverityLow, CategoryAuth},
	ActionLogout:               {SeverityLow, CategoryAuth},
	ActionLoginFailed:          {SeverityMedium, CategoryAuth},
	ActionPasswordChange:       {SeverityMedium, CategoryAuth},
	ActionPasswordResetRequest: {SeverityMedium, CategoryAuth},
	ActionPasswordReset:        {SeverityMedium, CategoryAuth},
	ActionTwoFactorEnabled:     {SeverityMedium, CategoryAuth},
	ActionTwoFactorDisabled:    {SeverityHigh, CategoryAuth},
	ActionTwoFactorFailed:      {SeverityHigh, CategoryAuth},
	ActionTokenRefresh:         {SeverityLow, CategoryAuth},

	ActionUserCreated:     {SeverityMedium, CategoryUserMgmt},
	ActionUserUpdated:     {SeverityLow, CategoryUserMgmt},
	ActionUserDeleted:     {SeverityHigh, CategoryUserMgmt},
	ActionUserRestored:    {SeverityHigh, CategoryUserMgmt},
	ActionUserActivated:   {SeverityMedium, CategoryUserMgmt},
	ActionUserDeactivated: {SeverityMedium, CategoryUserMgmt},
	ActionRoleChanged:     {SeverityHigh, CategoryUserMgmt},
	ActionAccountLocked:   {SeverityHigh, CategorySecurity},
	ActionAccountUnlocked: {SeverityMedium, CategorySecurity},

	ActionShareCreated:      {SeverityMedium, CategoryShareMgmt},
	ActionShareUpdated:      {SeverityMedium, CategoryShareMgmt},
	ActionShareDeleted:      {SeverityHigh, CategoryShareMgmt},
	ActionShareTransferred:  {SeverityHigh, CategoryShareMgmt},
	ActionShareValueUpdated: {SeverityMedium, CategoryShareMgmt},
	ActionShareViewed:       {SeverityLow, CategoryShareMgmt},

	ActionCertificateUploaded:   {SeverityLow, CategoryCertificate},
	ActionCertificateApproved:   {SeverityMedium, CategoryCertificate},
	ActionCertificateRejected:   {SeverityMedium, CategoryCertificate},
	ActionCertificateDeleted:    {SeverityHigh, CategoryCertificate},
	ActionCertificateViewed:     {SeverityLow, CategoryCertificate},
	ActionCertificateDownloaded: {SeverityLow, CategoryCertificate},
	ActionBulkApprove:           {SeverityHigh, CategoryCertificate},
	ActionBulkReject:            {SeverityHigh, CategoryCertificate},

	ActionDataExport:        {SeverityCritical, CategorySystem},
	ActionSystemAccess:      {SeverityCritical, CategorySystem},
	ActionAPIRequest:        {SeverityLow, CategorySystem},
	ActionSettingsChanged:   {SeverityHigh, CategorySystem},
	ActionAccessDenied:      {SeverityHigh, CategorySecurity},
	ActionRateLimitExceeded: {SeverityHigh, CategorySecurity},
	ActionAuditLogViewed:    {SeverityLow, CategorySystem},
	ActionRetentionSweep:    {SeverityMedium, CategorySystem},
}

// riskyActions are high-impact regardless of severity.
var riskyActions = map[Action]struct{}{
	ActionUserDeleted:        {},
	ActionRoleChanged:        {},
	ActionShareDeleted:       {},
	ActionShareTransferred:   {},
	ActionCertificateDeleted: {},
	ActionBulkApprove:        {},
	ActionBulkReject:         {},
	ActionDataExport:         {},
	ActionTwoFactorDisabled:  {},
	ActionAccessDenied:       {},
	ActionRateLimitExceeded:  {},
}

// preAuthActions may be recorded without an actor when a target email is set.
var preAuthActions = map[Action]struct{}{
	ActionLoginFailed:          {},
	ActionPasswordResetRequest: {},
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	_, ok := actionClassification[a]
	return ok
}

// DefaultSeverity returns the table severity, or medium for unknown actions.
func (a Action) DefaultSeverity() Severity {
	if c, ok := actionClassification[a]; ok {
		return c.severity
	}
	return SeverityMedium
}

// DefaultCategory returns the table category, or system for unknown actions.
func (a Action) DefaultCategory() Category {
	if c, ok := actionClassification[a]; ok {
		return c.category
	}
	return CategorySystem
}

// IsRisky reports whether a belongs to the fixed risky set.
func (a Action) IsRisky() bool {
	_, ok := riskyActions[a]
	return ok
}

// IsPreAuth reports whether a may be logged with a null actor.
func (a Action) IsPreAuth() bool {
	_, ok := preAuthActions[a]
	return ok
}

// ErrMissingActor is returned by Prepare when no actor is identifiable.
var ErrMissingActor = errors.New("audit entry requires an actor")

// ErrUnknownAction is returned by Prepare for actions outside the closed set.
var ErrUnknownAction = errors.New("audit entry has unknown action")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-ordered identifier for an entry created at t.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Prepare validates e and fills derived fields. It never mutates the input.
func Prepare(e Entry, now time.Time) (Entry, error) {
	if !e.Action.IsValid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	if !e.HasActor() {
		if !e.Action.IsPreAuth() || e.TargetEmail == "" {
			return Entry{}, ErrMissingActor
		}
		e.ActorID = nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.ID == "" {
		e.ID = NewID(e.Timestamp)
	}
	if e.Severity == "" {
		e.Severity = e.Action.DefaultSeverity()
	}
	if e.Category == "" {
		e.Category = e.Action.DefaultCategory()
	}
	if e.RiskyAction == nil {
		e.RiskyAction = Bool(e.Action.IsRisky())
	}
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e, nil
}
