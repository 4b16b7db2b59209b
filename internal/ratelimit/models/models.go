// Package models holds the sensitive-operation rate limit vocabulary.
package models

import (
	"math"
	"strings"
	"time"

	id "shareledger/pkg/domain"
)

// Rule bounds how often one actor may perform one operation from one source.
type Rule struct {
	Name   string        `json:"name"`
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// Stock rules for the sensitive operations.
var (
	RuleBulkApprove   = Rule{Name: "bulk_approve", Max: 3, Window: 30 * time.Minute}
	RuleBulkReject    = Rule{Name: "bulk_reject", Max: 3, Window: 30 * time.Minute}
	RuleShareTransfer = Rule{Name: "share_transfer", Max: 5, Window: 15 * time.Minute}
	RuleShareDelete   = Rule{Name: "share_delete", Max: 10, Window: time.Hour}
	RuleShareCreate   = Rule{Name: "share_create", Max: 30, Window: 15 * time.Minute}
	RuleUserDelete    = Rule{Name: "user_delete", Max: 5, Window: time.Hour}
)

// DefaultRules returns the stock rules keyed by name.
func DefaultRules() map[string]Rule {
	rules := []Rule{RuleBulkApprove, RuleBulkReject, RuleShareTransfer, RuleShareDelete, RuleShareCreate, RuleUserDelete}
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.Name] = r
	}
	return out
}

// MaxWindow is the longest window across the default rules. Window state
// older than this can be swept.
func MaxWindow() time.Duration {
	var longest time.Duration
	for _, r := range DefaultRules() {
		longest = max(longest, r.Window)
	}
	return longest
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"-"`
	// Degraded is set when the shared store was unreachable and the check
	// ran against the local fallback.
	Degraded bool `json:"degraded,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r *Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Key builds the window key for (rule, actor, source).
func Key(rule string, actor id.UserID, ip string) string {
	return "sensitive:" + SanitizeKeySegment(rule) + ":" + actor.String() + ":" + SanitizeKeySegment(ip)
}

// SanitizeKeySegment escapes the delimiter so a crafted segment cannot
// address a neighbouring window. An IPv6 source "::1" becomes "__1".
func SanitizeKeySegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, ":", "_")
}

// ExceededError is returned when a rule denies an attempt. It carries the
// retry hint the HTTP layer turns into a Retry-After header.
type ExceededError struct {
	Rule       string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return "rate limit exceeded for " + e.Rule
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (e *ExceededError) RetryAfterSeconds() int {
	return (&Result{RetryAfter: e.RetryAfter}).RetryAfterSeconds()
}
