package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
)

// SecurityAlerts returns risky, high-severity and failed-auth entries in the
// trailing window, newest first.
func (e *Engine) SecurityAlerts(ctx context.Context, actor policy.Actor, windowHours int) (_ []audit.Entry, err error) {
	ctx, span := e.tracer.Start(ctx, "audit.SecurityAlerts")
	span.SetAttributes(attribute.Int("window_hours", windowHours))
	defer endSpan(span, &err)

	entries, _, err := e.window(ctx, actor, windowHours, audit.Filter{})
	if err != nil {
		return nil, err
	}
	alerts := []audit.Entry{}
	for i := len(entries) - 1; i >= 0; i-- {
		if audit.IsSecurityAlert(&entries[i]) {
			alerts = append(alerts, entries[i])
		}
	}
	span.SetAttributes(attribute.Int("alerts", len(alerts)))
	return alerts, nil
}

// FailedLoginGroup aggregates failed logins for one (user, source IP) pair.
// UserID is nil when the attempted email matched no account.
type FailedLoginGroup struct {
	UserID      *id.UserID `json:"user_id,omitempty"`
	Email       string     `json:"email,omitempty"`
	IPAddress   string     `json:"ip_address"`
	Attempts    int        `json:"attempts"`
	LastAttempt time.Time  `json:"last_attempt"`
	User        *UserRef   `json:"user,omitempty"`
}

type loginKey struct {
	user  id.UserID
	email string
	ip    string
}

// FailedLoginAttempts groups login_failed entries in the window by user and
// source IP, most attempts first.
func (e *Engine) FailedLoginAttempts(ctx context.Context, actor policy.Actor, windowHours int) (_ []FailedLoginGroup, err error) {
	ctx, span := e.tracer.Start(ctx, "audit.FailedLoginAttempts")
	defer endSpan(span, &err)

	entries, _, err := e.window(ctx, actor, windowHours, audit.Filter{
		Actions: []audit.Action{audit.ActionLoginFailed},
	})
	if err != nil {
		return nil, err
	}

	groups := map[loginKey]*FailedLoginGroup{}
	var order []loginKey
	for i := range entries {
		en := &entries[i]
		k := loginKey{email: en.TargetEmail, ip: en.IPAddress}
		if en.HasActor() {
			k.user = *en.ActorID
			k.email = ""
		}
		g, ok := groups[k]
		if !ok {
			g = &FailedLoginGroup{IPAddress: en.IPAddress, Email: en.TargetEmail}
			if en.HasActor() {
				g.UserID = audit.Actor(k.user)
			}
			groups[k] = g
			order = append(order, k)
		}
		g.Attempts++
		if en.Timestamp.After(g.LastAttempt) {
			g.LastAttempt = en.Timestamp
		}
	}

	out := make([]FailedLoginGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	e.resolveUsers(ctx, out)
	slices.SortStableFunc(out, func(a, b FailedLoginGroup) int {
		if c := cmp.Compare(b.Attempts, a.Attempts); c != 0 {
			return c
		}
		return b.LastAttempt.Compare(a.LastAttempt)
	})
	return out, nil
}

func (e *Engine) resolveUsers(ctx context.Context, groups []FailedLoginGroup) {
	if e.users == nil {
		return
	}
	var ids []id.UserID
	for _, g := range groups {
		if g.UserID != nil && !slices.Contains(ids, *g.UserID) {
			ids = append(ids, *g.UserID)
		}
	}
	if len(ids) == 0 {
		return
	}
	refs, err := e.users.Lookup(ctx, ids)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to resolve users for failed-login report", "error", err)
		return
	}
	for i := range groups {
		if groups[i].UserID == nil {
			continue
		}
		if ref, ok := refs[*groups[i].UserID]; ok {
			groups[i].User = &ref
			if groups[i].Email == "" {
				groups[i].Email = ref.Email
			}
		}
	}
}

// SuspiciousIP is a source with repeated failed logins.
type SuspiciousIP struct {
	IPAddress       string    `json:"ip_address"`
	FailedAttempts  int       `json:"failed_attempts"`
	DistinctTargets int       `json:"distinct_targets"`
	LastAttempt     time.Time `json:"last_attempt"`
}

// MultiLocationUser is a user who logged in from unusually many sources.
type MultiLocationUser struct {
	UserID     id.UserID `json:"user_id"`
	Logins     int       `json:"logins"`
	IPs        []string  `json:"ips"`
	UserAgents []string  `json:"user_agents"`
}

// SuspiciousReport merges the three detector outputs.
type SuspiciousReport struct {
	SuspiciousIPs      []SuspiciousIP      `json:"suspicious_ips"`
	MultiLocationUsers []MultiLocationUser `json:"multi_location_users"`
	OffHoursBulkOps    []audit.Entry       `json:"off_hours_bulk_operations"`
}

// SuspiciousActivity runs the failed-login, multi-location and off-hours
// detectors concurrently over the trailing window.
func (e *Engine) SuspiciousActivity(ctx context.Context, actor policy.Actor, windowHours int) (_ *SuspiciousReport, err error) {
	ctx, span := e.tracer.Start(ctx, "audit.SuspiciousActivity")
	defer endSpan(span, &err)

	if err := e.guard.Require(ctx, actor, policy.ObjAuditLog, policy.ActAnalytics, audit.TargetAuditLog, ""); err != nil {
		return nil, err
	}
	since, err := e.since(windowHours)
	if err != nil {
		return nil, err
	}
	scope := policy.AuditScope(actor)
	report := &SuspiciousReport{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := e.load(gctx, scope, since, audit.Filter{Actions: []audit.Action{audit.ActionLoginFailed}})
		if err != nil {
			return err
		}
		report.SuspiciousIPs = detectSuspiciousIPs(entries, e.thresholds.FailedLoginsPerIP)
		return nil
	})
	g.Go(func() error {
		ok := true
		entries, err := e.load(gctx, scope, since, audit.Filter{Actions: []audit.Action{audit.ActionLogin}, Success: &ok})
		if err != nil {
			return err
		}
		report.MultiLocationUsers = detectMultiLocation(entries, e.thresholds.MaxDistinctIPs, e.thresholds.MaxDistinctAgents)
		return nil
	})
	g.Go(func() error {
		entries, err := e.load(gctx, scope, since, audit.Filter{
			Actions: []audit.Action{audit.ActionBulkApprove, audit.ActionBulkReject},
		})
		if err != nil {
			return err
		}
		report.OffHoursBulkOps = detectOffHours(entries, e.thresholds)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("suspicious_ips", len(report.SuspiciousIPs)),
		attribute.Int("multi_location_users", len(report.MultiLocationUsers)),
		attribute.Int("off_hours_bulk_ops", len(report.OffHoursBulkOps)),
	)
	return report, nil
}

func detectSuspiciousIPs(entries []audit.Entry, threshold int) []SuspiciousIP {
	type acc struct {
		SuspiciousIP
		targets map[string]struct{}
	}
	byIP := map[string]*acc{}
	for i := range entries {
		en := &entries[i]
		if en.IPAddress == "" {
			continue
		}
		a, ok := byIP[en.IPAddress]
		if !ok {
			a = &acc{SuspiciousIP: SuspiciousIP{IPAddress: en.IPAddress}, targets: map[string]struct{}{}}
			byIP[en.IPAddress] = a
		}
		a.FailedAttempts++
		target := en.TargetEmail
		if en.HasActor() {
			target = en.ActorID.String()
		}
		a.targets[target] = struct{}{}
		if en.Timestamp.After(a.LastAttempt) {
			a.LastAttempt = en.Timestamp
		}
	}

	out := []SuspiciousIP{}
	for _, a := range byIP {
		if a.FailedAttempts < threshold {
			continue
		}
		a.DistinctTargets = len(a.targets)
		out = append(out, a.SuspiciousIP)
	}
	slices.SortFunc(out, func(a, b SuspiciousIP) int {
		if c := cmp.Compare(b.FailedAttempts, a.FailedAttempts); c != 0 {
			return c
		}
		return cmp.Compare(a.IPAddress, b.IPAddress)
	})
	return out
}

func detectMultiLocation(entries []audit.Entry, maxIPs, maxAgents int) []MultiLocationUser {
	type acc struct {
		logins int
		ips    []string
		agents []string
	}
	byUser := map[id.UserID]*acc{}
	for i := range entries {
		en := &entries[i]
		if !en.HasActor() {
			continue
		}
		a, ok := byUser[*en.ActorID]
		if !ok {
			a = &acc{}
			byUser[*en.ActorID] = a
		}
		a.logins++
		if en.IPAddress != "" && !slices.Contains(a.ips, en.IPAddress) {
			a.ips = append(a.ips, en.IPAddress)
		}
		if en.UserAgent != "" && !slices.Contains(a.agents, en.UserAgent) {
			a.agents = append(a.agents, en.UserAgent)
		}
	}

	out := []MultiLocationUser{}
	for uid, a := range byUser {
		if len(a.ips) <= maxIPs && len(a.agents) <= maxAgents {
			continue
		}
		out = append(out, MultiLocationUser{UserID: uid, Logins: a.logins, IPs: a.ips, UserAgents: a.agents})
	}
	slices.SortFunc(out, func(a, b MultiLocationUser) int {
		return cmp.Compare(a.UserID.String(), b.UserID.String())
	})
	return out
}

func detectOffHours(entries []audit.Entry, t Thresholds) []audit.Entry {
	out := []audit.Entry{}
	for i := range entries {
		if isOffHours(entries[i].Timestamp, t) {
			out = append(out, entries[i])
		}
	}
	return out
}

// isOffHours reports whether ts falls before BusinessStart or after
// BusinessEnd in the configured location.
func isOffHours(ts time.Time, t Thresholds) bool {
	local := ts.In(t.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.Location)
	offset := local.Sub(midnight)
	return offset < t.BusinessStart || offset > t.BusinessEnd
}

// Summary counts activity in a window.
type Summary struct {
	Since      time.Time              `json:"since"`
	Total      int                    `json:"total"`
	Failed     int                    `json:"failed"`
	Risky      int                    `json:"risky"`
	ByAction   map[audit.Action]int   `json:"by_action"`
	ByCategory map[audit.Category]int `json:"by_category"`
	BySeverity map[audit.Severity]int `json:"by_severity"`
}

// ActivitySummary aggregates counts over the trailing window.
func (e *Engine) ActivitySummary(ctx context.Context, actor policy.Actor, windowHours int) (_ *Summary, err error) {
	ctx, span := e.tracer.Start(ctx, "audit.ActivitySummary")
	defer endSpan(span, &err)

	entries, since, err := e.window(ctx, actor, windowHours, audit.Filter{})
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Since:      since,
		ByAction:   map[audit.Action]int{},
		ByCategory: map[audit.Category]int{},
		BySeverity: map[audit.Severity]int{},
	}
	for i := range entries {
		en := &entries[i]
		s.Total++
		if !en.Success {
			s.Failed++
		}
		if en.IsRisky() {
			s.Risky++
		}
		s.ByAction[en.Action]++
		s.ByCategory[en.Category]++
		s.BySeverity[en.Severity]++
	}
	return s, nil
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, "failed")
	}
	span.End()
}
