package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	auditservice "shareledger/internal/audit/service"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the audit read side consumed by the handler.
type Service interface {
	Query(ctx context.Context, actor policy.Actor, filter audit.Filter, page audit.Page) (*auditservice.Result, error)
	SecurityAlerts(ctx context.Context, actor policy.Actor, windowHours int) ([]audit.Entry, error)
	FailedLoginAttempts(ctx context.Context, actor policy.Actor, windowHours int) ([]auditservice.FailedLoginGroup, error)
	SuspiciousActivity(ctx context.Context, actor policy.Actor, windowHours int) (*auditservice.SuspiciousReport, error)
	ActivitySummary(ctx context.Context, actor policy.Actor, windowHours int) (*auditservice.Summary, error)
}

// Handler serves the /audit routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates an audit handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleQuery)
	r.Get("/audit/alerts", h.HandleAlerts)
	r.Get("/audit/failed-logins", h.HandleFailedLogins)
	r.Get("/audit/suspicious", h.HandleSuspicious)
	r.Get("/audit/summary", h.HandleSummary)
}

// HandleQuery handles GET /audit.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, page, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Query(ctx, policy.ActorFrom(ctx), filter, page)
	if err != nil {
		h.fail(ctx, "audit query failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleAlerts handles GET /audit/alerts.
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	windowed(h, w, r, "security alerts failed", func(ctx context.Context, a policy.Actor, hours int) (any, error) {
		alerts, err := h.service.SecurityAlerts(ctx, a, hours)
		return map[string]any{"alerts": alerts, "count": len(alerts)}, err
	})
}

// HandleFailedLogins handles GET /audit/failed-logins.
func (h *Handler) HandleFailedLogins(w http.ResponseWriter, r *http.Request) {
	windowed(h, w, r, "failed login report failed", func(ctx context.Context, a policy.Actor, hours int) (any, error) {
		groups, err := h.service.FailedLoginAttempts(ctx, a, hours)
		return map[string]any{"groups": groups}, err
	})
}

// HandleSuspicious handles GET /audit/suspicious.
func (h *Handler) HandleSuspicious(w http.ResponseWriter, r *http.Request) {
	windowed(h, w, r, "suspicious activity report failed", func(ctx context.Context, a policy.Actor, hours int) (any, error) {
		return h.service.SuspiciousActivity(ctx, a, hours)
	})
}

// HandleSummary handles GET /audit/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	windowed(h, w, r, "activity summary failed", func(ctx context.Context, a policy.Actor, hours int) (any, error) {
		return h.service.ActivitySummary(ctx, a, hours)
	})
}

func windowed(h *Handler, w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, policy.Actor, int) (any, error)) {
	ctx := r.Context()
	hours, err := intParam(r, "hours", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := fn(ctx, policy.ActorFrom(ctx), hours)
	if err != nil {
		h.fail(ctx, msg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func parseQuery(r *http.Request) (audit.Filter, audit.Page, error) {
	q := r.URL.Query()
	var f audit.Filter
	var err error

	if f.From, err = timeParam(q.Get("from"), "from"); err != nil {
		return f, audit.Page{}, err
	}
	if f.To, err = timeParam(q.Get("to"), "to"); err != nil {
		return f, audit.Page{}, err
	}
	for _, a := range listParam(q.Get("action")) {
		action := audit.Action(a)
		if !action.IsValid() {
			return f, audit.Page{}, dErrors.New(dErrors.CodeValidation, "unknown action "+a)
		}
		f.Actions = append(f.Actions, action)
	}
	for _, c := range listParam(q.Get("category")) {
		f.Categories = append(f.Categories, audit.Category(c))
	}
	for _, s := range listParam(q.Get("severity")) {
		f.Severities = append(f.Severities, audit.Severity(s))
	}
	if f.Success, err = boolParam(q.Get("success"), "success"); err != nil {
		return f, audit.Page{}, err
	}
	if f.Risky, err = boolParam(q.Get("risky"), "risky"); err != nil {
		return f, audit.Page{}, err
	}
	if v := q.Get("target_user"); v != "" {
		uid, err := id.ParseUserID(v)
		if err != nil {
			return f, audit.Page{}, err
		}
		f.TargetUserID = &uid
	}
	if v := q.Get("actor"); v != "" {
		uid, err := id.ParseUserID(v)
		if err != nil {
			return f, audit.Page{}, err
		}
		f.ActorID = &uid
	}
	f.IPAddress = strings.TrimSpace(q.Get("ip"))

	limit, err := intParam(r, "limit", audit.DefaultPageLimit)
	if err != nil {
		return f, audit.Page{}, err
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return f, audit.Page{}, err
	}
	return f, audit.Page{Limit: limit, Offset: offset}, nil
}

func listParam(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func timeParam(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, name+" must be RFC3339")
	}
	return t, nil
}

func boolParam(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, name+" must be a boolean")
	}
	return &b, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}
