package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/policy"
	"shareledger/internal/users/models"
	"shareledger/internal/users/service"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the account administration consumed by the handler.
type Service interface {
	Create(ctx context.Context, actor policy.Actor, in service.CreateInput) (*authmodels.User, error)
	Get(ctx context.Context, actor policy.Actor, userID id.UserID) (*authmodels.User, error)
	List(ctx context.Context, actor policy.Actor, req service.ListRequest) ([]*authmodels.User, int, error)
	UpdateProfile(ctx context.Context, actor policy.Actor, userID id.UserID, c service.ProfileChanges) (*authmodels.User, error)
	ChangeRole(ctx context.Context, actor policy.Actor, userID id.UserID, role id.Role) (*authmodels.User, error)
	SetActive(ctx context.Context, actor policy.Actor, userID id.UserID, active bool) (*authmodels.User, error)
	Delete(ctx context.Context, actor policy.Actor, userID id.UserID, reason string) (*models.DeletedUser, error)
	ListDeleted(ctx context.Context, actor policy.Actor, page id.Page) ([]models.Summary, int, error)
	Restore(ctx context.Context, actor policy.Actor, tombID id.TombstoneID) (*models.DeletedUser, error)
}

// Handler serves the /users routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes. They all require an access token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users", h.HandleList)
	r.Post("/users", h.HandleCreate)
	r.Get("/users/deleted", h.HandleListDeleted)
	r.Post("/users/deleted/{id}/restore", h.HandleRestore)
	r.Get("/users/{id}", h.HandleGet)
	r.Patch("/users/{id}", h.HandleUpdate)
	r.Delete("/users/{id}", h.HandleDelete)
	r.Put("/users/{id}/role", h.HandleChangeRole)
	r.Post("/users/{id}/activate", h.HandleActivate)
	r.Post("/users/{id}/deactivate", h.HandleDeactivate)
}

// HandleCreate handles POST /users.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.Create(ctx, policy.ActorFrom(ctx), service.CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	h.respond(w, ctx, "user creation failed", http.StatusCreated, u, err)
}

// HandleGet handles GET /users/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(ctx, policy.ActorFrom(ctx), userID)
	h.respond(w, ctx, "user lookup failed", http.StatusOK, u, err)
}

// HandleList handles GET /users.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := httputil.QueryPage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	active, err := httputil.QueryBool(r, "active")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	users, total, err := h.service.List(ctx, policy.ActorFrom(ctx), service.ListRequest{
		Role:   id.Role(q.Get("role")),
		Active: active,
		Search: q.Get("search"),
		Page:   page,
	})
	h.respond(w, ctx, "user listing failed", http.StatusOK, models.ListResponse{Users: users, Total: total}, err)
}

// HandleUpdate handles PATCH /users/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ProfileUpdate](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.UpdateProfile(ctx, policy.ActorFrom(ctx), userID, service.ProfileChanges{Email: req.Email, Name: req.Name})
	h.respond(w, ctx, "profile update failed", http.StatusOK, u, err)
}

// HandleChangeRole handles PUT /users/{id}/role.
func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.ChangeRole(ctx, policy.ActorFrom(ctx), userID, req.Role)
	h.respond(w, ctx, "role change failed", http.StatusOK, u, err)
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	u, err := h.service.SetActive(ctx, policy.ActorFrom(ctx), userID, active)
	h.respond(w, ctx, "status change failed", http.StatusOK, u, err)
}

// HandleDelete handles DELETE /users/{id}. The body is optional.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	var req models.DeleteRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.Normalize()
	}
	tomb, err := h.service.Delete(ctx, policy.ActorFrom(ctx), userID, req.Reason)
	if err != nil {
		h.fail(ctx, "user deletion failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tomb.Summary())
}

// HandleListDeleted handles GET /users/deleted.
func (h *Handler) HandleListDeleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := httputil.QueryPage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, total, err := h.service.ListDeleted(ctx, policy.ActorFrom(ctx), page)
	h.respond(w, ctx, "deleted user listing failed", http.StatusOK, models.DeletedListResponse{Deleted: items, Total: total}, err)
}

// HandleRestore handles POST /users/deleted/{id}/restore.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tombID, err := id.ParseTombstoneID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tomb, err := h.service.Restore(ctx, policy.ActorFrom(ctx), tombID)
	if err != nil {
		h.fail(ctx, "user restore failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &tomb.User)
}

func userParam(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) respond(w http.ResponseWriter, ctx context.Context, msg string, status int, v any, err error) {
	if err != nil {
		h.fail(ctx, msg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, v)
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
