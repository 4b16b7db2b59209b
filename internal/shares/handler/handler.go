package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"shareledger/internal/policy"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/service"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the share register consumed by the handler.
type Service interface {
	Assign(ctx context.Context, actor policy.Actor, a models.Assignment) (*models.Share, error)
	Get(ctx context.Context, actor policy.Actor, shareID id.ShareID) (*models.Share, error)
	List(ctx context.Context, actor policy.Actor, req service.ListRequest) ([]*models.Share, int, error)
	Update(ctx context.Context, actor policy.Actor, shareID id.ShareID, count *int, price *decimal.Decimal) (*models.Share, error)
	UpdateValue(ctx context.Context, actor policy.Actor, shareID id.ShareID, price decimal.Decimal, note string) (*models.Share, error)
	Transfer(ctx context.Context, actor policy.Actor, shareID id.ShareID, to id.UserID, note string) (*models.Share, error)
	Delete(ctx context.Context, actor policy.Actor, shareID id.ShareID, reason string) error
	Portfolio(ctx context.Context, actor policy.Actor, ownerID id.UserID) (*models.Portfolio, error)
}

// Handler serves the /shares routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the share routes. They all require an access token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/shares", h.HandleList)
	r.Post("/shares", h.HandleAssign)
	r.Get("/shares/portfolio/{ownerID}", h.HandlePortfolio)
	r.Get("/shares/{id}", h.HandleGet)
	r.Patch("/shares/{id}", h.HandleUpdate)
	r.Delete("/shares/{id}", h.HandleDelete)
	r.Put("/shares/{id}/value", h.HandleUpdateValue)
	r.Post("/shares/{id}/transfer", h.HandleTransfer)
}

// HandleAssign handles POST /shares.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.AssignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	share, err := h.service.Assign(ctx, policy.ActorFrom(ctx), req.Assignment())
	h.respond(w, ctx, "share assignment failed", http.StatusCreated, share, err)
}

// HandleGet handles GET /shares/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shareID, ok := shareParam(w, r)
	if !ok {
		return
	}
	share, err := h.service.Get(ctx, policy.ActorFrom(ctx), shareID)
	h.respond(w, ctx, "share lookup failed", http.StatusOK, share, err)
}

// HandleList handles GET /shares.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := httputil.QueryPage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := service.ListRequest{Page: page}
	if v := r.URL.Query().Get("owner"); v != "" {
		owner, err := id.ParseUserID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.OwnerID = &owner
	}
	inactive, err := httputil.QueryBool(r, "include_inactive")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.IncludeInactive = inactive != nil && *inactive

	shares, total, err := h.service.List(ctx, policy.ActorFrom(ctx), req)
	h.respond(w, ctx, "share listing failed", http.StatusOK, models.ListResponse{Shares: shares, Total: total}, err)
}

// HandleUpdate handles PATCH /shares/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shareID, ok := shareParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	share, err := h.service.Update(ctx, policy.ActorFrom(ctx), shareID, req.Count, req.Price)
	h.respond(w, ctx, "share update failed", http.StatusOK, share, err)
}

// HandleUpdateValue handles PUT /shares/{id}/value.
func (h *Handler) HandleUpdateValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shareID, ok := shareParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ValueRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	share, err := h.service.UpdateValue(ctx, policy.ActorFrom(ctx), shareID, req.Price, req.Note)
	h.respond(w, ctx, "share revaluation failed", http.StatusOK, share, err)
}

// HandleTransfer handles POST /shares/{id}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shareID, ok := shareParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	share, err := h.service.Transfer(ctx, policy.ActorFrom(ctx), shareID, req.ToOwnerID, req.Note)
	h.respond(w, ctx, "share transfer failed", http.StatusOK, share, err)
}

// HandleDelete handles DELETE /shares/{id}. The body is optional.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shareID, ok := shareParam(w, r)
	if !ok {
		return
	}
	var req models.DeleteRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	err := h.service.Delete(ctx, policy.ActorFrom(ctx), shareID, req.Reason)
	if err != nil {
		h.fail(ctx, "share deletion failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePortfolio handles GET /shares/portfolio/{ownerID}.
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, err := id.ParseUserID(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Portfolio(ctx, policy.ActorFrom(ctx), ownerID)
	h.respond(w, ctx, "portfolio lookup failed", http.StatusOK, p, err)
}

func shareParam(w http.ResponseWriter, r *http.Request) (id.ShareID, bool) {
	shareID, err := id.ParseShareID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ShareID{}, false
	}
	return shareID, true
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
