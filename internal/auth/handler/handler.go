package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shareledger/internal/auth/models"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	authmw "shareledger/pkg/platform/middleware/auth"
	"shareledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the credential lifecycle consumed by the handler.
type Service interface {
	Login(ctx context.Context, email, password, code string) (*models.LoginResult, error)
	CompleteTwoFactor(ctx context.Context, tempToken, code string) (*models.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.LoginResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string)
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Profile(ctx context.Context, userID id.UserID) (*models.User, error)
	ChangePassword(ctx context.Context, userID id.UserID, current, next string) error
	RequestPasswordReset(ctx context.Context, email string)
	ResetPassword(ctx context.Context, token, next string) error
	SetupTwoFactor(ctx context.Context, userID id.UserID) (*models.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, userID id.UserID, code string) error
	DisableTwoFactor(ctx context.Context, userID id.UserID, password, code string) error
	UnlockAccount(ctx context.Context, actor policy.Actor, userID id.UserID) (*models.User, error)
}

// Handler serves the /auth routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates an auth handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the routes that run before authentication.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/login/2fa", h.HandleLoginTwoFactor)
	r.Post("/auth/refresh", h.HandleRefresh)
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/password/forgot", h.HandleForgotPassword)
	r.Post("/auth/password/reset", h.HandleResetPassword)
}

// RegisterProtected mounts the routes that require an access token.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
	r.Post("/auth/password/change", h.HandleChangePassword)
	r.Post("/auth/2fa/setup", h.HandleSetupTwoFactor)
	r.Post("/auth/2fa/enable", h.HandleEnableTwoFactor)
	r.Post("/auth/2fa/disable", h.HandleDisableTwoFactor)
	r.Post("/users/{id}/unlock", h.HandleUnlock)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Login(ctx, req.Email, req.Password, req.TOTPCode)
	h.respond(w, ctx, "login failed", http.StatusOK, res, err)
}

// HandleLoginTwoFactor handles POST /auth/login/2fa.
func (h *Handler) HandleLoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.TwoFactorLoginRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.CompleteTwoFactor(ctx, req.TempToken, req.Code)
	h.respond(w, ctx, "two-factor login failed", http.StatusOK, res, err)
}

// HandleRefresh handles POST /auth/refresh.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RefreshRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Refresh(ctx, req.RefreshToken)
	h.respond(w, ctx, "token refresh failed", http.StatusOK, res, err)
}

// HandleLogout handles POST /auth/logout. The body is optional and the
// response is always 204.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LogoutRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	bearer, _ := authmw.BearerToken(r)
	h.service.Logout(ctx, bearer, req.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegister handles POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.Register(ctx, req.Email, req.Password, req.Name)
	h.respond(w, ctx, "registration failed", http.StatusCreated, u, err)
}

// HandleForgotPassword handles POST /auth/password/forgot. It answers 202
// for every address.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ForgotPasswordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.service.RequestPasswordReset(ctx, req.Email)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a reset link has been sent",
	})
}

// HandleResetPassword handles POST /auth/password/reset.
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ResetPasswordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.ResetPassword(ctx, req.Token, req.NewPassword)
	h.respondEmpty(w, ctx, "password reset failed", err)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.service.Profile(ctx, requestcontext.UserID(ctx))
	h.respond(w, ctx, "profile lookup failed", http.StatusOK, u, err)
}

// HandleChangePassword handles POST /auth/password/change.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ChangePasswordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.ChangePassword(ctx, requestcontext.UserID(ctx), req.CurrentPassword, req.NewPassword)
	h.respondEmpty(w, ctx, "password change failed", err)
}

// HandleSetupTwoFactor handles POST /auth/2fa/setup.
func (h *Handler) HandleSetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	setup, err := h.service.SetupTwoFactor(ctx, requestcontext.UserID(ctx))
	h.respond(w, ctx, "two-factor setup failed", http.StatusOK, setup, err)
}

// HandleEnableTwoFactor handles POST /auth/2fa/enable.
func (h *Handler) HandleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.TOTPCodeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.EnableTwoFactor(ctx, requestcontext.UserID(ctx), req.Code)
	h.respondEmpty(w, ctx, "two-factor enable failed", err)
}

// HandleDisableTwoFactor handles POST /auth/2fa/disable.
func (h *Handler) HandleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.DisableTwoFactorRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.DisableTwoFactor(ctx, requestcontext.UserID(ctx), req.Password, req.Code)
	h.respondEmpty(w, ctx, "two-factor disable failed", err)
}

// HandleUnlock handles POST /users/{id}/unlock.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.UnlockAccount(ctx, policy.ActorFrom(ctx), userID)
	h.respond(w, ctx, "account unlock failed", http.StatusOK, u, err)
}

func (h *Handler) respond(w http.ResponseWriter, ctx context.Context, msg string, status int, v any, err error) {
	if err != nil {
		h.fail(ctx, msg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, v)
}

func (h *Handler) respondEmpty(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	if err != nil {
		h.fail(ctx, msg, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
