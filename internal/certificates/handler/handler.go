package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shareledger/internal/certificates/models"
	"shareledger/internal/certificates/service"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the certificate workflow consumed by the handler.
type Service interface {
	Upload(ctx context.Context, actor policy.Actor, up service.Upload) (*models.Certificate, error)
	Get(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, error)
	List(ctx context.Context, actor policy.Actor, req service.ListRequest) ([]*models.Certificate, int, error)
	Download(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, []byte, error)
	Approve(ctx context.Context, actor policy.Actor, certID id.CertificateID) (*models.Certificate, error)
	Reject(ctx context.Context, actor policy.Actor, certID id.CertificateID, reason string) (*models.Certificate, error)
	BulkApprove(ctx context.Context, actor policy.Actor, ids []id.CertificateID) (*models.BulkResult, error)
	BulkReject(ctx context.Context, actor policy.Actor, ids []id.CertificateID, reason string) (*models.BulkResult, error)
	Delete(ctx context.Context, actor policy.Actor, certID id.CertificateID) error
}

type Middleware = func(http.Handler) http.Handler

// Handler serves the /certificates routes.
type Handler struct {
	service     Service
	logger      *slog.Logger
	maxUpload   int64
	bulkApprove Middleware
	bulkReject  Middleware
}

type Option func(*Handler)

// WithMaxUpload bounds the file part of an upload. The service enforces its
// own limit on the decoded bytes.
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithBulkLimits wraps the bulk review routes, typically with the
// sensitive-operation rate limiter.
func WithBulkLimits(approve, reject Middleware) Option {
	return func(h *Handler) {
		h.bulkApprove = approve
		h.bulkReject = reject
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger, maxUpload: 10 << 20}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// multipartOverhead covers form boundaries and the share_id field.
const multipartOverhead = 64 << 10

// Register mounts the certificate routes. They all require an access token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates", h.HandleList)
	r.Post("/certificates", h.HandleUpload)
	r.With(orPass(h.bulkApprove)).Post("/certificates/bulk/approve", h.HandleBulkApprove)
	r.With(orPass(h.bulkReject)).Post("/certificates/bulk/reject", h.HandleBulkReject)
	r.Get("/certificates/{id}", h.HandleGet)
	r.Delete("/certificates/{id}", h.HandleDelete)
	r.Get("/certificates/{id}/download", h.HandleDownload)
	r.Post("/certificates/{id}/approve", h.HandleApprove)
	r.Post("/certificates/{id}/reject", h.HandleReject)
}

func orPass(mw Middleware) Middleware {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

var errFileTooLarge = dErrors.New(dErrors.CodeValidation, "file exceeds the maximum size")

// HandleUpload handles POST /certificates as multipart/form-data with a
// share_id field and a file part.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, errFileTooLarge)
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	shareID, err := id.ParseShareID(r.FormValue("share_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file"))
		return
	}
	if int64(len(data)) > h.maxUpload {
		httputil.WriteError(w, errFileTooLarge)
		return
	}
	declared := ""
	if ct := header.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
			declared = mt
		}
	}

	cert, err := h.service.Upload(ctx, policy.ActorFrom(ctx), service.Upload{
		ShareID:  shareID,
		Name:     header.Filename,
		MimeType: declared,
		Data:     data,
	})
	h.respond(w, ctx, "certificate upload failed", http.StatusCreated, cert, err)
}

// HandleList handles GET /certificates.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := httputil.QueryPage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	req := service.ListRequest{Page: page, Status: models.Status(q.Get("status"))}
	if v := q.Get("owner"); v != "" {
		owner, err := id.ParseUserID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.OwnerID = &owner
	}
	if v := q.Get("share"); v != "" {
		shareID, err := id.ParseShareID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.ShareID = &shareID
	}
	latest, err := httputil.QueryBool(r, "latest")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.LatestOnly = latest != nil && *latest

	certs, total, err := h.service.List(ctx, policy.ActorFrom(ctx), req)
	h.respond(w, ctx, "certificate listing failed", http.StatusOK, models.ListResponse{Certificates: certs, Total: total}, err)
}

// HandleGet handles GET /certificates/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := certParam(w, r)
	if !ok {
		return
	}
	cert, err := h.service.Get(ctx, policy.ActorFrom(ctx), certID)
	h.respond(w, ctx, "certificate lookup failed", http.StatusOK, cert, err)
}

// HandleDownload handles GET /certificates/{id}/download.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := certParam(w, r)
	if !ok {
		return
	}
	cert, data, err := h.service.Download(ctx, policy.ActorFrom(ctx), certID)
	if err != nil {
		h.fail(ctx, "certificate download failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", cert.File.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName(cert)}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func downloadName(c *models.Certificate) string {
	if c.File.Name != "" {
		return c.File.Name
	}
	return fmt.Sprintf("certificate-%s-v%d", c.ID, c.Version)
}

// HandleApprove handles POST /certificates/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := certParam(w, r)
	if !ok {
		return
	}
	cert, err := h.service.Approve(ctx, policy.ActorFrom(ctx), certID)
	h.respond(w, ctx, "certificate approval failed", http.StatusOK, cert, err)
}

// HandleReject handles POST /certificates/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := certParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cert, err := h.service.Reject(ctx, policy.ActorFrom(ctx), certID, req.Reason)
	h.respond(w, ctx, "certificate rejection failed", http.StatusOK, cert, err)
}

// HandleBulkApprove handles POST /certificates/bulk/approve.
func (h *Handler) HandleBulkApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.BulkRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.BulkApprove(ctx, policy.ActorFrom(ctx), req.IDs)
	h.respond(w, ctx, "bulk approval failed", http.StatusOK, result, err)
}

// HandleBulkReject handles POST /certificates/bulk/reject.
func (h *Handler) HandleBulkReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.BulkRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.BulkReject(ctx, policy.ActorFrom(ctx), req.IDs, req.Reason)
	h.respond(w, ctx, "bulk rejection failed", http.StatusOK, result, err)
}

// HandleDelete handles DELETE /certificates/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := certParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, policy.ActorFrom(ctx), certID); err != nil {
		h.fail(ctx, "certificate deletion failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func certParam(w http.ResponseWriter, r *http.Request) (id.CertificateID, bool) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CertificateID{}, false
	}
	return certID, true
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
