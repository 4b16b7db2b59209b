package handler

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shareledger/internal/certificates/handler/mocks"
	"shareledger/internal/certificates/models"
	"shareledger/internal/certificates/service"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/testutil"
)

var pdf = []byte("%PDF-1.7\n%%EOF\n")

type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	service     *mocks.MockService
	router      chi.Router
	actor       policy.Actor
	bulkBlocked bool
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	s.bulkBlocked = false
	block := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.bulkBlocked {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	New(s.service, slog.Default(), WithMaxUpload(1024), WithBulkLimits(block, block)).Register(s.router)
	s.actor = policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleShareholder}
}

func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithActor(req, s.actor.ID, s.actor.Role)
}

func multipartUpload(t *testing.T, shareID string, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if shareID != "" {
		if err := mw.WriteField("share_id", shareID); err != nil {
			t.Fatal(err)
		}
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="deed.pdf"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/certificates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *HandlerSuite) TestUpload() {
	shareID := id.ShareID(uuid.New())

	s.Run("passes the file through", func() {
		s.service.EXPECT().Upload(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ any, _ policy.Actor, up service.Upload) (*models.Certificate, error) {
				s.Equal(shareID, up.ShareID)
				s.Equal("deed.pdf", up.Name)
				s.Equal("application/pdf", up.MimeType)
				s.Equal(pdf, up.Data)
				return &models.Certificate{ID: id.CertificateID(uuid.New()), ShareID: shareID, Version: 1}, nil
			})
		rr := testutil.DoRequest(s.router, s.authed(multipartUpload(s.T(), shareID.String(), "application/pdf", pdf)))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("octet-stream leaves the type to sniffing", func() {
		s.service.EXPECT().Upload(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ any, _ policy.Actor, up service.Upload) (*models.Certificate, error) {
				s.Empty(up.MimeType)
				return &models.Certificate{}, nil
			})
		rr := testutil.DoRequest(s.router, s.authed(multipartUpload(s.T(), shareID.String(), "application/octet-stream", pdf)))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("missing file", func() {
		rr := testutil.DoRequest(s.router, s.authed(multipartUpload(s.T(), shareID.String(), "", nil)))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("bad share id", func() {
		rr := testutil.DoRequest(s.router, s.authed(multipartUpload(s.T(), "nope", "application/pdf", pdf)))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("oversized file", func() {
		big := append(append([]byte(nil), pdf...), make([]byte, 4096)...)
		rr := testutil.DoRequest(s.router, s.authed(multipartUpload(s.T(), shareID.String(), "application/pdf", big)))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestList() {
	shareID := id.ShareID(uuid.New())
	s.service.EXPECT().List(gomock.Any(), s.actor, service.ListRequest{
		ShareID:    &shareID,
		Status:     models.StatusPending,
		LatestOnly: true,
		Page:       id.Page{Limit: id.DefaultPageLimit},
	}).Return([]*models.Certificate{}, 0, nil)

	path := "/certificates?share=" + shareID.String() + "&status=pending&latest=true"
	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, path)))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestDownloadSetsHeaders() {
	cert := &models.Certificate{
		ID:      id.CertificateID(uuid.New()),
		Version: 2,
		File:    models.File{Name: "deed.pdf", MimeType: "application/pdf"},
	}
	s.service.EXPECT().Download(gomock.Any(), s.actor, cert.ID).Return(cert, pdf, nil)

	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/certificates/"+cert.ID.String()+"/download")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("application/pdf", rr.Header().Get("Content-Type"))
	s.Equal(`attachment; filename=deed.pdf`, rr.Header().Get("Content-Disposition"))
	s.Equal("nosniff", rr.Header().Get("X-Content-Type-Options"))
	s.Equal(pdf, rr.Body.Bytes())
}

func (s *HandlerSuite) TestRejectWithoutReasonReachesService() {
	certID := id.CertificateID(uuid.New())
	s.service.EXPECT().Reject(gomock.Any(), s.actor, certID, "").Return(nil, models.ErrReasonRequired)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/certificates/"+certID.String()+"/reject", map[string]any{"reason": "  "})
	rr := testutil.DoRequest(s.router, s.authed(req))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestBulk() {
	ids := []id.CertificateID{id.CertificateID(uuid.New()), id.CertificateID(uuid.New())}
	body := map[string]any{"ids": []string{ids[0].String(), ids[1].String()}, "reason": "blurred"}

	s.Run("reject decodes the batch", func() {
		s.service.EXPECT().BulkReject(gomock.Any(), s.actor, ids, "blurred").
			Return(&models.BulkResult{Succeeded: 2}, nil)
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/certificates/bulk/reject", body)))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		result := testutil.UnmarshalResponse[models.BulkResult](s.T(), rr)
		s.Equal(2, result.Succeeded)
	})

	s.Run("empty batch is rejected before the service", func() {
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/certificates/bulk/approve", map[string]any{"ids": []string{}})))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("the limiter runs before the handler", func() {
		s.bulkBlocked = true
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/certificates/bulk/approve", body)))
		testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)
	})
}

func (s *HandlerSuite) TestDelete() {
	certID := id.CertificateID(uuid.New())

	s.Run("no content", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.actor, certID).Return(nil)
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodDelete, "/certificates/"+certID.String())))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("reviewed certificate", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.actor, certID).
			Return(dErrors.New(dErrors.CodeInvariantViolation, "reviewed certificates can only be deleted by a director"))
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodDelete, "/certificates/"+certID.String())))
		testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	})
}
