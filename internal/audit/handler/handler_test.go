package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shareledger/internal/audit/handler/mocks"
	auditservice "shareledger/internal/audit/service"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	actor   policy.Actor
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.Default()).Register(s.router)
	s.actor = policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleDirector}
}

func (s *HandlerSuite) get(path string) *http.Request {
	return testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, path), s.actor.ID, s.actor.Role)
}

func (s *HandlerSuite) TestQuery_ParsesFilter() {
	target := id.UserID(uuid.New())
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.service.EXPECT().Query(gomock.Any(), s.actor, gomock.Any(), audit.Page{Limit: 10, Offset: 20}).
		DoAndReturn(func(_ any, _ policy.Actor, f audit.Filter, _ audit.Page) (*auditservice.Result, error) {
			s.Equal(from, f.From)
			s.Equal([]audit.Action{audit.ActionLoginFailed, audit.ActionLogin}, f.Actions)
			s.Require().NotNil(f.Success)
			s.False(*f.Success)
			s.Require().NotNil(f.TargetUserID)
			s.Equal(target, *f.TargetUserID)
			return &auditservice.Result{Entries: []audit.Entry{}, Total: 0, Limit: 10, Offset: 20}, nil
		})

	rr := testutil.DoRequest(s.router, s.get("/audit?from=2026-01-01T00:00:00Z&action=login_failed,login&success=false&target_user="+target.String()+"&limit=10&offset=20"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "limit", float64(10))
}

func (s *HandlerSuite) TestQuery_InvalidParams() {
	tests := []struct {
		name string
		path string
	}{
		{"bad from", "/audit?from=yesterday"},
		{"unknown action", "/audit?action=format_disk"},
		{"bad bool", "/audit?risky=maybe"},
		{"bad user", "/audit?actor=not-a-uuid"},
		{"negative limit", "/audit?limit=-1"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := testutil.DoRequest(s.router, s.get(tt.path))
			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		})
	}
}

func (s *HandlerSuite) TestForbiddenIsGeneric() {
	s.service.EXPECT().SecurityAlerts(gomock.Any(), s.actor, 12).Return(nil, dErrors.New(dErrors.CodeForbidden, "missing capability audit_log:analytics"))

	rr := testutil.DoRequest(s.router, s.get("/audit/alerts?hours=12"))
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	body := testutil.UnmarshalErrorResponse(s.T(), rr)
	assert.Equal(s.T(), "access denied", body["error_description"])
}

func (s *HandlerSuite) TestAnalyticsRoutes() {
	s.service.EXPECT().FailedLoginAttempts(gomock.Any(), s.actor, 0).Return([]auditservice.FailedLoginGroup{{IPAddress: "10.0.0.1", Attempts: 3}}, nil)
	s.service.EXPECT().SuspiciousActivity(gomock.Any(), s.actor, 48).Return(&auditservice.SuspiciousReport{}, nil)
	s.service.EXPECT().ActivitySummary(gomock.Any(), s.actor, 24).Return(&auditservice.Summary{Total: 7}, nil)

	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, s.get("/audit/failed-logins")), http.StatusOK)
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, s.get("/audit/suspicious?hours=48")), http.StatusOK)

	rr := testutil.DoRequest(s.router, s.get("/audit/summary?hours=24"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "total", float64(7))
}

func (s *HandlerSuite) TestInternalErrorHidesDetail() {
	s.service.EXPECT().ActivitySummary(gomock.Any(), s.actor, 0).Return(nil, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

	rr := testutil.DoRequest(s.router, s.get("/audit/summary"))
	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	body := testutil.UnmarshalErrorResponse(s.T(), rr)
	_, hasDescription := body["error_description"]
	s.False(hasDescription)
}
