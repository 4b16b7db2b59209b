package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "shareledger/pkg/domain"
	"shareledger/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) { return v.claims, v.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsRevoked(context.Context, string) (bool, error) { return s.revoked, s.err }

type stubResolver struct {
	role   id.Role
	active bool
}

func (s stubResolver) ResolvePrincipal(context.Context, id.UserID) (id.Role, bool, error) {
	return s.role, s.active, nil
}

type AuthMiddlewareSuite struct {
	suite.Suite
	claims *JWTClaims
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.claims = &JWTClaims{
		UserID:    id.UserID(uuid.New()),
		Role:      id.RoleShareholder,
		SessionID: id.SessionID(uuid.New()),
		JTI:       "jti-1",
	}
}

func (s *AuthMiddlewareSuite) serve(a *Authenticator, header string) (*httptest.ResponseRecorder, context.Context) {
	var seen context.Context
	h := a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, seen
}

func (s *AuthMiddlewareSuite) TestValidToken() {
	a := New(stubValidator{claims: s.claims}, stubRevocation{}, nil, nil)
	w, ctx := s.serve(a, "Bearer token")
	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(ctx)
	s.Equal(s.claims.UserID, requestcontext.UserID(ctx))
	s.Equal(id.RoleShareholder, requestcontext.Role(ctx))
	s.Equal(s.claims.SessionID, requestcontext.SessionID(ctx))
}

func (s *AuthMiddlewareSuite) TestRejections() {
	s.Run("missing header", func() {
		w, _ := s.serve(New(stubValidator{claims: s.claims}, nil, nil, nil), "")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
	s.Run("invalid token", func() {
		w, _ := s.serve(New(stubValidator{err: errors.New("bad")}, nil, nil, nil), "Bearer x")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
	s.Run("revoked token", func() {
		w, _ := s.serve(New(stubValidator{claims: s.claims}, stubRevocation{revoked: true}, nil, nil), "Bearer x")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
	s.Run("revocation backend down", func() {
		w, _ := s.serve(New(stubValidator{claims: s.claims}, stubRevocation{err: errors.New("down")}, nil, nil), "Bearer x")
		s.Equal(http.StatusInternalServerError, w.Code)
	})
	s.Run("deactivated principal", func() {
		w, _ := s.serve(New(stubValidator{claims: s.claims}, nil, stubResolver{active: false}, nil), "Bearer x")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *AuthMiddlewareSuite) TestResolverRefreshesRole() {
	a := New(stubValidator{claims: s.claims}, nil, stubResolver{role: id.RoleVisitor, active: true}, nil)
	_, ctx := s.serve(a, "Bearer x")
	s.Require().NotNil(ctx)
	s.Equal(id.RoleVisitor, requestcontext.Role(ctx))
}

func (s *AuthMiddlewareSuite) TestOptionalAuth() {
	a := New(stubValidator{claims: s.claims}, nil, nil, nil)
	var role id.Role
	h := a.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = requestcontext.Role(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(id.RoleVisitor, role)
}
