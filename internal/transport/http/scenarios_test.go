package httptransport_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authhandler "shareledger/internal/auth/handler"
	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	authservice "shareledger/internal/auth/service"
	refreshtoken "shareledger/internal/auth/store/refresh-token"
	"shareledger/internal/auth/store/revocation"
	userstore "shareledger/internal/auth/store/user"
	"shareledger/internal/auth/totp"
	certhandler "shareledger/internal/certificates/handler"
	certmodels "shareledger/internal/certificates/models"
	certservice "shareledger/internal/certificates/service"
	certstore "shareledger/internal/certificates/store"
	jwttoken "shareledger/internal/jwt_token"
	"shareledger/internal/policy"
	ratemiddleware "shareledger/internal/ratelimit/middleware"
	ratemodels "shareledger/internal/ratelimit/models"
	rateservice "shareledger/internal/ratelimit/service"
	"shareledger/internal/ratelimit/store/window"
	sharehandler "shareledger/internal/shares/handler"
	sharemodels "shareledger/internal/shares/models"
	shareservice "shareledger/internal/shares/service"
	sharestore "shareledger/internal/shares/store"
	httptransport "shareledger/internal/transport/http"
	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/audit/publisher"
	auditmemory "shareledger/pkg/platform/audit/store/memory"
	authmw "shareledger/pkg/platform/middleware/auth"
	"shareledger/pkg/testutil"
)

const password = "Correct-Horse-9"

// stack is the whole server on in-memory stores.
type stack struct {
	router http.Handler
	users  *userstore.InMemoryUserStore
	shares *sharestore.InMemoryStore
	certs  *certstore.InMemoryStore
	audit  *auditmemory.InMemoryStore
	hasher *secrets.Hasher

	mu  sync.Mutex
	now time.Time
}

func (st *stack) clock() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.now
}

func (st *stack) advance(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.now = st.now.Add(d)
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := &stack{
		users:  userstore.New(),
		shares: sharestore.NewInMemoryStore(),
		certs:  certstore.NewInMemoryStore(),
		audit:  auditmemory.NewInMemoryStore(),
		hasher: secrets.NewHasher(bcrypt.MinCost),
		now:    time.Now().UTC(),
	}
	quiet := slog.New(slog.DiscardHandler)
	recorder := publisher.NewSync(st.audit)
	guard := policy.NewGuard(policy.MustCapabilities(), recorder)

	tokens, err := jwttoken.NewJWTService(jwttoken.Config{
		Issuer:        "shareledger-test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		MFASecret:     "mfa-secret",
	})
	require.NoError(t, err)
	trl := revocation.NewInMemoryTRL()

	authSvc := authservice.New(st.users, refreshtoken.New(), trl, tokens, st.hasher,
		totp.New("ShareLedger"), recorder,
		authservice.WithClock(st.clock),
		authservice.WithGuard(guard),
	)
	limiter := rateservice.New(window.NewInMemoryStore(), recorder)
	rateMW := ratemiddleware.New(limiter, quiet)
	sharesSvc := shareservice.New(st.shares, st.users, guard, recorder, shareservice.WithLimiter(limiter))
	certsSvc := certservice.New(st.certs, certstore.NewInMemoryFileStore(), st.shares, guard, recorder)

	st.router = httptransport.NewRouter(httptransport.Config{}, httptransport.Deps{
		Auth: authhandler.New(authSvc, quiet),
		Protected: []httptransport.Routes{
			sharehandler.New(sharesSvc, quiet),
			certhandler.New(certsSvc, quiet, certhandler.WithBulkLimits(
				rateMW.Sensitive(ratemodels.RuleBulkApprove),
				rateMW.Sensitive(ratemodels.RuleBulkReject),
			)),
		},
		RequireAuth: authmw.New(jwttoken.NewJWTServiceAdapter(tokens), trl, authSvc, quiet).RequireAuth,
		Recorder:    recorder,
		Logger:      quiet,
	})
	return st
}

func (st *stack) seedUser(t *testing.T, email string, role id.Role) *authmodels.User {
	t.Helper()
	hash, err := st.hasher.Hash(password)
	require.NoError(t, err)
	now := st.clock()
	u := &authmodels.User{
		ID:           id.UserID(uuid.New()),
		Email:        email,
		Name:         email,
		Role:         role,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.users.Create(context.Background(), u))
	return u
}

func (st *stack) seedShare(t *testing.T, owner id.UserID) *sharemodels.Share {
	t.Helper()
	share, err := sharemodels.NewShare(id.ShareID(uuid.New()), sharemodels.Assignment{
		OwnerID: owner,
		Count:   100,
		Price:   decimal.RequireFromString("12.50"),
	}, owner, st.clock())
	require.NoError(t, err)
	require.NoError(t, st.shares.Create(context.Background(), share))
	return share
}

func (st *stack) seedCertificate(t *testing.T, share *sharemodels.Share) *certmodels.Certificate {
	t.Helper()
	c, err := st.certs.AddVersion(context.Background(), share.OwnerID, share.ID,
		func(_ []*certmodels.Certificate, latest *certmodels.Certificate) (*certmodels.Certificate, error) {
			f := certmodels.File{Name: "deed.pdf", Size: 4, MimeType: "application/pdf", Checksum: uuid.NewString()}
			return certmodels.NewVersion(id.CertificateID(uuid.New()), share.OwnerID, share.ID, f, latest, st.clock()), nil
		})
	require.NoError(t, err)
	return c
}

func (st *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(st.router, req)
}

func (st *stack) login(t *testing.T, email, pw string) *httptest.ResponseRecorder {
	t.Helper()
	return st.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": pw})
}

func (st *stack) token(t *testing.T, email string) string {
	t.Helper()
	rr := st.login(t, email, password)
	require.Equal(t, http.StatusOK, rr.Code)
	return testutil.UnmarshalResponse[authmodels.LoginResult](t, rr).AccessToken
}

func (st *stack) entries(t *testing.T, keep func(audit.Entry) bool) []audit.Entry {
	t.Helper()
	all, err := st.audit.ListAll(context.Background())
	require.NoError(t, err)
	var out []audit.Entry
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func TestLoginIsAudited(t *testing.T) {
	testutil.Given(t, "a shareholder without two-factor", func(t *testing.T) {
		st := newStack(t)
		u1 := st.seedUser(t, "u1@example.com", id.RoleShareholder)

		testutil.When(t, "they log in with the right password", func(t *testing.T) {
			rr := st.login(t, u1.Email, password)

			testutil.Then(t, "they receive both tokens and a low-severity login entry", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code)
				res := testutil.UnmarshalResponse[authmodels.LoginResult](t, rr)
				assert.NotEmpty(t, res.AccessToken)
				assert.NotEmpty(t, res.RefreshToken)

				logins := st.entries(t, func(e audit.Entry) bool {
					return e.Action == audit.ActionLogin && e.ActorID != nil && *e.ActorID == u1.ID
				})
				require.Len(t, logins, 1)
				assert.True(t, logins[0].Success)
				assert.Equal(t, audit.SeverityLow, logins[0].Severity)
			})
		})
	})
}

func TestLockoutAndRecovery(t *testing.T) {
	testutil.Given(t, "a shareholder", func(t *testing.T) {
		st := newStack(t)
		u2 := st.seedUser(t, "u2@example.com", id.RoleShareholder)

		testutil.When(t, "five wrong passwords are tried", func(t *testing.T) {
			for range 5 {
				assert.Equal(t, http.StatusUnauthorized, st.login(t, u2.Email, "wrong-password").Code)
			}

			testutil.Then(t, "the account is locked even for the right password", func(t *testing.T) {
				locked, err := st.users.FindByID(context.Background(), u2.ID)
				require.NoError(t, err)
				assert.True(t, locked.IsLocked(st.clock()))
				assert.Equal(t, http.StatusUnauthorized, st.login(t, u2.Email, password).Code)
			})

			testutil.Then(t, "the right password works once the lockout expires", func(t *testing.T) {
				st.advance(authmodels.DefaultLockoutPolicy().Duration + time.Minute)
				assert.Equal(t, http.StatusOK, st.login(t, u2.Email, password).Code)

				recovered, err := st.users.FindByID(context.Background(), u2.ID)
				require.NoError(t, err)
				assert.Zero(t, recovered.Security.LoginAttempts)
			})
		})
	})
}

func TestCrossOwnerReadIsDeniedAndAudited(t *testing.T) {
	testutil.Given(t, "two shareholders and a share owned by the second", func(t *testing.T) {
		st := newStack(t)
		u3 := st.seedUser(t, "u3@example.com", id.RoleShareholder)
		u4 := st.seedUser(t, "u4@example.com", id.RoleShareholder)
		share := st.seedShare(t, u4.ID)
		token := st.token(t, u3.Email)

		testutil.When(t, "the first reads the second's share", func(t *testing.T) {
			rr := st.do(t, http.MethodGet, "/api/shares/"+share.ID.String(), token, nil)

			testutil.Then(t, "access is denied and one risky security entry is recorded", func(t *testing.T) {
				assert.Equal(t, http.StatusForbidden, rr.Code)
				risky := st.entries(t, func(e audit.Entry) bool { return e.IsRisky() })
				require.Len(t, risky, 1)
				assert.Equal(t, audit.SeverityHigh, risky[0].Severity)
				assert.Equal(t, audit.CategorySecurity, risky[0].Category)
				assert.Equal(t, u3.ID, *risky[0].ActorID)
			})
		})
	})
}

func TestBulkRejectIsRateLimited(t *testing.T) {
	testutil.Given(t, "a director and a pending certificate", func(t *testing.T) {
		st := newStack(t)
		d1 := st.seedUser(t, "d1@example.com", id.RoleDirector)
		u5 := st.seedUser(t, "u5@example.com", id.RoleShareholder)
		cert := st.seedCertificate(t, st.seedShare(t, u5.ID))
		token := st.token(t, d1.Email)
		body := map[string]any{"ids": []string{cert.ID.String()}, "reason": "illegible scan"}

		testutil.When(t, "bulk reject is called four times in a row", func(t *testing.T) {
			var codes []int
			var last *httptest.ResponseRecorder
			for range 4 {
				last = st.do(t, http.MethodPost, "/api/certificates/bulk/reject", token, body)
				codes = append(codes, last.Code)
			}

			testutil.Then(t, "the fourth is refused with the remaining window", func(t *testing.T) {
				assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
				retry, err := strconv.Atoi(last.Header().Get("Retry-After"))
				require.NoError(t, err)
				window := int(ratemodels.RuleBulkReject.Window.Seconds())
				assert.InDelta(t, window, retry, 5)
			})
		})
	})
}

func TestRejectWithoutReason(t *testing.T) {
	testutil.Given(t, "a director and a pending certificate", func(t *testing.T) {
		st := newStack(t)
		d2 := st.seedUser(t, "d2@example.com", id.RoleDirector)
		owner := st.seedUser(t, "owner@example.com", id.RoleShareholder)
		cert := st.seedCertificate(t, st.seedShare(t, owner.ID))
		token := st.token(t, d2.Email)

		testutil.When(t, "they reject it with an empty reason", func(t *testing.T) {
			rr := st.do(t, http.MethodPost, "/api/certificates/"+cert.ID.String()+"/reject", token, map[string]string{"reason": ""})

			testutil.Then(t, "the request fails validation and nothing changes", func(t *testing.T) {
				assert.Equal(t, http.StatusBadRequest, rr.Code)

				stored, err := st.certs.FindByID(context.Background(), cert.ID)
				require.NoError(t, err)
				assert.Equal(t, certmodels.StatusPending, stored.Status)
				assert.Empty(t, st.entries(t, func(e audit.Entry) bool {
					return e.Action == audit.ActionCertificateRejected
				}))
				assert.Empty(t, st.entries(t, func(e audit.Entry) bool {
					return audit.IsSecurityAlert(&e)
				}), "a validation failure is not a security event")
				assert.Empty(t, st.entries(t, func(e audit.Entry) bool {
					return e.TargetType == audit.TargetSystem
				}))
			})
		})
	})
}
