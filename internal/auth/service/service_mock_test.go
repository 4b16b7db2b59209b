package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	"shareledger/internal/auth/service/mocks"
	"shareledger/internal/auth/totp"
	jwttoken "shareledger/internal/jwt_token"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/sentinel"
)

var errStoreDown = errors.New("store down")

type mockDeps struct {
	users   *mocks.MockUserStore
	refresh *mocks.MockRefreshTokenStore
	trl     *mocks.MockRevocationList
	tokens  *mocks.MockTokenService
	svc     *Service
}

func newMockService(t *testing.T) mockDeps {
	ctrl := gomock.NewController(t)
	d := mockDeps{
		users:   mocks.NewMockUserStore(ctrl),
		refresh: mocks.NewMockRefreshTokenStore(ctrl),
		trl:     mocks.NewMockRevocationList(ctrl),
		tokens:  mocks.NewMockTokenService(ctrl),
	}
	d.svc = New(d.users, d.refresh, d.trl, d.tokens,
		secrets.NewHasher(bcrypt.MinCost), totp.New("ShareLedger"), nil)
	return d
}

func TestLogin_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup failure is internal, not a credential error", func(t *testing.T) {
		d := newMockService(t)
		d.users.EXPECT().FindByEmail(ctx, "a@example.com").Return(nil, errStoreDown)

		_, err := d.svc.Login(ctx, "a@example.com", "pw", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("refresh record failure aborts the login", func(t *testing.T) {
		d := newMockService(t)
		hash, err := secrets.NewHasher(bcrypt.MinCost).Hash("pw-correct")
		require.NoError(t, err)
		u := &models.User{ID: id.UserID(uuid.New()), Email: "a@example.com", Role: id.RoleShareholder, Active: true, PasswordHash: hash}
		now := time.Now()

		d.users.EXPECT().FindByEmail(ctx, u.Email).Return(u, nil)
		d.users.EXPECT().Update(ctx, u.ID, gomock.Any()).Return(u, nil)
		d.tokens.EXPECT().Issue(jwttoken.TypeAccess, gomock.Any()).Return("access", &jwttoken.Claims{}, nil)
		d.tokens.EXPECT().Issue(jwttoken.TypeRefresh, gomock.Any()).Return("refresh", &jwttoken.Claims{
			RegisteredClaims: jwtClaims("jti-1", now),
		}, nil)
		d.refresh.EXPECT().Create(ctx, gomock.Any()).Return(errStoreDown)

		_, err = d.svc.Login(ctx, u.Email, "pw-correct", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestRefresh_ConsumeOutcomes(t *testing.T) {
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	claims := &jwttoken.Claims{Type: jwttoken.TypeRefresh, RegisteredClaims: jwtClaims("jti-1", time.Now())}
	claims.Subject = userID.String()

	tests := []struct {
		name     string
		err      error
		wantCode dErrors.Code
	}{
		{"expired", sentinel.ErrExpired, dErrors.CodeUnauthorized},
		{"revoked", sentinel.ErrInvalidState, dErrors.CodeUnauthorized},
		{"unknown", sentinel.ErrNotFound, dErrors.CodeUnauthorized},
		{"store down", errStoreDown, dErrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMockService(t)
			d.tokens.EXPECT().Parse(jwttoken.TypeRefresh, "token").Return(claims, nil)
			d.refresh.EXPECT().Consume(ctx, "jti-1", gomock.Any()).Return(nil, tt.err)

			_, err := d.svc.Refresh(ctx, "token")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.wantCode))
		})
	}

	t.Run("replay revokes the user's tokens", func(t *testing.T) {
		d := newMockService(t)
		rec := &models.RefreshTokenRecord{JTI: "jti-1", UserID: userID, Used: true}
		d.tokens.EXPECT().Parse(jwttoken.TypeRefresh, "token").Return(claims, nil)
		d.refresh.EXPECT().Consume(ctx, "jti-1", gomock.Any()).Return(rec, sentinel.ErrAlreadyUsed)
		d.refresh.EXPECT().RevokeByUser(ctx, userID).Return(3, nil)

		_, err := d.svc.Refresh(ctx, "token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestLogout_IgnoresRevocationFailures(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	claims := &jwttoken.Claims{Type: jwttoken.TypeAccess, RegisteredClaims: jwtClaims("jti-a", time.Now())}
	claims.Subject = uuid.NewString()

	d.tokens.EXPECT().Decode(jwttoken.TypeAccess, "access").Return(claims, nil)
	d.trl.EXPECT().RevokeToken(ctx, "jti-a", gomock.Any()).Return(errStoreDown)

	assert.NotPanics(t, func() { d.svc.Logout(ctx, "access", "") })
}

func jwtClaims(jti string, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}
