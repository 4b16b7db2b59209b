package refreshtoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "rt:jti:"
	userKeyPrefix  = "rt:user:"
)

// consumeScript flips the used flag only if the record is live. It returns
// the outcome so the check and the write are one atomic step.
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 'missing'
end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then
	return 'revoked'
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
	return 'used'
end
redis.call('HSET', KEYS[1], 'used', '1', 'used_at', ARGV[1])
return 'ok'
`)

// revokeScript sets the revoked flag on an existing record without
// resurrecting an expired one.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// RedisRefreshTokenStore keeps one hash per JTI plus a per-user set of JTIs
// for bulk revocation. Keys expire with the token.
type RedisRefreshTokenStore struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed refresh token store.
func NewRedis(client redis.UniversalClient) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client}
}

func (s *RedisRefreshTokenStore) Create(ctx context.Context, rec *models.RefreshTokenRecord) error {
	key := tokenKeyPrefix + rec.JTI
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired: %w", sentinel.ErrExpired)
	}
	ok, err := s.client.HSetNX(ctx, key, "user_id", rec.UserID.String()).Result()
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	if !ok {
		return fmt.Errorf("refresh token %s: %w", rec.JTI, sentinel.ErrConflict)
	}
	userKey := userKeyPrefix + rec.UserID.String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"session_id", rec.SessionID.String(),
		"created_at", rec.CreatedAt.UnixMilli(),
		"expires_at", rec.ExpiresAt.UnixMilli(),
		"used", "0",
		"revoked", "0",
	)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, rec.JTI)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefreshTokenStore) Consume(ctx context.Context, jti string, now time.Time) (*models.RefreshTokenRecord, error) {
	key := tokenKeyPrefix + jti
	outcome, err := consumeScript.Run(ctx, s.client, []string{key}, now.UnixMilli()).Text()
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if outcome == "missing" {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}

	rec, err := s.load(ctx, jti)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case "revoked":
		return rec, fmt.Errorf("refresh token revoked: %w", sentinel.ErrInvalidState)
	case "used":
		return rec, fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
	}
	if rec.Expired(now) {
		return rec, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	return rec, nil
}

func (s *RedisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	n, err := revokeScript.Run(ctx, s.client, []string{tokenKeyPrefix + jti}).Int()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *RedisRefreshTokenStore) RevokeByUser(ctx context.Context, userID id.UserID) (int, error) {
	jtis, err := s.client.SMembers(ctx, userKeyPrefix+userID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("list user refresh tokens: %w", err)
	}
	revoked := 0
	for _, jti := range jtis {
		n, err := revokeScript.Run(ctx, s.client, []string{tokenKeyPrefix + jti}).Int()
		if err != nil {
			return revoked, fmt.Errorf("revoke user refresh tokens: %w", err)
		}
		revoked += n
	}
	return revoked, nil
}

// Sweep is a no-op; Redis expires records with their TTL.
func (s *RedisRefreshTokenStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisRefreshTokenStore) load(ctx context.Context, jti string) (*models.RefreshTokenRecord, error) {
	fields, err := s.client.HGetAll(ctx, tokenKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token user: %w", err)
	}
	sessionID, _ := uuid.Parse(fields["session_id"])
	rec := &models.RefreshTokenRecord{
		JTI:       jti,
		UserID:    id.UserID(userID),
		SessionID: id.SessionID(sessionID),
		CreatedAt: millis(fields["created_at"]),
		ExpiresAt: millis(fields["expires_at"]),
		Used:      fields["used"] == "1",
		Revoked:   fields["revoked"] == "1",
	}
	if v, ok := fields["used_at"]; ok {
		t := millis(v)
		rec.UsedAt = &t
	}
	return rec, nil
}

func millis(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
