package main

import (
	"context"
	"time"

	authmodels "shareledger/internal/auth/models"
	authservice "shareledger/internal/auth/service"
	refreshtoken "shareledger/internal/auth/store/refresh-token"
	"shareledger/internal/auth/store/revocation"
	userstore "shareledger/internal/auth/store/user"
	certservice "shareledger/internal/certificates/service"
	certstore "shareledger/internal/certificates/store"
	rateservice "shareledger/internal/ratelimit/service"
	"shareledger/internal/ratelimit/store/window"
	shareservice "shareledger/internal/shares/service"
	sharestore "shareledger/internal/shares/store"
	httptransport "shareledger/internal/transport/http"
	usersservice "shareledger/internal/users/service"
	tombstonestore "shareledger/internal/users/store"
	id "shareledger/pkg/domain"
)

type accountStore interface {
	authservice.UserStore
	usersservice.UserStore
	Lookup(ctx context.Context, ids []id.UserID) (map[id.UserID]authmodels.User, error)
}

type refreshStore interface {
	authservice.RefreshTokenStore
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type revocationStore interface {
	authservice.RevocationList
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type windowStore interface {
	rateservice.Store
	Sweep(ctx context.Context, now time.Time, maxWindow time.Duration) (int, error)
}

// storeSet holds one implementation per port. Postgres backs the durable
// records when configured; redis backs the short-lived ones.
type storeSet struct {
	users        accountStore
	refresh      refreshStore
	revocations  revocationStore
	windows      windowStore
	shares       shareservice.Store
	certificates certservice.Store
	files        certservice.FileStore
	tombstones   usersservice.TombstoneStore
}

func buildStores(i *infra) storeSet {
	s := storeSet{
		users:        userstore.New(),
		refresh:      refreshtoken.New(),
		revocations:  revocation.NewInMemoryTRL(),
		windows:      window.NewInMemoryStore(),
		shares:       sharestore.NewInMemoryStore(),
		certificates: certstore.NewInMemoryStore(),
		files:        certstore.NewInMemoryFileStore(),
		tombstones:   tombstonestore.NewInMemoryStore(),
	}
	if i.db != nil {
		s.users = userstore.NewPostgres(i.db)
		s.revocations = revocation.NewPostgresTRL(i.db)
		s.shares = sharestore.NewPostgres(i.db)
		s.certificates = certstore.NewPostgres(i.db)
		s.files = certstore.NewPostgresFileStore(i.db)
		s.tombstones = tombstonestore.NewPostgres(i.db)
	}
	if i.redis != nil {
		s.refresh = refreshtoken.NewRedis(i.redis)
		s.revocations = revocation.NewRedisTRL(i.redis)
		s.windows = window.NewRedisStore(i.redis)
	}
	return s
}

func (i *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if i.db != nil {
		checks["postgres"] = i.db.PingContext
	}
	if i.redis != nil {
		checks["redis"] = i.redis.Health
	}
	if i.kafka != nil {
		checks["kafka"] = i.kafka.Ping
	}
	return checks
}
