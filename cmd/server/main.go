package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	audithandler "shareledger/internal/audit/handler"
	auditservice "shareledger/internal/audit/service"
	"shareledger/internal/auth/adapters"
	authhandler "shareledger/internal/auth/handler"
	authmetrics "shareledger/internal/auth/metrics"
	"shareledger/internal/auth/secrets"
	authservice "shareledger/internal/auth/service"
	"shareledger/internal/auth/totp"
	certhandler "shareledger/internal/certificates/handler"
	certservice "shareledger/internal/certificates/service"
	jwttoken "shareledger/internal/jwt_token"
	"shareledger/internal/platform/config"
	"shareledger/internal/platform/httpserver"
	"shareledger/internal/platform/logger"
	"shareledger/internal/platform/metrics"
	redisclient "shareledger/internal/platform/redis"
	"shareledger/internal/policy"
	ratemetrics "shareledger/internal/ratelimit/metrics"
	ratemiddleware "shareledger/internal/ratelimit/middleware"
	ratemodels "shareledger/internal/ratelimit/models"
	rateservice "shareledger/internal/ratelimit/service"
	"shareledger/internal/ratelimit/store/window"
	sharehandler "shareledger/internal/shares/handler"
	shareservice "shareledger/internal/shares/service"
	httptransport "shareledger/internal/transport/http"
	usershandler "shareledger/internal/users/handler"
	usersservice "shareledger/internal/users/service"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/audit/forwarder"
	"shareledger/pkg/platform/audit/publisher"
	auditmemory "shareledger/pkg/platform/audit/store/memory"
	auditpostgres "shareledger/pkg/platform/audit/store/postgres"
	authmw "shareledger/pkg/platform/middleware/auth"
	"shareledger/pkg/platform/sweeper"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db    *sql.DB
	redis *redisclient.Client
	kafka *kgo.Client
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

func connect(ctx context.Context, cfg config.Config) (*infra, error) {
	i := &infra{}
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		i.db = db
	}
	rc, err := redisclient.New(cfg.Redis)
	if err != nil {
		i.close(slog.Default())
		return nil, err
	}
	i.redis = rc
	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := forwarder.NewClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			i.close(slog.Default())
			return nil, err
		}
		if err := forwarder.EnsureTopic(ctx, kc, cfg.Kafka.Topic, 3, 1); err != nil {
			slog.Warn("audit topic ensure failed", "topic", cfg.Kafka.Topic, "error", err)
		}
		i.kafka = kc
	}
	return i, nil
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	infra, err := connect(connectCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer infra.close(log)

	// Audit pipeline
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if infra.db != nil {
		auditStore = auditpostgres.New(infra.db)
	}
	auditMetrics := audit.NewMetrics()
	pubOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(auditMetrics),
		publisher.WithBuffer(cfg.Audit.Buffer),
		publisher.WithWorkers(cfg.Audit.Workers),
		publisher.WithWriteTimeout(cfg.Audit.WriteTimeout),
		publisher.WithBreaker(publisher.BreakerSettings("audit-store", cfg.Audit.BreakerFailures, cfg.Audit.BreakerTimeout)),
	}
	var fwd *forwarder.Forwarder
	if infra.kafka != nil {
		fwd = forwarder.New(infra.kafka, cfg.Kafka.Topic,
			forwarder.WithLogger(log),
			forwarder.WithMetrics(auditMetrics),
		)
		pubOpts = append(pubOpts, publisher.WithSink(fwd))
	}
	recorder := publisher.NewAsync(auditStore, pubOpts...)
	guard := policy.NewGuard(policy.MustCapabilities(), recorder)

	stores := buildStores(infra)

	jwtSvc, err := jwttoken.NewJWTService(jwttoken.Config{
		Issuer:        cfg.Auth.Issuer,
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		MFASecret:     cfg.Auth.MFASecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		MFATTL:        cfg.Auth.MFATTL,
	})
	if err != nil {
		return fmt.Errorf("jwt service: %w", err)
	}
	hasher := secrets.NewHasher(cfg.Auth.BcryptCost)

	// Rate limiter
	limiterOpts := []rateservice.Option{
		rateservice.WithLogger(log),
		rateservice.WithMetrics(ratemetrics.New()),
	}
	if infra.redis != nil {
		limiterOpts = append(limiterOpts, rateservice.WithFallback(window.NewInMemoryStore()))
	}
	limiter := rateservice.New(stores.windows, recorder, limiterOpts...)
	rateMW := ratemiddleware.New(limiter, log, ratemiddleware.WithDisabled(cfg.RateLimit.Disabled))

	// Services
	authSvc := authservice.New(stores.users, stores.refresh, stores.revocations, jwtSvc, hasher,
		totp.New(cfg.Auth.TOTPIssuer), recorder,
		authservice.WithLogger(log),
		authservice.WithMetrics(authmetrics.New()),
		authservice.WithGuard(guard),
		authservice.WithResetTTL(cfg.Auth.ResetTTL),
	)
	sharesSvc := shareservice.New(stores.shares, stores.users, guard, recorder,
		shareservice.WithLogger(log),
		shareservice.WithLimiter(limiter),
	)
	certsSvc := certservice.New(stores.certificates, stores.files, stores.shares, guard, recorder,
		certservice.WithLogger(log),
		certservice.WithMaxSize(cfg.Certificates.MaxSize),
	)
	usersSvc := usersservice.New(stores.users, stores.tombstones, sharesSvc, hasher, guard, recorder,
		usersservice.WithLogger(log),
		usersservice.WithLimiter(limiter),
		usersservice.WithRetention(cfg.Users.TombstoneRetention),
		usersservice.WithCertificates(certsSvc),
		usersservice.WithSessions(stores.refresh),
	)
	engine := auditservice.New(auditStore, recorder, guard,
		auditservice.WithLogger(log),
		auditservice.WithUserDirectory(adapters.NewUserDirectory(stores.users)),
		auditservice.WithRetention(auditservice.Retention{
			Horizon:         cfg.Audit.Retention,
			RetainedHorizon: cfg.Audit.RetainedHorizon,
		}),
		auditservice.WithTracer(otel.Tracer("shareledger/audit")),
	)

	// HTTP
	authenticator := authmw.New(jwttoken.NewJWTServiceAdapter(jwtSvc), stores.revocations, authSvc, log)
	router := httptransport.NewRouter(httptransport.Config{
		TrustProxy:     cfg.Server.TrustProxy,
		CORSOrigins:    cfg.Server.CORSOrigins,
		LoginPerMinute: cfg.Auth.LoginPerMinute,
		MetricsToken:   cfg.Security.MetricsToken,
	}, httptransport.Deps{
		Auth: authhandler.New(authSvc, log),
		Protected: []httptransport.Routes{
			usershandler.New(usersSvc, log),
			sharehandler.New(sharesSvc, log),
			certhandler.New(certsSvc, log,
				certhandler.WithMaxUpload(cfg.Certificates.MaxSize),
				certhandler.WithBulkLimits(
					rateMW.Sensitive(ratemodels.RuleBulkApprove),
					rateMW.Sensitive(ratemodels.RuleBulkReject),
				),
			),
			audithandler.New(engine, log),
		},
		RequireAuth: authenticator.RequireAuth,
		Recorder:    recorder,
		Metrics:     metrics.New(nil),
		Exporter:    promhttp.Handler(),
		Health:      infra.healthChecks(),
		Logger:      log,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting shareledger", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	runners := []*sweeper.Runner{
		sweeper.New("audit_retention", engine, cfg.Audit.SweepInterval, sweeper.WithLogger(log)),
		sweeper.New("tombstone_purge", sweeper.JobFunc(usersSvc.PurgeExpired), cfg.Users.PurgeInterval, sweeper.WithLogger(log)),
		sweeper.New("ratelimit_windows", sweeper.JobFunc(func(ctx context.Context, now time.Time) (int, error) {
			return stores.windows.Sweep(ctx, now, ratemodels.MaxWindow())
		}), cfg.RateLimit.SweepInterval, sweeper.WithLogger(log)),
		sweeper.New("refresh_tokens", stores.refresh, time.Hour, sweeper.WithLogger(log)),
		sweeper.New("token_revocations", stores.revocations, time.Hour, sweeper.WithLogger(log)),
	}
	for _, r := range runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	if fwd != nil {
		g.Go(func() error { return fwd.Run(gctx) })
	}

	err = g.Wait()

	// The server has stopped accepting requests; drain what it produced.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelDrain()
	if cerr := recorder.Close(drainCtx); cerr != nil {
		log.Warn("audit drain incomplete", "error", cerr)
	}
	if fwd != nil {
		if ferr := fwd.Flush(drainCtx); ferr != nil {
			log.Warn("audit forward flush failed", "error", ferr)
		}
	}
	return err
}
