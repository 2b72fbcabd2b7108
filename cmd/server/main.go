package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fortuna/internal/admin"
	adminmemory "fortuna/internal/admin/store/memory"
	adminpostgres "fortuna/internal/admin/store/postgres"
	adminredis "fortuna/internal/admin/store/redis"
	"fortuna/internal/audit"
	auditmemory "fortuna/internal/audit/store/memory"
	auditpostgres "fortuna/internal/audit/store/postgres"
	"fortuna/internal/coupon"
	couponservice "fortuna/internal/coupon/service"
	couponmemory "fortuna/internal/coupon/store/memory"
	couponpostgres "fortuna/internal/coupon/store/postgres"
	"fortuna/internal/identity"
	identitymemory "fortuna/internal/identity/store/memory"
	identitypostgres "fortuna/internal/identity/store/postgres"
	"fortuna/internal/platform/config"
	"fortuna/internal/platform/httpserver"
	"fortuna/internal/platform/logger"
	"fortuna/internal/platform/metrics"
	"fortuna/internal/platform/postgres"
	platformredis "fortuna/internal/platform/redis"
	"fortuna/internal/ratelimit"
	"fortuna/internal/token"
	transporthttp "fortuna/internal/transport/http"
	"fortuna/internal/wheel"
)

const auditBuffer = 1024

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	recorder := audit.NewRecorder(auditBuffer, log)

	var (
		identityStore identity.Store
		couponStore   coupon.Store
		adminStore    admin.Store
		auditStore    audit.Store
		health        transporthttp.HealthFunc
	)

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}

		ids := identitypostgres.New(db)
		auditStore = auditpostgres.New(db)
		identityStore = ids
		couponStore = couponpostgres.New(db, ids, auditStore)
		adminStore = adminpostgres.New(db)
		health = func(ctx context.Context) error { return db.PingContext(ctx) }
		log.Info("using postgres stores")
	} else {
		ids := identitymemory.New()
		auditStore = auditmemory.New()
		identityStore = ids
		couponStore = couponmemory.New(ids, auditStore)
		adminStore = adminmemory.New()
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		rdb, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		adminStore = adminredis.New(rdb)
		log.Info("admin sessions backed by redis")
	}

	var publisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
		log.Info("audit events mirrored to kafka", "topic", cfg.KafkaTopic)
	}

	passwordHash := cfg.AdminPasswordHash
	if passwordHash == "" {
		passwordHash, err = admin.HashPassword(cfg.AdminPassword)
		if err != nil {
			return err
		}
	}

	selector, err := wheel.NewSelector(wheel.DefaultDiscounts, rand.NewSource(time.Now().UnixNano()))
	if err != nil {
		return err
	}

	identities := identity.NewService(identityStore, recorder, m, log)
	tokens := token.NewCodec(cfg.SigningSecret)
	limiter := ratelimit.NewIntervalLimiter(cfg.SpinMinInterval)
	wheelSvc := wheel.NewService(couponStore, limiter, selector, wheel.NewCodeGenerator(),
		cfg.SpinCooldown, cfg.CouponLifetime, m, log)
	redemption := couponservice.NewRedemption(couponStore, recorder, m, log)
	admins := admin.NewService(adminStore, passwordHash, cfg.AdminSessionTTL, recorder, m, log)

	server := transporthttp.NewServer(identities, wheelSvc, redemption, admins, tokens, registry, health, log)
	srv := httpserver.New(cfg.Addr, server.Router())

	worker := audit.NewWorker(auditStore, publisher, recorder.Events(), log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
