// cmd/points-service/main.go
package main

import (
	"context"
	"time"

	"easypoints/internal/pkg/bootstrap"
	"easypoints/internal/pkg/config"
	"easypoints/internal/pkg/httpclient"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/pkg/mq"
	"easypoints/internal/pkg/redis"
	"easypoints/internal/pkg/session"
	"easypoints/internal/service/points/application"
	"easypoints/internal/service/points/domain"
	"easypoints/internal/service/points/infrastructure"
	"easypoints/internal/service/points/interfaces"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

const (
	serviceName   = "points-service"
	purgeInterval = 10 * time.Minute
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx bootstrap.AppCtx) {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)
	m := metrics.New()

	// 1. 会话存储
	store, err := newSessionStore(appCtx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Str("store", cfg.Session.Store).Msg("failed to initialize session store")
	}
	sessions := session.NewManager(store, cfg.Session.TTL, m)

	// 2. 兑换事件 (可选)
	var publisher domain.EventPublisher
	if len(cfg.Infra.Kafka.Brokers) > 0 && cfg.Infra.Kafka.RedemptionTopic != "" {
		adapter := infrastructure.NewRedemptionKafkaAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RedemptionTopic))
		appCtx.OnShutdown(func(context.Context) error { return adapter.Close() })
		publisher = adapter
	}

	// 3. 行项目排除规则 (可选)
	var exclusion domain.ExclusionRule
	if cfg.Points.ExclusionRule != "" {
		rule, err := infrastructure.NewCELExclusionRule(cfg.Points.ExclusionRule)
		if err != nil {
			zlog.Fatal().Err(err).Msg("invalid points.exclusion_rule")
		}
		exclusion = rule
	}

	// 4. 上游积分应用
	loyalty := infrastructure.NewLoyaltyHTTPAdapter(
		httpclient.NewClient(tracer, cfg.Loyalty.Timeout),
		cfg.Loyalty.BaseURL,
		cfg.Loyalty.StorefrontURL,
	)

	// 5. 应用服务与接口层
	hub := interfaces.NewHub(m)
	appCtx.OnShutdown(hub.Close)

	svc := application.NewPointsService(loyalty, sessions, publisher, hub, exclusion, application.Options{
		StaleAfter: cfg.Session.StaleAfter,
		Policy:     domain.ExclusionPolicy(cfg.Points.ExclusionPolicy),
		Locale:     cfg.Points.Locale,
	}, tracer, m)

	interfaces.NewPointsHandler(svc, hub, m).RegisterRoutes(appCtx.Mux)
	zlog.Info().
		Str("store", store.Name()).
		Bool("events", publisher != nil).
		Bool("exclusion_rule", exclusion != nil).
		Msg("✅ Points service wired")
}

// newSessionStore 按 session.store 选择存储，mysql 存储会启动过期会话清理。
func newSessionStore(appCtx bootstrap.AppCtx, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Store {
	case "", "memory":
		return session.NewMemoryStore(), nil

	case "redis":
		client, err := redis.NewClient(context.Background(), redis.Options{
			Addrs:    cfg.Infra.Redis.Addrs,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error { return client.Close() })
		return session.NewRedisStore(client), nil

	case "mysql":
		db, err := session.OpenMySQL(cfg.Infra.MySQL.DSN())
		if err != nil {
			return nil, err
		}
		store, err := session.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		go purgeExpired(ctx, store)
		appCtx.OnShutdown(func(context.Context) error {
			cancel()
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		return store, nil

	default:
		return nil, errors.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func purgeExpired(ctx context.Context, store *session.GormStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				zlog.Warn().Err(err).Msg("⚠️ Failed to purge expired sessions")
				continue
			}
			if n > 0 {
				zlog.Info().Int64("purged", n).Msg("ℹ️ Purged expired sessions")
			}
		}
	}
}
