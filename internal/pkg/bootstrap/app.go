// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"easypoints/internal/pkg/config"
	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/nacos"
	"easypoints/internal/pkg/tracing"

	zlog "github.com/rs/zerolog/log"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未开启注册时为 nil
	Config *config.Config

	cleanups *[]func(ctx context.Context) error
}

// OnShutdown 注册关停时执行的清理函数，按注册的逆序执行。
func (a AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	*a.cleanups = append(*a.cleanups, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int                 // 为 0 时使用配置中的 app.port
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
}

// Init 加载配置并初始化全局 logger，配置错误时直接退出。
func Init() *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("🛑 failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.Log.Level, cfg.Log.Pretty)
	return cfg
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	port := info.Port
	if port == 0 {
		port = cfg.App.Port
	}

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 可选的 Nacos 服务注册
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.Register && cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = GetOutboundIP()
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			zlog.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 创建并启动 HTTP Server
	var cleanups []func(ctx context.Context) error
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg, cleanups: &cleanups})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info().Msgf("✅ %s listening on :%d", info.ServiceName, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a. 从 Nacos 注销服务
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, port); err != nil {
			zlog.Error().Err(err).Msg("Error deregistering from Nacos")
		}
		namingClient.Close()
	}
	if nacosConfigClient != nil {
		nacosConfigClient.Close()
	}

	// b. 先停 HTTP，再执行服务自己的清理 (后进先出)
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Error shutting down http server")
	} else {
		zlog.Info().Msg("HTTP server shut down.")
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			zlog.Error().Err(err).Msg("Error during cleanup")
		}
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Error shutting down tracer provider")
	} else {
		zlog.Info().Msg("Tracer provider shut down.")
	}

	zlog.Info().Msgf("🛑 Service %s gracefully shut down.", info.ServiceName)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
