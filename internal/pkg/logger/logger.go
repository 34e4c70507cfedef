// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog logger。pretty 为 true 时输出到控制台格式，便于本地调试。
func Init(serviceName, level string, pretty bool) {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回带有 trace_id / span_id 的 logger。
// context 中已经通过 WithContext 注入过 logger 时优先使用它。
func Ctx(ctx context.Context) *zerolog.Logger {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &zlog.Logger
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return base
	}
	l := base.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}

// WithContext 把 logger 存入 context，供后续 Ctx 使用。
func WithContext(ctx context.Context, fields map[string]string) context.Context {
	c := zlog.Logger.With()
	for k, v := range fields {
		c = c.Str(k, v)
	}
	l := c.Logger()
	return l.WithContext(ctx)
}
