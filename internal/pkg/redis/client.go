// internal/pkg/redis/client.go
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// Options 连接参数，Addrs 多于一个时按集群模式连接。
type Options struct {
	Addrs    []string
	Password string
	DB       int
}

// NewClient 创建 UniversalClient 并做一次连通性检查。
func NewClient(ctx context.Context, opts Options) (goredis.UniversalClient, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        opts.Addrs,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %v", opts.Addrs)
	}

	zlog.Info().Strs("addrs", opts.Addrs).Msg("✅ Successfully connected to Redis.")
	return client, nil
}
