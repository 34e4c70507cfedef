// cmd/redemption-auditor/main.go
package main

import (
	"context"
	"net/http"

	"easypoints/internal/pkg/bootstrap"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/pkg/mq"
	"easypoints/internal/service/points/application"
	"easypoints/internal/service/points/infrastructure"
)

const (
	serviceName = "redemption-auditor"
	port        = 8091
)

func main() {
	cfg := bootstrap.Init()
	kafkaCfg := cfg.Infra.Kafka

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			m := metrics.New()
			appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("GET /metrics", m.Handler())

			reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.RedemptionTopic, kafkaCfg.AuditorGroup)
			consumer := infrastructure.NewRedemptionConsumerAdapter(reader, kafkaCfg.RedemptionTopic, application.NewRedemptionAuditor(m))

			ctx, cancel := context.WithCancel(context.Background())
			consumer.Start(ctx)
			appCtx.OnShutdown(func(context.Context) error {
				cancel()
				return consumer.Stop()
			})
		},
	})
}
