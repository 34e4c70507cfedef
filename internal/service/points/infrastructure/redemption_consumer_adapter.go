// internal/service/points/infrastructure/redemption_consumer_adapter.go
package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/mq"
	"easypoints/internal/service/points/domain"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RedemptionHandler 处理一条兑换事件
type RedemptionHandler interface {
	HandleRedemption(ctx context.Context, event domain.RedemptionEvent) error
}

// MessageReader 是 kafka.Reader 中被消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RedemptionConsumerAdapter 是一个驱动适配器，它监听兑换事件并交给 handler 处理。
type RedemptionConsumerAdapter struct {
	reader  MessageReader
	handler RedemptionHandler
	topic   string
	tracer  trace.Tracer
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewRedemptionConsumerAdapter(reader MessageReader, topic string, handler RedemptionHandler) *RedemptionConsumerAdapter {
	return &RedemptionConsumerAdapter{
		reader:  reader,
		handler: handler,
		topic:   topic,
		tracer:  otel.Tracer("redemption-consumer"),
	}
}

// Start 开始监听 Kafka 主题，ctx 取消或调用 Stop 后退出。
func (a *RedemptionConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		zlog.Info().Str("topic", a.topic).Msg("✅ Redemption consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// 使用 FetchMessage 而不是 ReadMessage，处理成功后再提交 offset
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					zlog.Info().Msg("🛑 Redemption consumer shutting down.")
					return
				}
				zlog.Error().Err(err).Msg("could not fetch message, retrying...")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				zlog.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *RedemptionConsumerAdapter) Stop() error {
	a.stopped.Store(true)
	err := a.reader.Close()
	a.wg.Wait()
	zlog.Info().Msg("✅ Redemption consumer stopped.")
	return err
}

// processMessage 还原追踪上下文，解码失败的消息直接跳过。
func (a *RedemptionConsumerAdapter) processMessage(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := a.tracer.Start(ctx, "redemption-consumer.ProcessMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	event, err := DecodeRedemptionEvent(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode redemption event")
		logger.Ctx(ctx).Error().Err(err).Msg("🛑 Skipping undecodable redemption event")
		return
	}
	span.SetAttributes(attribute.String("redemption.kind", event.Kind), attribute.String("session.id", event.SessionID))

	if err := a.handler.HandleRedemption(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle redemption event")
		logger.Ctx(ctx).Error().Err(err).Str("event_id", event.ID).Msg("🛑 Failed to handle redemption event")
	}
}
