package infrastructure

import (
	"context"
	"encoding/json"

	"easypoints/internal/pkg/mq"
	"easypoints/internal/service/points/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// RedemptionKafkaAdapter 实现了 domain.EventPublisher，把兑换事件写入 kafka。
type RedemptionKafkaAdapter struct {
	writer *kafka.Writer
}

func NewRedemptionKafkaAdapter(writer *kafka.Writer) *RedemptionKafkaAdapter {
	return &RedemptionKafkaAdapter{writer: writer}
}

// PublishRedemption 以会话 ID 作为消息 key，同一会话的事件落在同一分区。
func (a *RedemptionKafkaAdapter) PublishRedemption(ctx context.Context, event domain.RedemptionEvent) error {
	key, value, err := EncodeRedemptionEvent(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, key, value)
}

// Close 关闭底层的Kafka writer。
func (a *RedemptionKafkaAdapter) Close() error {
	return a.writer.Close()
}

func EncodeRedemptionEvent(event domain.RedemptionEvent) (key, value []byte, err error) {
	value, err = json.Marshal(event)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal redemption event")
	}
	return []byte(event.SessionID), value, nil
}

func DecodeRedemptionEvent(msg kafka.Message) (domain.RedemptionEvent, error) {
	var event domain.RedemptionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, errors.Wrap(err, "failed to unmarshal redemption event")
	}
	return event, nil
}
