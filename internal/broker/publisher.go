package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 信封字节在流消息里的字段名
const payloadField = "payload"

// StreamPublisher 把事件信封追加到 Redis Stream
type StreamPublisher struct {
	client redis.UniversalClient
}

func NewStreamPublisher(client redis.UniversalClient) *StreamPublisher {
	return &StreamPublisher{client: client}
}

func (p *StreamPublisher) Publish(ctx context.Context, topic string, message []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{payloadField: message},
	}).Err()
	if err != nil {
		return fmt.Errorf("broker: publish to %s: %w", topic, err)
	}
	return nil
}
