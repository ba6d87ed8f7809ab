package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/pkg/logger"
)

// Handler 处理一条已解码的事件。失败时消息不被 ACK，
// 留在 pending 列表等待重投；处理必须按 eventId 幂等（至少一次投递）。
type Handler func(ctx context.Context, env event.Envelope) error

// Consumer 消费者组里的单个消费者。事件类型到 handler 是硬性 1:1 映射；
// 重投超过 maxAttempts 的消息转入 <topic>.dlt 流并 ACK 原消息，
// 保证 offset 前进、不会无限重放。
type Consumer struct {
	client      redis.UniversalClient
	topic       string
	group       string
	name        string
	handlers    map[event.Type]Handler
	maxAttempts int
	minIdle     time.Duration // 重投前的最小挂起时长
	block       time.Duration
	batch       int64
}

func NewConsumer(client redis.UniversalClient, topic, group string, maxAttempts int, minIdle time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		client:      client,
		topic:       topic,
		group:       group,
		name:        group + "-" + uuid.NewString(),
		handlers:    make(map[event.Type]Handler),
		maxAttempts: maxAttempts,
		minIdle:     minIdle,
		block:       time.Second,
		batch:       64,
	}
}

// Register 注册事件类型的 handler；重复注册是编程错误
func (c *Consumer) Register(t event.Type, h Handler) error {
	if !t.Valid() {
		return fmt.Errorf("broker: register unknown event type %q", t)
	}
	if _, dup := c.handlers[t]; dup {
		return fmt.Errorf("broker: handler for %s already registered", t)
	}
	c.handlers[t] = h
	return nil
}

// Start 建组并启动消费循环；返回停止函数
func (c *Consumer) Start() (func(context.Context) error, error) {
	if err := c.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	go c.loop(stop)
	return func(ctx context.Context) error { close(stop); return nil }, nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.topic, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("broker: create group %s on %s: %w", c.group, c.topic, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (c *Consumer) loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := c.consumeOnce(context.Background()); err != nil && !errors.Is(err, redis.Nil) {
			logger.Error("consumer read failed", zap.String("topic", c.topic), zap.Error(err))
			time.Sleep(c.block)
		}
		if err := c.reclaimOnce(context.Background()); err != nil {
			logger.Error("consumer reclaim failed", zap.String("topic", c.topic), zap.Error(err))
		}
	}
}

// consumeOnce 读一批新消息并处理
func (c *Consumer) consumeOnce(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.topic, ">"},
		Count:    c.batch,
		Block:    c.block,
	}).Result()
	if err != nil {
		return err
	}
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handleMessage(ctx, msg, 1)
		}
	}
	return nil
}

// reclaimOnce 扫描挂起超过 minIdle 的消息：未超限的认领重试，
// 超限的转死信流后 ACK（broker 层重试上限）
func (c *Consumer) reclaimOnce(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.topic,
		Group:  c.group,
		Idle:   c.minIdle,
		Start:  "-",
		End:    "+",
		Count:  c.batch,
	}).Result()
	if err != nil {
		return err
	}
	for _, p := range pending {
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.topic,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  c.minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("claim pending message failed", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		for _, msg := range claimed {
			// RetryCount 是历史投递次数；本次认领是下一次尝试
			c.handleMessage(ctx, msg, p.RetryCount+1)
		}
	}
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage, attempt int64) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		// 字段缺失：毒消息，直接死信
		c.deadLetter(ctx, msg, "missing payload field")
		return
	}

	env, err := event.Decode([]byte(raw))
	if err != nil {
		// 未知类型/坏负载永远解不出来，重试无意义
		c.deadLetter(ctx, msg, err.Error())
		return
	}

	h, ok := c.handlers[env.Type]
	if !ok {
		c.deadLetter(ctx, msg, "no handler registered for "+string(env.Type))
		return
	}

	if err := h(ctx, env); err != nil {
		if attempt >= int64(c.maxAttempts) {
			c.deadLetter(ctx, msg, err.Error())
			return
		}
		// 不 ACK：留在 pending，等 reclaim 重投
		logger.Warn("handler failed, message left pending",
			zap.String("topic", c.topic),
			zap.Int64("event_id", env.EventID),
			zap.Int64("attempt", attempt),
			zap.Error(err))
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.topic + event.DLTSuffix,
		Values: msg.Values,
	}).Err()
	if err != nil {
		// 死信写入失败则不 ACK，留待下次 reclaim 再试
		logger.Error("dead-letter publish failed",
			zap.String("topic", c.topic), zap.String("id", msg.ID), zap.Error(err))
		return
	}
	logger.Warn("message routed to dead-letter topic",
		zap.String("topic", c.topic),
		zap.String("id", msg.ID),
		zap.String("reason", reason))
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.topic, c.group, id).Err(); err != nil {
		logger.Warn("ack failed", zap.String("topic", c.topic), zap.String("id", id), zap.Error(err))
	}
}
