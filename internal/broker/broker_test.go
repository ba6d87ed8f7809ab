package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/community-core/internal/event"
)

func setupBroker(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newTestConsumer(t *testing.T, client redis.UniversalClient, topic string, maxAttempts int) *Consumer {
	t.Helper()
	c := NewConsumer(client, topic, "test-group", maxAttempts, 0)
	c.block = -1 // 测试里不阻塞等新消息
	require.NoError(t, c.ensureGroup(context.Background()))
	return c
}

func mustEnvelope(t *testing.T, env event.Envelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestConsumerDispatchesByType(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	pub := NewStreamPublisher(client)
	cons := newTestConsumer(t, client, event.TopicRead, 3)

	var got []event.Envelope
	require.NoError(t, cons.Register(event.TypeBoardViewed, func(_ context.Context, env event.Envelope) error {
		got = append(got, env)
		return nil
	}))

	msg := mustEnvelope(t, event.Envelope{
		EventID: 101,
		Type:    event.TypeBoardViewed,
		Payload: event.BoardViewedPayload{BoardID: 42, ViewCount: 7},
	})
	require.NoError(t, pub.Publish(ctx, event.TopicRead, msg))

	err := cons.consumeOnce(ctx)
	require.True(t, err == nil || errors.Is(err, redis.Nil))
	require.Len(t, got, 1)
	require.Equal(t, int64(101), got[0].EventID)

	// 处理成功即 ACK：pending 为空
	pending, err := client.XPending(ctx, event.TopicRead, "test-group").Result()
	require.NoError(t, err)
	require.Zero(t, pending.Count)
}

func TestRegisterRejectsDuplicateAndUnknown(t *testing.T) {
	client, _ := setupBroker(t)
	cons := NewConsumer(client, event.TopicRead, "g", 3, 0)

	noop := func(context.Context, event.Envelope) error { return nil }
	require.NoError(t, cons.Register(event.TypeBoardViewed, noop))
	require.Error(t, cons.Register(event.TypeBoardViewed, noop), "1:1 dispatch table")
	require.Error(t, cons.Register(event.Type("bogus"), noop))
}

func TestUnknownEventTypeRoutesToDLT(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	cons := newTestConsumer(t, client, event.TopicRead, 3)
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TopicRead,
		Values: map[string]interface{}{payloadField: `{"eventId":"1","type":"NOT_A_TYPE","payload":{}}`},
	}).Err())

	err := cons.consumeOnce(ctx)
	require.True(t, err == nil || errors.Is(err, redis.Nil))

	// 毒消息直接进死信流，原消息 ACK，消费不中断
	dlt, err := client.XLen(ctx, event.TopicRead+event.DLTSuffix).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), dlt)

	pending, err := client.XPending(ctx, event.TopicRead, "test-group").Result()
	require.NoError(t, err)
	require.Zero(t, pending.Count)
}

func TestFailingHandlerDeadLettersAfterMaxAttempts(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	const maxAttempts = 3
	cons := newTestConsumer(t, client, event.TopicRead, maxAttempts)

	attempts := 0
	require.NoError(t, cons.Register(event.TypeBoardViewed, func(context.Context, event.Envelope) error {
		attempts++
		return errors.New("handler always fails")
	}))

	msg := mustEnvelope(t, event.Envelope{
		EventID: 55,
		Type:    event.TypeBoardViewed,
		Payload: event.BoardViewedPayload{BoardID: 1, ViewCount: 1},
	})
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TopicRead,
		Values: map[string]interface{}{payloadField: msg},
	}).Err())

	err := cons.consumeOnce(ctx)
	require.True(t, err == nil || errors.Is(err, redis.Nil))

	for i := 0; i < maxAttempts; i++ {
		require.NoError(t, cons.reclaimOnce(ctx))
	}

	require.Equal(t, maxAttempts, attempts, "handler runs exactly maxAttempts times")

	dlt, err := client.XLen(ctx, event.TopicRead+event.DLTSuffix).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), dlt)

	// offset 前进：没有残留 pending，不会无限重放
	pending, err := client.XPending(ctx, event.TopicRead, "test-group").Result()
	require.NoError(t, err)
	require.Zero(t, pending.Count)

	require.NoError(t, cons.reclaimOnce(ctx))
	require.Equal(t, maxAttempts, attempts)
}

func TestWithIdempotencyAbsorbsDuplicates(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	calls := 0
	h := WithIdempotency(client, time.Hour, func(context.Context, event.Envelope) error {
		calls++
		return nil
	})
	env := event.Envelope{EventID: 9, Type: event.TypeIncrementView, Payload: event.IncrementViewPayload{BoardID: 1}}

	require.NoError(t, h(ctx, env))
	require.NoError(t, h(ctx, env), "duplicate must be a silent no-op")
	require.Equal(t, 1, calls)

	// 不同事件照常处理
	env2 := env
	env2.EventID = 10
	require.NoError(t, h(ctx, env2))
	require.Equal(t, 2, calls)
}

func TestWithIdempotencyRetriesAfterFailure(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	calls := 0
	h := WithIdempotency(client, time.Hour, func(context.Context, event.Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	env := event.Envelope{EventID: 11, Type: event.TypeIncrementView, Payload: event.IncrementViewPayload{BoardID: 1}}

	require.Error(t, h(ctx, env))
	// 失败不写去重标记，重投仍会执行
	require.NoError(t, h(ctx, env))
	require.Equal(t, 2, calls)
}

func TestHandlerIdempotentUnderRedelivery(t *testing.T) {
	client, _ := setupBroker(t)
	ctx := context.Background()

	cons := newTestConsumer(t, client, event.TopicRead, 5)

	seen := map[int64]int{}
	applied := 0
	require.NoError(t, cons.Register(event.TypeBoardViewed, func(_ context.Context, env event.Envelope) error {
		if seen[env.EventID] == 0 {
			applied++
		}
		seen[env.EventID]++
		if seen[env.EventID] < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	msg := mustEnvelope(t, event.Envelope{
		EventID: 77,
		Type:    event.TypeBoardViewed,
		Payload: event.BoardViewedPayload{BoardID: 2, ViewCount: 2},
	})
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TopicRead,
		Values: map[string]interface{}{payloadField: msg},
	}).Err())

	err := cons.consumeOnce(ctx)
	require.True(t, err == nil || errors.Is(err, redis.Nil))
	require.NoError(t, cons.reclaimOnce(ctx))
	require.NoError(t, cons.reclaimOnce(ctx))

	require.Equal(t, 1, applied, "redelivery is absorbed by eventId keying")
	pending, err := client.XPending(ctx, event.TopicRead, "test-group").Result()
	require.NoError(t, err)
	require.Zero(t, pending.Count)
}
