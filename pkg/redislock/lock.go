package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("redislock: not acquired")

// 仅持有者可操作；token 不匹配说明锁已过期被他人持有。
// 未到最短持有时间时不删除，改为把 TTL 收缩到剩余时长，
// 保证同一 tick 内其他实例拿不到锁（lockAtLeastFor 语义）。
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
local remain = tonumber(ARGV[2])
if remain > 0 then
    return redis.call('PEXPIRE', KEYS[1], remain)
end
return redis.call('DEL', KEYS[1])
`)

// Lock 基于 SET NX PX 的集群互斥锁。maxHold 是键 TTL，
// 进程中途崩溃时的泄漏上限；minHold 由 Release 保证。
type Lock struct {
	client     redis.UniversalClient
	key        string
	token      string
	acquiredAt time.Time
	minHold    time.Duration
}

// Acquire 尝试获取名为 name 的锁；拿不到返回 ErrNotAcquired（调用方跳过本次 tick）。
func Acquire(ctx context.Context, client redis.UniversalClient, name string, minHold, maxHold time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, "lock:"+name, token, maxHold).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{client: client, key: "lock:" + name, token: token, acquiredAt: time.Now(), minHold: minHold}, nil
}

// Release 释放锁；若尚未持有满 minHold，锁会保留到 minHold 再自然过期。
func (l *Lock) Release(ctx context.Context) error {
	remain := l.minHold - time.Since(l.acquiredAt)
	var remainMs int64
	if remain > 0 {
		remainMs = remain.Milliseconds()
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token, remainMs).Err()
}
