package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 热路径计数键。userLikes 集合仅在首次写入时挂 TTL。
const pendingKey = "pending_boards"

func viewKey(boardID int64) string     { return fmt.Sprintf("view_count:%d", boardID) }
func likeKey(boardID int64) string     { return fmt.Sprintf("like_count:%d", boardID) }
func userLikeKey(boardID int64) string { return fmt.Sprintf("user_likes:%d", boardID) }

// incrementViewScript KEYS: viewKey pendingKey, ARGV: boardID
var incrementViewScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return v
`)

// likeScript KEYS: userLikeKey likeKey pendingKey, ARGV: userID ttlSeconds boardID
// 幂等：用户已点赞时返回 {0, -1}，不动任何计数
var likeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
    return {0, -1}
end
redis.call('SADD', KEYS[1], ARGV[1])
if redis.call('TTL', KEYS[1]) == -1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
local d = redis.call('INCR', KEYS[2])
redis.call('SADD', KEYS[3], ARGV[3])
return {1, d}
`)

// unlikeScript KEYS: userLikeKey likeKey pendingKey, ARGV: userID boardID
var unlikeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
    return {0, -1}
end
redis.call('SREM', KEYS[1], ARGV[1])
local d = redis.call('DECR', KEYS[2])
redis.call('SADD', KEYS[3], ARGV[2])
return {1, d}
`)

// getAndDeleteScript 读取并删除标量键；对账任务用它"认领"待结增量，
// 并发写入方的下一次 INCR 会落在全新的键上，不会读到半截值
var getAndDeleteScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == false then
    return false
end
redis.call('DEL', KEYS[1])
return v
`)

// snapshotScript KEYS: viewKey likeKey userLikeKey, ARGV: userID（可为空串）
var snapshotScript = redis.NewScript(`
local view = redis.call('GET', KEYS[1])
local like = redis.call('GET', KEYS[2])
local liked = 0
if ARGV[1] ~= '' then
    liked = redis.call('SISMEMBER', KEYS[3], ARGV[1])
end
return {view or '0', like or '0', liked}
`)

// Store 帖子热路径计数存储。所有写操作都是单脚本原子执行，
// 调用方永远观察不到部分更新；客户端侧无锁。
type Store struct {
	client redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store { return &Store{client: client} }

// IncrementView 浏览数 +1，同时把帖子标记为待结；返回当前待结增量
func (s *Store) IncrementView(ctx context.Context, boardID int64) (int64, error) {
	n, err := incrementViewScript.Run(ctx, s.client,
		[]string{viewKey(boardID), pendingKey},
		boardID).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter: increment view board %d: %w", boardID, err)
	}
	return n, nil
}

// Like 点赞。重复点赞无副作用并返回 (false, -1)。
func (s *Store) Like(ctx context.Context, boardID, userID int64, ttl time.Duration) (bool, int64, error) {
	res, err := likeScript.Run(ctx, s.client,
		[]string{userLikeKey(boardID), likeKey(boardID), pendingKey},
		userID, int64(ttl.Seconds()), boardID).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("counter: like board %d user %d: %w", boardID, userID, err)
	}
	return res[0] == 1, res[1], nil
}

// Unlike 取消点赞；未点赞时无副作用并返回 (false, -1)
func (s *Store) Unlike(ctx context.Context, boardID, userID int64) (bool, int64, error) {
	res, err := unlikeScript.Run(ctx, s.client,
		[]string{userLikeKey(boardID), likeKey(boardID), pendingKey},
		userID, boardID).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("counter: unlike board %d user %d: %w", boardID, userID, err)
	}
	return res[0] == 1, res[1], nil
}

// GetAndDelete 原子读删；键不存在时 ok 为 false
func (s *Store) GetAndDelete(ctx context.Context, key string) (int64, bool, error) {
	v, err := getAndDeleteScript.Run(ctx, s.client, []string{key}).Text()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("counter: get-and-delete %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("counter: non-numeric value at %s: %w", key, err)
	}
	return n, true, nil
}

// ClaimViewDelta 认领帖子的待结浏览增量
func (s *Store) ClaimViewDelta(ctx context.Context, boardID int64) (int64, bool, error) {
	return s.GetAndDelete(ctx, viewKey(boardID))
}

// ClaimLikeDelta 认领帖子的待结点赞增量（有符号）
func (s *Store) ClaimLikeDelta(ctx context.Context, boardID int64) (int64, bool, error) {
	return s.GetAndDelete(ctx, likeKey(boardID))
}

// Snapshot 只读快照：待结浏览/点赞增量与用户是否已点赞。
// userID 为 0 时跳过点赞状态查询。持久化总量由调用方叠加。
func (s *Store) Snapshot(ctx context.Context, boardID, userID int64) (viewDelta, likeDelta int64, liked bool, err error) {
	userArg := ""
	if userID != 0 {
		userArg = strconv.FormatInt(userID, 10)
	}
	res, err := snapshotScript.Run(ctx, s.client,
		[]string{viewKey(boardID), likeKey(boardID), userLikeKey(boardID)},
		userArg).Slice()
	if err != nil {
		return 0, 0, false, fmt.Errorf("counter: snapshot board %d: %w", boardID, err)
	}
	viewDelta, err = toInt64(res[0])
	if err != nil {
		return 0, 0, false, err
	}
	likeDelta, err = toInt64(res[1])
	if err != nil {
		return 0, 0, false, err
	}
	likedN, err := toInt64(res[2])
	if err != nil {
		return 0, 0, false, err
	}
	return viewDelta, likeDelta, likedN == 1, nil
}

// PendingBoards 当前有待结增量的帖子集合
func (s *Store) PendingBoards(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("counter: pending boards: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter: bad board id %q in pending set: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClearPending 从待结集合移除帖子（对账成功后调用）
func (s *Store) ClearPending(ctx context.Context, boardID int64) error {
	return s.client.SRem(ctx, pendingKey, boardID).Err()
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("counter: unexpected reply type %T", v)
	}
}
