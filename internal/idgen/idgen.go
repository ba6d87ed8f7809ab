package idgen

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Snowflake 布局：1 bit 符号位保留 | 41 bit 毫秒时间戳 | 10 bit 节点 | 12 bit 序列
const (
	epochMillis  = int64(1704067200000) // 2024-01-01T00:00:00Z
	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = int64(1)<<nodeBits - 1     // 1023
	maxSequence = int64(1)<<sequenceBits - 1 // 4095

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits
)

// Generator 单节点唯一 ID 生成器；并发安全，单调递增。
type Generator struct {
	mu            sync.Mutex
	nodeID        int64
	lastTimestamp int64
	sequence      int64
	now           func() int64 // 测试注入时钟
}

// New 校验节点号（0..1023），非法配置在构造期失败而不是首次调用时
func New(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("idgen: node id %d out of range [0, %d]", nodeID, maxNodeID)
	}
	return &Generator{nodeID: nodeID, lastTimestamp: -1, now: nowMillis}, nil
}

// NextID 生成下一个 ID。时钟回拨时钳位到 lastTimestamp 继续发号；
// 同毫秒序列耗尽时自旋等待到下一毫秒。锁内只有算术运算，无 I/O。
func (g *Generator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.lastTimestamp {
		now = g.lastTimestamp
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 序列溢出，等毫秒边界推进
			for now <= g.lastTimestamp {
				runtime.Gosched()
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	return now<<timestampShift | g.nodeID<<nodeShift | g.sequence
}

// NodeID 返回配置的节点号
func (g *Generator) NodeID() int64 { return g.nodeID }

func nowMillis() int64 {
	return time.Now().UnixMilli() - epochMillis
}

// Timestamp 从 ID 中还原毫秒时间戳（调试/排序用）
func Timestamp(id int64) time.Time {
	ms := id>>timestampShift + epochMillis
	return time.UnixMilli(ms)
}
