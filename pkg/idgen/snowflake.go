// Package idgen 雪花算法 ID 生成器
//
// 64 位结构：
//
//	0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 用于 outbox 消息键和分布式锁的持有者标识，多实例部署时 worker_id 必须互不相同。
package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	mu               sync.Mutex
)

// New 创建独立的生成器
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultGenerator != nil {
		return nil
	}
	g, err := New(workerID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

func generator() *Snowflake {
	mu.Lock()
	defer mu.Unlock()

	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	return defaultGenerator
}

// NextID 生成下一个ID，未初始化时使用 workerID = 1
func NextID() int64 {
	return generator().Generate()
}

// NextString 十进制字符串形式的 NextID
func NextString() string {
	return strconv.FormatInt(NextID(), 10)
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// WorkerID 从 ID 中取出机器ID
func WorkerID(id int64) int64 {
	return (id >> workerIDShift) & maxWorkerID
}
