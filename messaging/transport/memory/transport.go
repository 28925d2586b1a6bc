// Package memory 提供基于有界队列与 worker 池的进程内消息传输
package memory

import (
	"context"
	"errors"
	"sync"

	"orderdesk/logging"
	"orderdesk/messaging"
)

var (
	// ErrNotRunning 传输未启动或已关闭
	ErrNotRunning = errors.New("memory transport is not running")
	// ErrQueueFull 队列已满，发布方可稍后重试
	ErrQueueFull = errors.New("message queue is full")
)

// MemoryTransport 内存消息传输
//
// Publish 只负责入队，处理器由 worker 异步调用，处理器错误只记录日志不回传给发布方。
type MemoryTransport struct {
	handlers    messaging.HandlerSet
	queue       chan messaging.IMessage
	queueSize   int
	workerCount int
	running     bool
	closed      bool
	logger      logging.Logger

	mutex sync.RWMutex
	wg    sync.WaitGroup
}

// NewMemoryTransport 创建内存传输；queueSize<=0 时取 1000，workerCount<=0 时取 4
func NewMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	return newMemoryTransport(queueSize, workerCount)
}

// NewMemoryTransportForTest 允许 0 个 worker，用于验证关闭时的排空语义
func NewMemoryTransportForTest(queueSize int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return newMemoryTransport(queueSize, 0)
}

func newMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	return &MemoryTransport{
		handlers:    make(messaging.HandlerSet),
		queue:       make(chan messaging.IMessage, queueSize),
		queueSize:   queueSize,
		workerCount: workerCount,
		logger:      logging.ComponentLogger("transport.memory"),
	}
}

// Publish 入队，队列满时立即返回 ErrQueueFull
func (t *MemoryTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.running {
		return ErrNotRunning
	}
	return t.enqueueLocked(ctx, message)
}

// PublishAll 逐条入队，遇到第一个失败即返回
func (t *MemoryTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.running {
		return ErrNotRunning
	}
	for _, message := range messages {
		if err := t.enqueueLocked(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// enqueueLocked 需持有读锁，保证与 Close 关闭队列互斥
func (t *MemoryTransport) enqueueLocked(ctx context.Context, message messaging.IMessage) error {
	select {
	case t.queue <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (t *MemoryTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers.Add(messageType, handler)
	return nil
}

func (t *MemoryTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.handlers.Remove(messageType, handler) {
		return errors.New("handler not found for message type " + messageType)
	}
	return nil
}

// Stats 获取统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	count, types := t.handlers.Describe()
	return messaging.TransportStats{
		Name:         "memory",
		Running:      t.running,
		HandlerCount: count,
		MessageTypes: types,
		QueueSize:    t.queueSize,
		QueueDepth:   len(t.queue),
		WorkerCount:  t.workerCount,
	}
}
