package memory

import (
	"context"
	"errors"
	"time"

	"orderdesk/logging"
	"orderdesk/messaging"
)

// Start 启动 worker 池
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running {
		return errors.New("memory transport is already running")
	}
	if t.closed {
		return errors.New("memory transport is closed")
	}
	t.running = true
	for i := 0; i < t.workerCount; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	return nil
}

// Close 停止接收新消息，等待 worker 处理完队列中已有的消息
func (t *MemoryTransport) Close() error {
	_, err := t.CloseWithContext(context.Background())
	return err
}

// CloseWithTimeout 与 Close 相同，但最多等待 timeout
func (t *MemoryTransport) CloseWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := t.CloseWithContext(ctx)
	return err
}

// CloseWithContext 关闭传输并等待 worker 退出
//
// ctx 到期时返回 ctx.Err()，worker 仍会在后台继续排空。
// 没有 worker 时返回队列中未被消费的消息。
func (t *MemoryTransport) CloseWithContext(ctx context.Context) ([]messaging.IMessage, error) {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return nil, ErrNotRunning
	}
	t.running = false
	t.closed = true
	close(t.queue)
	workers := t.workerCount
	t.mutex.Unlock()

	if workers == 0 {
		pending := make([]messaging.IMessage, 0, len(t.queue))
		for m := range t.queue {
			pending = append(pending, m)
		}
		return pending, nil
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case message, ok := <-t.queue:
			if !ok {
				return
			}
			t.dispatch(ctx, message)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch 依次调用匹配的处理器，单个处理器失败或 panic 不影响其余处理器
func (t *MemoryTransport) dispatch(ctx context.Context, message messaging.IMessage) {
	t.mutex.RLock()
	handlers := t.handlers.Match(message.GetType())
	t.mutex.RUnlock()

	for _, handler := range handlers {
		if err := safeHandle(ctx, handler, message); err != nil {
			t.logger.Warn(ctx, "message handler failed",
				logging.String("handler", handler.Type()),
				logging.String("message_type", message.GetType()),
				logging.String("message_id", message.GetID()),
				logging.Error(err))
		}
	}
}

func safeHandle(ctx context.Context, handler messaging.IMessageHandler, message messaging.IMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("handler panicked")
		}
	}()
	return handler.Handle(ctx, message)
}
