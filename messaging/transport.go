package messaging

import "context"

// Transport 消息传输接口
//
// messageType 为 "*" 的订阅接收全部类型。
type Transport interface {
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	Subscribe(messageType string, handler IMessageHandler) error
	Unsubscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Name         string   `json:"name"`
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
	QueueSize    int      `json:"queue_size,omitempty"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}

// HandlerSet 按消息类型维护订阅者，供各传输实现复用；调用方负责加锁
type HandlerSet map[string][]IMessageHandler

// Add 追加订阅者
func (s HandlerSet) Add(messageType string, handler IMessageHandler) {
	s[messageType] = append(s[messageType], handler)
}

// Remove 移除订阅者，返回是否找到
func (s HandlerSet) Remove(messageType string, handler IMessageHandler) bool {
	handlers := s[messageType]
	for i, h := range handlers {
		if h == handler {
			s[messageType] = append(handlers[:i:i], handlers[i+1:]...)
			if len(s[messageType]) == 0 {
				delete(s, messageType)
			}
			return true
		}
	}
	return false
}

// Match 返回精确匹配与通配符订阅者的副本
func (s HandlerSet) Match(messageType string) []IMessageHandler {
	exact, wildcard := s[messageType], s["*"]
	out := make([]IMessageHandler, 0, len(exact)+len(wildcard))
	out = append(out, exact...)
	return append(out, wildcard...)
}

// Describe 返回订阅者总数与已订阅类型
func (s HandlerSet) Describe() (count int, types []string) {
	types = make([]string, 0, len(s))
	for mt, hs := range s {
		count += len(hs)
		types = append(types, mt)
	}
	return count, types
}
