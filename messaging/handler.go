package messaging

import "context"

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器名称，用于日志
	Type() string
}

type funcHandler struct {
	name string
	fn   func(ctx context.Context, message IMessage) error
}

func (h *funcHandler) Handle(ctx context.Context, message IMessage) error { return h.fn(ctx, message) }
func (h *funcHandler) Type() string                                       { return h.name }

// NewHandler 以函数构造处理器
func NewHandler(name string, fn func(ctx context.Context, message IMessage) error) IMessageHandler {
	return &funcHandler{name: name, fn: fn}
}
