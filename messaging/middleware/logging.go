// Package middleware 提供消息总线的发布中间件
package middleware

import (
	"context"
	"time"

	"orderdesk/logging"
	"orderdesk/messaging"
)

// LoggingMiddleware 记录每次发布的结果与耗时
type LoggingMiddleware struct {
	logger logging.Logger
}

// NewLoggingMiddleware 创建日志中间件，logger 为 nil 时使用组件日志
func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.ComponentLogger("messaging.publish")
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "Logging" }

func (m *LoggingMiddleware) Handle(ctx context.Context, message messaging.IMessage, next messaging.HandlerFunc) error {
	start := time.Now()
	err := next(ctx, message)
	fields := []logging.Field{
		logging.String("message_type", message.GetType()),
		logging.String("message_id", message.GetID()),
		logging.Duration("duration", time.Since(start)),
	}
	if err != nil {
		m.logger.Warn(ctx, "publish failed", append(fields, logging.Error(err))...)
		return err
	}
	m.logger.Debug(ctx, "message published", fields...)
	return nil
}

// PublishObserver 接收发布结果，监控组件实现它
type PublishObserver interface {
	ObservePublish(messageType string, err error, elapsed time.Duration)
}

// ObserverMiddleware 把发布结果转交给 PublishObserver
type ObserverMiddleware struct {
	observer PublishObserver
}

func NewObserverMiddleware(observer PublishObserver) *ObserverMiddleware {
	return &ObserverMiddleware{observer: observer}
}

func (m *ObserverMiddleware) Name() string { return "Observer" }

func (m *ObserverMiddleware) Handle(ctx context.Context, message messaging.IMessage, next messaging.HandlerFunc) error {
	start := time.Now()
	err := next(ctx, message)
	m.observer.ObservePublish(message.GetType(), err, time.Since(start))
	return err
}

// SourceMiddleware 为缺少 source 元数据的消息补上来源标识
type SourceMiddleware struct {
	source string
}

func NewSourceMiddleware(source string) *SourceMiddleware {
	return &SourceMiddleware{source: source}
}

func (m *SourceMiddleware) Name() string { return "Source" }

func (m *SourceMiddleware) Handle(ctx context.Context, message messaging.IMessage, next messaging.HandlerFunc) error {
	md := message.GetMetadata()
	if md != nil && md["source"] == "" {
		md["source"] = m.source
	}
	return next(ctx, message)
}
