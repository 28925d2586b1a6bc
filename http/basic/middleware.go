package basic

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"orderdesk/errors"
	httpx "orderdesk/http"
	"orderdesk/logging"
)

// RequestObserver 接收每个请求的度量，monitoring.Collector 满足它
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// RequestID 沿用请求头中的 X-Request-ID，没有时生成一个，并回写到响应头
func RequestID() httpx.Middleware {
	return func(ctx httpx.IHttpContext, next func() error) error {
		id := ctx.GetHeader(httpx.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetHeader(httpx.RequestIDHeader, id)
		ctx.SetContext(httpx.WithRequestID(ctx.Context(), id))
		return next()
	}
}

// Recover 把处理器 panic 转为 500
func Recover(logger logging.Logger) httpx.Middleware {
	return func(ctx httpx.IHttpContext, next func() error) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx.Context(), "handler panic",
					logging.String("route", ctx.GetRoute()),
					logging.Any("panic", r))
				err = errors.NewError(errors.ErrCodeInternal, fmt.Sprintf("internal server error: %v", r))
			}
		}()
		return next()
	}
}

// AccessLog 记录请求日志与度量；处理器返回的错误在这里写出，以便记录最终状态码
func AccessLog(logger logging.Logger, observer RequestObserver) httpx.Middleware {
	utils := &HttpUtils{}
	return func(ctx httpx.IHttpContext, next func() error) error {
		start := time.Now()
		err := next()
		if err != nil {
			_ = utils.WriteErrorResponse(ctx, err)
		}
		elapsed := time.Since(start)

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logging.Field{
			logging.String("method", ctx.GetMethod()),
			logging.String("path", ctx.GetPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
			logging.String("request_id", httpx.RequestIDFrom(ctx.Context())),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn(ctx.Context(), "request completed", fields...)
		} else {
			logger.Debug(ctx.Context(), "request completed", fields...)
		}
		if observer != nil {
			observer.ObserveHTTP(ctx.GetMethod(), ctx.GetRoute(), status, elapsed)
		}
		return nil
	}
}
