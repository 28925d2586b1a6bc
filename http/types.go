package http

import (
	"context"
	"net/http"
	"time"

	"orderdesk/errors"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入 context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom 取出请求 ID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ErrorPayload 通用错误响应
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorPayload 由错误构造响应体
func NewErrorPayload(err error) *ErrorPayload {
	err = errors.Normalize(err)
	p := &ErrorPayload{
		Code:    string(errors.GetErrorCode(err)),
		Message: errors.MessageOf(err),
	}
	if appErr, ok := err.(errors.IError); ok && len(appErr.Details()) > 0 {
		p.Details = appErr.Details()
	}
	return p
}

// StatusOf 把错误码映射为 HTTP 状态码
//
// 唯一性冲突在本 API 中视为请求错误，返回 400。
func StatusOf(err error) int {
	switch errors.GetErrorCode(errors.Normalize(err)) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeValidation,
		errors.ErrCodeConflict, errors.ErrCodePipeline:
		return http.StatusBadRequest
	case errors.ErrCodeTimeout:
		return http.StatusRequestTimeout
	case errors.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WebConfig HTTP 服务基础配置
type WebConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes 请求体上限，<= 0 时取 1 MiB
	MaxBodyBytes int64
}
