package basic

import (
	"fmt"
	"net/http"
	"strings"

	"orderdesk/errors"
	httpx "orderdesk/http"
	"orderdesk/logging"
)

// HttpUtils 处理器常用辅助方法
type HttpUtils struct{}

// ParseID 读取非空路径参数
func (u *HttpUtils) ParseID(ctx httpx.IHttpContext, paramName string) (string, error) {
	id := strings.TrimSpace(ctx.GetParam(paramName))
	if id == "" {
		return "", errors.Errorf(errors.ErrCodeInvalidInput, "parameter %s cannot be empty", paramName)
	}
	return id, nil
}

// WriteErrorResponse 按错误码写出 ErrorPayload；响应已写出时什么也不做
func (u *HttpUtils) WriteErrorResponse(ctx httpx.IHttpContext, err error) error {
	if ctx.Written() {
		return nil
	}
	status := httpx.StatusOf(err)
	payload := httpx.NewErrorPayload(err)
	if status >= http.StatusInternalServerError {
		logging.GetLogger().Error(ctx.Context(), "request failed",
			logging.String("method", ctx.GetMethod()),
			logging.String("path", ctx.GetPath()),
			logging.Error(err))
	}
	if jerr := ctx.JSON(status, payload); jerr != nil {
		return ctx.String(http.StatusInternalServerError, fmt.Sprintf("%s: %s", payload.Code, payload.Message))
	}
	return nil
}

// WriteJSON 写出 JSON 响应
func (u *HttpUtils) WriteJSON(ctx httpx.IHttpContext, status int, data any) error {
	return ctx.JSON(status, data)
}
