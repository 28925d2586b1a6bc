// Package api 把领域服务挂载为 REST 路由
package api

import (
	"net/http"
	"strings"

	httpx "orderdesk/http"
	hbasic "orderdesk/http/basic"
	"orderdesk/validation"
)

// IRouteRegistrar 路由注册器
//
// 每个资源一个实现，由 Register 统一挂载到服务器。
type IRouteRegistrar interface {
	RegisterRoutes(group httpx.IRouteGroup)
	GetName() string
}

// Register 把注册器挂载到服务器根路径
func Register(srv httpx.IHttpServer, registrars ...IRouteRegistrar) {
	root := srv.Group("")
	for _, r := range registrars {
		r.RegisterRoutes(root)
	}
}

// MessageResponse 仅包含消息的响应，用于删除操作
type MessageResponse struct {
	Message string `json:"message"`
}

func deleted(ctx httpx.IHttpContext, entity string) error {
	return ctx.JSON(http.StatusOK, MessageResponse{Message: entity + " deleted successfully"})
}

var utils = &hbasic.HttpUtils{}

// bind 解析请求体并执行字段校验
func bind(ctx httpx.IHttpContext, dto validation.IValidator) error {
	if err := ctx.BindJSON(dto); err != nil {
		return err
	}
	return dto.Validate()
}

// optionalNonEmpty 字段出现时不能为空白
func optionalNonEmpty(value *string, field string) error {
	if value == nil {
		return nil
	}
	return validation.ValidateRequired(strings.TrimSpace(*value), field)
}
