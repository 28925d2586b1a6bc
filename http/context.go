package http

import (
	"context"
	"net/http"
	"net/url"
)

// IRequestReader 请求读取接口
type IRequestReader interface {
	GetMethod() string
	GetPath() string
	GetHeader(key string) string
	GetQuery(key string) string
	GetParam(key string) string
	GetQueryParams() url.Values

	// GetRoute 返回匹配到的路由模板，例如 "/client/:id"
	GetRoute() string

	GetBody() ([]byte, error)
	GetRequest() *http.Request

	ClientIP() string
}

// IRequestBinder 请求绑定接口
type IRequestBinder interface {
	BindJSON(obj any) error
}

// IResponseWriter 响应写入接口
type IResponseWriter interface {
	SetHeader(key, value string)
	JSON(code int, obj any) error
	String(code int, text string) error

	// Status 返回已写出的状态码，尚未写出时为 0
	Status() int
	Written() bool
}

// IContextStorage 请求内键值存储
type IContextStorage interface {
	Set(key string, value any)
	Get(key string) (any, bool)
}

// IHttpContext 组合接口
type IHttpContext interface {
	IRequestReader
	IRequestBinder
	IResponseWriter
	IContextStorage

	// Context 返回请求的 context，可被中间件替换
	Context() context.Context
	SetContext(ctx context.Context)
}

// HttpHandler 处理器函数类型
type HttpHandler func(ctx IHttpContext) error
