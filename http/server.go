// Package http 定义与具体路由实现无关的 HTTP 服务接口
//
// 实现见 http/basic，基于标准库 ServeMux 的方法路由。
package http

import (
	"context"
	"net/http"
)

// IHttpServer HTTP 服务器接口
//
// 路径参数使用 ":name" 写法，例如 "/client/:id"。
type IHttpServer interface {
	GET(path string, handler HttpHandler) IHttpServer
	POST(path string, handler HttpHandler) IHttpServer
	PUT(path string, handler HttpHandler) IHttpServer
	PATCH(path string, handler HttpHandler) IHttpServer
	DELETE(path string, handler HttpHandler) IHttpServer

	Group(prefix string) IRouteGroup
	Use(middleware ...Middleware) IHttpServer

	// Mount 挂载原生 http.Handler，不经过中间件链
	Mount(pattern string, handler http.Handler) IHttpServer

	// Handler 返回完成路由注册的 http.Handler，测试可直接交给 httptest 使用
	Handler() http.Handler

	Start(addr string) error
	Stop(ctx context.Context) error
}

// Middleware 定义 HTTP 中间件签名
type Middleware func(ctx IHttpContext, next func() error) error

// IRouteGroup 定义路由组接口
type IRouteGroup interface {
	GET(path string, handler HttpHandler) IRouteGroup
	POST(path string, handler HttpHandler) IRouteGroup
	PUT(path string, handler HttpHandler) IRouteGroup
	PATCH(path string, handler HttpHandler) IRouteGroup
	DELETE(path string, handler HttpHandler) IRouteGroup

	Group(prefix string) IRouteGroup
	Use(middleware ...Middleware) IRouteGroup
}
