// Package basic 基于标准库 net/http 实现 http.IHttpServer
package basic

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	httpx "orderdesk/http"
	"orderdesk/logging"
)

const defaultMaxBodyBytes = 1 << 20

// HttpServer 基于 ServeMux 方法路由的 IHttpServer 实现
type HttpServer struct {
	config      *httpx.WebConfig
	server      *http.Server
	routes      map[string]*route
	mounts      map[string]http.Handler
	middlewares []httpx.Middleware
	logger      logging.Logger

	mu      sync.RWMutex
	handler http.Handler
}

type route struct {
	method  string
	pattern string
	handler httpx.HttpHandler
}

// NewHTTPServer 创建服务器
func NewHTTPServer(config *httpx.WebConfig) *HttpServer {
	if config == nil {
		config = &httpx.WebConfig{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HttpServer{
		config: config,
		routes: make(map[string]*route),
		mounts: make(map[string]http.Handler),
		logger: logging.ComponentLogger("http.server"),
	}
}

func (s *HttpServer) GET(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodGet, path, handler)
}
func (s *HttpServer) POST(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPost, path, handler)
}
func (s *HttpServer) PUT(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPut, path, handler)
}
func (s *HttpServer) PATCH(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPatch, path, handler)
}
func (s *HttpServer) DELETE(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodDelete, path, handler)
}

func (s *HttpServer) addRoute(method, path string, handler httpx.HttpHandler) httpx.IHttpServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = &route{method: method, pattern: path, handler: handler}
	s.handler = nil
	return s
}

// Group 路由分组
func (s *HttpServer) Group(prefix string) httpx.IRouteGroup {
	return &RouteGroup{prefix: prefix, server: s}
}

// Use 全局中间件，按注册顺序由外到内执行
func (s *HttpServer) Use(middleware ...httpx.Middleware) httpx.IHttpServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
	s.handler = nil
	return s
}

// Mount 挂载原生处理器
func (s *HttpServer) Mount(pattern string, handler http.Handler) httpx.IHttpServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[pattern] = handler
	s.handler = nil
	return s
}

// Handler 构建路由表；注册变更后会重新构建
func (s *HttpServer) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		s.handler = s.buildMux()
	}
	return s.handler
}

// Start 阻塞监听，addr 为空时使用配置的 Host:Port；正常关闭时返回 nil
func (s *HttpServer) Start(addr string) error {
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info(context.Background(), "http server listening", logging.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *HttpServer) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *HttpServer) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	keys := make([]string, 0, len(s.routes))
	for k := range s.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := s.routes[k]
		mux.HandleFunc(r.method+" "+convertPathPattern(r.pattern), s.createHandler(r))
	}
	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
	return mux
}

// 将 :id 转为 {id}（ServeMux 的路径通配写法）
func convertPathPattern(pattern string) string {
	parts := strings.Split(pattern, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func (s *HttpServer) createHandler(r *route) http.HandlerFunc {
	middlewares := append([]httpx.Middleware{}, s.middlewares...)
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := NewHttpContext(w, req, r.pattern, s.config.MaxBodyBytes)
		parsePathParams(ctx, r.pattern, req)
		if err := executeMiddlewareChain(ctx, middlewares, r.handler); err != nil {
			_ = (&HttpUtils{}).WriteErrorResponse(ctx, err)
		}
	}
}

func parsePathParams(ctx *HttpContext, pattern string, req *http.Request) {
	for _, part := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if strings.HasPrefix(part, ":") {
			name := part[1:]
			ctx.SetParam(name, req.PathValue(name))
		}
	}
}

func executeMiddlewareChain(ctx httpx.IHttpContext, middlewares []httpx.Middleware, handler httpx.HttpHandler) error {
	if len(middlewares) == 0 {
		return handler(ctx)
	}
	return middlewares[0](ctx, func() error { return executeMiddlewareChain(ctx, middlewares[1:], handler) })
}

// RouteGroup 实现 IRouteGroup
type RouteGroup struct {
	prefix      string
	server      *HttpServer
	middlewares []httpx.Middleware
}

func (g *RouteGroup) GET(path string, h httpx.HttpHandler) httpx.IRouteGroup {
	return g.add(http.MethodGet, path, h)
}
func (g *RouteGroup) POST(path string, h httpx.HttpHandler) httpx.IRouteGroup {
	return g.add(http.MethodPost, path, h)
}
func (g *RouteGroup) PUT(path string, h httpx.HttpHandler) httpx.IRouteGroup {
	return g.add(http.MethodPut, path, h)
}
func (g *RouteGroup) PATCH(path string, h httpx.HttpHandler) httpx.IRouteGroup {
	return g.add(http.MethodPatch, path, h)
}
func (g *RouteGroup) DELETE(path string, h httpx.HttpHandler) httpx.IRouteGroup {
	return g.add(http.MethodDelete, path, h)
}

// Group 子分组继承父分组的中间件
func (g *RouteGroup) Group(prefix string) httpx.IRouteGroup {
	return &RouteGroup{
		prefix:      g.prefix + prefix,
		server:      g.server,
		middlewares: append([]httpx.Middleware{}, g.middlewares...),
	}
}

func (g *RouteGroup) Use(mw ...httpx.Middleware) httpx.IRouteGroup {
	g.middlewares = append(g.middlewares, mw...)
	return g
}

func (g *RouteGroup) add(method, path string, h httpx.HttpHandler) httpx.IRouteGroup {
	g.server.addRoute(method, g.prefix+path, g.wrap(h))
	return g
}

// wrap 在调用时读取分组中间件，注册路由之后追加的中间件同样生效
func (g *RouteGroup) wrap(h httpx.HttpHandler) httpx.HttpHandler {
	return func(ctx httpx.IHttpContext) error { return executeMiddlewareChain(ctx, g.middlewares, h) }
}
