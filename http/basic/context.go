package basic

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"orderdesk/errors"
)

// HttpContext 实现 httpx.IHttpContext
type HttpContext struct {
	request *http.Request
	writer  http.ResponseWriter
	route   string
	params  map[string]string
	ctx     context.Context
	values  map[string]any
	status  int
	maxBody int64
}

// NewHttpContext 创建请求上下文；maxBody 为请求体上限
func NewHttpContext(w http.ResponseWriter, r *http.Request, route string, maxBody int64) *HttpContext {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &HttpContext{
		request: r,
		writer:  w,
		route:   route,
		params:  make(map[string]string),
		ctx:     r.Context(),
		values:  make(map[string]any),
		maxBody: maxBody,
	}
}

func (c *HttpContext) GetMethod() string           { return c.request.Method }
func (c *HttpContext) GetPath() string             { return c.request.URL.Path }
func (c *HttpContext) GetRoute() string            { return c.route }
func (c *HttpContext) GetQuery(key string) string  { return c.request.URL.Query().Get(key) }
func (c *HttpContext) GetQueryParams() url.Values  { return c.request.URL.Query() }
func (c *HttpContext) GetParam(key string) string  { return c.params[key] }
func (c *HttpContext) GetHeader(key string) string { return c.request.Header.Get(key) }
func (c *HttpContext) GetRequest() *http.Request   { return c.request }
func (c *HttpContext) SetParam(key, value string)  { c.params[key] = value }

// ClientIP 返回对端地址（不含端口）
func (c *HttpContext) ClientIP() string {
	host, _, err := net.SplitHostPort(c.request.RemoteAddr)
	if err != nil {
		return c.request.RemoteAddr
	}
	return host
}

// GetBody 读取完整请求体，超过上限时返回 INVALID_INPUT
func (c *HttpContext) GetBody() ([]byte, error) {
	defer c.request.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(c.writer, c.request.Body, c.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return nil, errors.Errorf(errors.ErrCodeInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "failed to read request body")
	}
	return body, nil
}

// BindJSON 解析 JSON 请求体
func (c *HttpContext) BindJSON(obj any) error {
	body, err := c.GetBody()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.NewError(errors.ErrCodeInvalidInput, "request body is required")
	}
	if err := json.Unmarshal(body, obj); err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid JSON body: "+err.Error())
	}
	return nil
}

func (c *HttpContext) SetHeader(key, value string) { c.writer.Header().Set(key, value) }

func (c *HttpContext) JSON(code int, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "failed to serialize JSON")
	}
	c.SetHeader("Content-Type", "application/json; charset=utf-8")
	return c.write(code, data)
}

func (c *HttpContext) String(code int, text string) error {
	c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return c.write(code, []byte(text))
}

func (c *HttpContext) write(code int, data []byte) error {
	c.status = code
	c.writer.WriteHeader(code)
	_, err := c.writer.Write(data)
	return err
}

func (c *HttpContext) Status() int   { return c.status }
func (c *HttpContext) Written() bool { return c.status != 0 }

func (c *HttpContext) Context() context.Context { return c.ctx }

func (c *HttpContext) SetContext(ctx context.Context) {
	c.ctx = ctx
	c.request = c.request.WithContext(ctx)
}

func (c *HttpContext) Set(key string, value any) { c.values[key] = value }

func (c *HttpContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
