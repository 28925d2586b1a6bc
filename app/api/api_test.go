package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/app/dashboard"
	"orderdesk/app/webhook"
	"orderdesk/domain/client"
	"orderdesk/domain/order"
	"orderdesk/domain/product"
	httpx "orderdesk/http"
	hbasic "orderdesk/http/basic"
	"orderdesk/logging"
	"orderdesk/monitoring"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	health  *monitoring.Health
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logging.SetLogger(logging.NewNoopLogger())

	clientRepo := client.NewMemoryRepository(nil)
	clients := client.NewService(clientRepo)
	products := product.NewService(product.NewMemoryRepository(nil), product.NewMemoryCostRepository(nil))
	orders := order.NewService(order.NewMemoryRepository(nil), clientRepo)
	board := dashboard.NewService(orders, products, dashboard.Config{})
	products.OnCostChanged(board.InvalidateCost)
	health := monitoring.NewHealth()

	srv := hbasic.NewHTTPServer(&httpx.WebConfig{})
	srv.Use(hbasic.RequestID(), hbasic.AccessLog(logging.NewNoopLogger(), nil), hbasic.Recover(logging.NewNoopLogger()))
	Register(srv,
		NewWebhookRoutes(webhook.NewService(clients, products, orders)),
		NewDashboardRoutes(board),
		NewClientRoutes(clients, orders),
		NewProductRoutes(products),
		NewOrderRoutes(orders),
		NewHealthRoutes(health),
	)
	return &testAPI{t: t, handler: srv.Handler(), health: health}
}

func (a *testAPI) do(method, target, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const ord1 = `{
	"id": "ORD-1",
	"buyer": {"buyerName": "A", "buyerEmail": "a@x.com"},
	"lineItems": [{"itemId": "P-1", "itemName": "Widget", "qty": 2, "unitPrice": 10}],
	"totalAmount": 20,
	"createdAt": "2025-02-10T14:32:00Z"
}`

// TestWebhook_ReplaySameEvent 测试同一事件投递两次
func TestWebhook_ReplaySameEvent(t *testing.T) {
	api := newTestAPI(t)

	first := api.do(http.MethodPost, "/webhooks/external-order", ord1)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := api.do(http.MethodPost, "/webhooks/external-order", ord1)
	require.Equal(t, http.StatusOK, second.Code)

	a := decode[webhook.Result](t, first)
	b := decode[webhook.Result](t, second)
	assert.True(t, a.Success)
	assert.Equal(t, "Webhook processed successfully", a.Message)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, 1, a.Data.ProductCount)

	assert.Len(t, decode[[]client.Client](t, api.do(http.MethodGet, "/client", "")), 1)
	assert.Len(t, decode[[]product.Product](t, api.do(http.MethodGet, "/product", "")), 1)

	orders := decode[[]order.WithItems](t, api.do(http.MethodGet, "/order/with-items", ""))
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, 20.0, orders[0].Items[0].Price)
	assert.Equal(t, a.Data.ClientID, orders[0].ClientID)
}

// TestWebhook_InvalidPayload 测试字段校验失败返回 400
func TestWebhook_InvalidPayload(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/webhooks/external-order", `{"id":"ORD-1","buyer":{"buyerName":"A","buyerEmail":"nope"},"lineItems":[],"totalAmount":1,"createdAt":"2025-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decode[httpx.ErrorPayload](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", payload.Code)
	assert.Contains(t, payload.Message, "buyer.buyerEmail must be an email")

	rec = api.do(http.MethodPost, "/webhooks/external-order", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestClient_CRUD 测试 Client 的增删改查与错误消息
func TestClient_CRUD(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/client", `{"name":"Ana","email":"ana@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[client.Client](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = api.do(http.MethodPost, "/client", `{"name":"Other","email":"ana@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Client with email ana@x.com already exists", decode[httpx.ErrorPayload](t, rec).Message)

	rec = api.do(http.MethodPatch, "/client/"+created.ID, `{"name":"Ana Maria"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[client.Client](t, rec)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, "ana@x.com", updated.Email)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rec = api.do(http.MethodGet, "/client/"+created.ID+"/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]order.Order](t, rec))

	rec = api.do(http.MethodDelete, "/client/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Client deleted successfully", decode[MessageResponse](t, rec).Message)

	rec = api.do(http.MethodGet, "/client/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Client with ID "+created.ID+" not found", decode[httpx.ErrorPayload](t, rec).Message)

	rec = api.do(http.MethodGet, "/client/ghost/orders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestProduct_CostLinks 测试成本关联、with-cost 列表与显式解除关联
func TestProduct_CostLinks(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/product/cost", `{"cost":12.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	cost := decode[product.ProductCost](t, rec)

	rec = api.do(http.MethodPost, "/product", `{"externalId":"P-1","name":"Widget","productCostId":"`+cost.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[product.Product](t, rec)

	withCost := decode[[]product.WithCost](t, api.do(http.MethodGet, "/product/with-cost", ""))
	require.Len(t, withCost, 1)
	require.NotNil(t, withCost[0].ProductCost)
	assert.Equal(t, 12.5, withCost[0].ProductCost.Cost)

	rec = api.do(http.MethodPatch, "/product/"+p.ID, `{"productCostId":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[product.Product](t, rec).ProductCostID)

	rec = api.do(http.MethodPatch, "/product/cost/"+cost.ID, `{"cost":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cost must be a positive number", decode[httpx.ErrorPayload](t, rec).Message)

	assert.Len(t, decode[[]product.ProductCost](t, api.do(http.MethodGet, "/product/cost/all", "")), 1)

	rec = api.do(http.MethodDelete, "/product/cost/"+cost.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Product cost deleted successfully", decode[MessageResponse](t, rec).Message)

	rec = api.do(http.MethodGet, "/product/cost/"+cost.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product cost with ID "+cost.ID+" not found", decode[httpx.ErrorPayload](t, rec).Message)
}

// TestOrder_EmptyItemsSerializeAsArray 测试无明细订单的 items 输出为空数组，普通查询不含 items
func TestOrder_EmptyItemsSerializeAsArray(t *testing.T) {
	api := newTestAPI(t)

	buyer := decode[client.Client](t, api.do(http.MethodPost, "/client", `{"name":"Ana","email":"ana@x.com"}`))
	rec := api.do(http.MethodPost, "/order", `{"externalId":"ORD-0","clientId":"`+buyer.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
	o := decode[order.WithItems](t, rec)

	rec = api.do(http.MethodGet, "/order/"+o.ID+"/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = api.do(http.MethodGet, "/order/with-items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = api.do(http.MethodGet, "/order/"+o.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"items"`)
}

// TestOrder_CreateRequiresClient 测试直接创建订单时校验买家
func TestOrder_CreateRequiresClient(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/order", `{"externalId":"ORD-9","clientId":"ghost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Client with ID ghost not found", decode[httpx.ErrorPayload](t, rec).Message)

	buyer := decode[client.Client](t, api.do(http.MethodPost, "/client", `{"name":"Ana","email":"ana@x.com"}`))
	rec = api.do(http.MethodPost, "/order", `{"externalId":"ORD-9","clientId":"`+buyer.ID+`","items":[{"productId":"p","externalId":"P-1","price":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decode[order.WithItems](t, rec)
	assert.Len(t, o.Items, 1)

	rec = api.do(http.MethodGet, "/order/"+o.ID+"/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[order.WithItems](t, rec).Items, 1)

	rec = api.do(http.MethodDelete, "/order/"+o.ID, "")
	assert.Equal(t, "Order deleted successfully", decode[MessageResponse](t, rec).Message)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/order/"+o.ID, "").Code)
}

// TestDashboard 测试看板查询
func TestDashboard(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/webhooks/external-order", ord1).Code)

	rec := api.do(http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dashboard.Response](t, rec)
	assert.Equal(t, 1, resp.TotalOrders)
	assert.Equal(t, 20.0, resp.TotalRevenue)
	assert.NotEmpty(t, resp.OrderTimeSeries)

	rec = api.do(http.MethodGet, "/dashboard?startDate=2020-01-01&endDate=2020-01-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[dashboard.Response](t, rec)
	assert.Zero(t, resp.TotalOrders)
	assert.Len(t, resp.OrderTimeSeries, 3)

	rec = api.do(http.MethodGet, "/dashboard?startDate=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHealthz 测试健康检查
func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "").Code)

	api.health.Register("storage", func(ctx context.Context) error { return errors.New("closed") })
	assert.Equal(t, http.StatusServiceUnavailable, api.do(http.MethodGet, "/healthz", "").Code)
}
