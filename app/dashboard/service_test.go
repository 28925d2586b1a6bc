package dashboard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/domain/order"
	"orderdesk/domain/product"
	"orderdesk/errors"
	"orderdesk/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc      *Service
	clock    *fakeClock
	orders   *order.MemoryRepository
	products *product.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logging.SetLogger(logging.NewNoopLogger())
	clock := &fakeClock{now: time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)}
	orders := order.NewMemoryRepository(clock.Now)
	products := product.NewService(product.NewMemoryRepository(clock.Now), product.NewMemoryCostRepository(clock.Now))
	svc := NewService(order.NewService(orders, nil), products, Config{Clock: clock.Now})
	return fixture{svc: svc, clock: clock, orders: orders, products: products}
}

func (f fixture) placeOrder(t *testing.T, at time.Time, externalID string, items ...order.ItemInput) {
	t.Helper()
	f.clock.Set(at)
	_, err := f.orders.Create(context.Background(), externalID, "client-1", items)
	require.NoError(t, err)
}

func day(d int) time.Time {
	return time.Date(2025, 2, d, 10, 0, 0, 0, time.UTC)
}

// TestService_Totals 测试收入、成本与利润
func TestService_Totals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cost, err := f.products.CreateCost(ctx, 4)
	require.NoError(t, err)
	linked, err := f.products.Create(ctx, product.CreateInput{ExternalID: "P-1", Name: "Widget", ProductCostID: &cost.ID})
	require.NoError(t, err)
	unlinked, err := f.products.Create(ctx, product.CreateInput{ExternalID: "P-2", Name: "Gadget"})
	require.NoError(t, err)

	f.placeOrder(t, day(3), "ORD-1",
		order.ItemInput{ProductID: linked.ID, ExternalID: "P-1", Price: 20},
		order.ItemInput{ProductID: unlinked.ID, ExternalID: "P-2", Price: 5},
	)
	f.placeOrder(t, day(3), "ORD-2",
		order.ItemInput{ProductID: linked.ID, ExternalID: "P-1", Price: 10},
	)

	resp, err := f.svc.Get(ctx, Query{StartDate: "2025-02-01", EndDate: "2025-02-05"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalOrders)
	assert.Equal(t, 35.0, resp.TotalRevenue)
	assert.Equal(t, 8.0, resp.TotalCost)
	assert.Equal(t, 27.0, resp.Profit)
	assert.Equal(t, Period{StartDate: "2025-02-01", EndDate: "2025-02-05"}, resp.Period)

	require.Len(t, resp.OrderTimeSeries, 5)
	assert.Equal(t, TimeSeriesPoint{Date: "2025-02-03", Count: 2}, resp.OrderTimeSeries[2])
}

// TestService_RangeIsInclusive 测试区间过滤包含两端，日期形式的 endDate 覆盖整天
func TestService_RangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.placeOrder(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "ORD-START")
	f.placeOrder(t, time.Date(2025, 2, 3, 23, 59, 0, 0, time.UTC), "ORD-END")
	f.placeOrder(t, time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC), "ORD-AFTER")
	f.placeOrder(t, time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC), "ORD-BEFORE")

	resp, err := f.svc.Get(ctx, Query{StartDate: "2025-02-01T00:00:00Z", EndDate: "2025-02-03"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalOrders)
	assert.Equal(t, []TimeSeriesPoint{
		{Date: "2025-02-01", Count: 1},
		{Date: "2025-02-02", Count: 0},
		{Date: "2025-02-03", Count: 1},
	}, resp.OrderTimeSeries)
}

// TestService_ZeroFilledBuckets 测试无订单区间的时间序列
func TestService_ZeroFilledBuckets(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Get(context.Background(), Query{StartDate: "2025-06-10", EndDate: "2025-06-16"})
	require.NoError(t, err)
	require.Len(t, resp.OrderTimeSeries, 7)
	for i, p := range resp.OrderTimeSeries {
		assert.Equal(t, 0, p.Count)
		if i > 0 {
			assert.Less(t, resp.OrderTimeSeries[i-1].Date, p.Date)
		}
	}
	assert.Zero(t, resp.TotalOrders)
	assert.Zero(t, resp.Profit)
}

// TestService_DefaultRange 测试默认区间为当年年初至今
func TestService_DefaultRange(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Get(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, Period{StartDate: "2025-01-01", EndDate: "2025-03-02"}, resp.Period)
	assert.Len(t, resp.OrderTimeSeries, 31+28+2)
}

// TestService_InvalidDates 测试非法日期参数
func TestService_InvalidDates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), Query{StartDate: "soon", EndDate: "later"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t,
		"startDate must be a valid ISO 8601 date string; endDate must be a valid ISO 8601 date string",
		errors.MessageOf(err))

	_, err = f.svc.Get(context.Background(), Query{StartDate: "1900-01-01", EndDate: "2025-01-01"})
	assert.True(t, errors.IsValidation(err))
}

// TestService_StartAfterEnd 测试起点晚于终点时返回空序列
func TestService_StartAfterEnd(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Get(context.Background(), Query{StartDate: "2025-02-10", EndDate: "2025-02-01"})
	require.NoError(t, err)
	assert.Empty(t, resp.OrderTimeSeries)
	assert.Zero(t, resp.TotalOrders)
}

// TestService_CostCache 测试成本缓存命中与主动失效
func TestService_CostCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cost, err := f.products.CreateCost(ctx, 4)
	require.NoError(t, err)
	p, err := f.products.Create(ctx, product.CreateInput{ExternalID: "P-1", Name: "Widget", ProductCostID: &cost.ID})
	require.NoError(t, err)
	f.placeOrder(t, day(3), "ORD-1", order.ItemInput{ProductID: p.ID, ExternalID: "P-1", Price: 20})
	q := Query{StartDate: "2025-02-01", EndDate: "2025-02-05"}

	resp, err := f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 4.0, resp.TotalCost)

	_, err = f.products.UpdateCost(ctx, cost.ID, 6)
	require.NoError(t, err)
	resp, err = f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 4.0, resp.TotalCost, "cached until invalidated")
	assert.Equal(t, int64(1), f.svc.CostCacheStats().Hits)

	f.svc.InvalidateCost(cost.ID)
	resp, err = f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 6.0, resp.TotalCost)
}

// TestService_CostObserverInvalidates 测试注册到 product.Service 后修改与删除成本立即生效
func TestService_CostObserverInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.products.OnCostChanged(f.svc.InvalidateCost)

	cost, err := f.products.CreateCost(ctx, 4)
	require.NoError(t, err)
	p, err := f.products.Create(ctx, product.CreateInput{ExternalID: "P-1", Name: "Widget", ProductCostID: &cost.ID})
	require.NoError(t, err)
	f.placeOrder(t, day(3), "ORD-1", order.ItemInput{ProductID: p.ID, ExternalID: "P-1", Price: 20})
	q := Query{StartDate: "2025-02-01", EndDate: "2025-02-05"}

	resp, err := f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 4.0, resp.TotalCost)

	_, err = f.products.UpdateCost(ctx, cost.ID, 6)
	require.NoError(t, err)
	resp, err = f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 6.0, resp.TotalCost)

	require.NoError(t, f.products.DeleteCost(ctx, cost.ID))
	resp, err = f.svc.Get(ctx, q)
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCost)
}

// TestService_MaxRangeDays 测试查询跨度上限可配置
func TestService_MaxRangeDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	narrow := NewService(order.NewService(f.orders, nil), f.products, Config{Clock: f.clock.Now, MaxRangeDays: 7})

	resp, err := narrow.Get(ctx, Query{StartDate: "2025-02-01", EndDate: "2025-02-07"})
	require.NoError(t, err)
	assert.Len(t, resp.OrderTimeSeries, 7)

	_, err = narrow.Get(ctx, Query{StartDate: "2025-02-01", EndDate: "2025-02-08"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "date range must not exceed 7 days", errors.MessageOf(err))

	// 未配置时取默认上限
	_, err = f.svc.Get(ctx, Query{StartDate: "2000-01-01", EndDate: "2025-01-01"})
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("date range must not exceed %d days", DefaultMaxRangeDays), errors.MessageOf(err))
}

// TestService_DeletedCostCountsZero 测试悬空的成本引用按 0 计
func TestService_DeletedCostCountsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cost, err := f.products.CreateCost(ctx, 4)
	require.NoError(t, err)
	p, err := f.products.Create(ctx, product.CreateInput{ExternalID: "P-1", Name: "Widget", ProductCostID: &cost.ID})
	require.NoError(t, err)
	require.NoError(t, f.products.DeleteCost(ctx, cost.ID))
	f.placeOrder(t, day(3), "ORD-1", order.ItemInput{ProductID: p.ID, ExternalID: "P-1", Price: 20})

	resp, err := f.svc.Get(ctx, Query{StartDate: "2025-02-01", EndDate: "2025-02-05"})
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCost)
	assert.Equal(t, 20.0, resp.Profit)
}
