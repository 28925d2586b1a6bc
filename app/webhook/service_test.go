package webhook

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/domain/client"
	"orderdesk/domain/order"
	"orderdesk/domain/product"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/messaging"
	"orderdesk/patterns/retry"
)

type harness struct {
	svc      *Service
	clients  *client.MemoryRepository
	products *product.MemoryRepository
	orders   *order.MemoryRepository
}

func newHarness(t *testing.T, opts ...Option) harness {
	t.Helper()
	logging.SetLogger(logging.NewNoopLogger())
	clients := client.NewMemoryRepository(nil)
	products := product.NewMemoryRepository(nil)
	orders := order.NewMemoryRepository(nil)
	svc := NewService(
		client.NewService(clients),
		product.NewService(products, product.NewMemoryCostRepository(nil)),
		order.NewService(orders, clients),
		opts...,
	)
	return harness{svc: svc, clients: clients, products: products, orders: orders}
}

func (h harness) counts(t *testing.T) (int, int, int) {
	t.Helper()
	ctx := context.Background()
	c, err := h.clients.Count(ctx)
	require.NoError(t, err)
	p, err := h.products.Count(ctx)
	require.NoError(t, err)
	o, err := h.orders.Count(ctx)
	require.NoError(t, err)
	return c, p, o
}

func widgetEvent() *Event {
	return &Event{
		ID:          "ORD-1",
		Buyer:       Buyer{BuyerName: "A", BuyerEmail: "a@x.com"},
		LineItems:   []LineItem{{ItemID: "P-1", ItemName: "Widget", Qty: 2, UnitPrice: 10}},
		TotalAmount: 20,
		CreatedAt:   "2025-02-10T14:32:00Z",
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []error
	stages   []string
}

func (o *recordingObserver) ObserveWebhook(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, err)
}

func (o *recordingObserver) ObserveStage(stage string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []messaging.IMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, message messaging.IMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return stdErrors.New("broker unavailable")
	}
	p.messages = append(p.messages, message)
	return nil
}

var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1, MaxDelay: time.Millisecond}

// TestService_ReplayIsIdempotent 测试同一事件重复投递只产生一组记录
func TestService_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, "Webhook processed successfully", first.Message)
	assert.Equal(t, 1, first.Data.ProductCount)
	assert.Equal(t, 20.0, first.Data.TotalAmount)

	second, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)
	assert.Equal(t, first.Data.OrderID, second.Data.OrderID)
	assert.Equal(t, first.Data.ClientID, second.Data.ClientID)

	c, p, o := h.counts(t)
	assert.Equal(t, 1, c)
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, o)

	stored, err := h.orders.FindByIDWithItems(ctx, first.Data.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 20.0, stored.Items[0].Price)
	assert.Equal(t, "P-1", stored.Items[0].ExternalID)
}

// TestService_SameBuyerDifferentOrders 测试同一买家的两个订单共享一个 Client
func TestService_SameBuyerDifferentOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)

	other := widgetEvent()
	other.ID = "ORD-2"
	other.Buyer.BuyerName = "A. Renamed"
	b, err := h.svc.Process(ctx, other)
	require.NoError(t, err)

	assert.Equal(t, a.Data.ClientID, b.Data.ClientID)
	assert.NotEqual(t, a.Data.OrderID, b.Data.OrderID)

	c, _, o := h.counts(t)
	assert.Equal(t, 1, c)
	assert.Equal(t, 2, o)

	buyer, err := h.clients.FindByID(ctx, a.Data.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "A. Renamed", buyer.Name)

	orders, err := h.orders.FindAll(ctx)
	require.NoError(t, err)
	for _, ord := range orders {
		_, err := h.clients.FindByID(ctx, ord.ClientID)
		assert.NoError(t, err, "order %s references a missing client", ord.ID)
	}
}

// TestService_ResendReplacesItems 测试重发时订单行整体替换
func TestService_ResendReplacesItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)

	changed := widgetEvent()
	changed.LineItems = []LineItem{
		{ItemID: "P-2", ItemName: "Gadget", Qty: 3, UnitPrice: 1.5},
		{ItemID: "P-3", ItemName: "Gizmo", Qty: 1, UnitPrice: 7},
	}
	res, err := h.svc.Process(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data.ProductCount)

	stored, err := h.orders.FindByIDWithItems(ctx, res.Data.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	externalIDs := []string{stored.Items[0].ExternalID, stored.Items[1].ExternalID}
	assert.ElementsMatch(t, []string{"P-2", "P-3"}, externalIDs)
	assert.NotContains(t, externalIDs, "P-1")
}

// TestService_PriceIsUnitPriceTimesQty 测试行金额不受 totalAmount 影响
func TestService_PriceIsUnitPriceTimesQty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	event := widgetEvent()
	event.LineItems = []LineItem{{ItemID: "P-1", ItemName: "Widget", Qty: 4, UnitPrice: 2.5}}
	event.TotalAmount = 999
	res, err := h.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 999.0, res.Data.TotalAmount)

	stored, err := h.orders.FindByIDWithItems(ctx, res.Data.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 10.0, stored.Items[0].Price)
}

// TestService_DuplicateItemIDsShareProduct 测试同一 itemId 的多行指向同一 Product
func TestService_DuplicateItemIDsShareProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	event := widgetEvent()
	event.LineItems = append(event.LineItems, LineItem{ItemID: "P-1", ItemName: "Widget", Qty: 1, UnitPrice: 10})
	res, err := h.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data.ProductCount)

	stored, err := h.orders.FindByIDWithItems(ctx, res.Data.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, stored.Items[0].ProductID, stored.Items[1].ProductID)
}

// TestService_OrderStageFailureLeavesProducts 测试订单阶段失败时包装错误且已写入的 Product 保留
func TestService_OrderStageFailureLeavesProducts(t *testing.T) {
	ctx := context.Background()
	logging.SetLogger(logging.NewNoopLogger())
	clients := client.NewMemoryRepository(nil)
	products := product.NewMemoryRepository(nil)
	orders := order.NewMemoryRepository(nil)
	observer := &recordingObserver{}
	svc := NewService(
		client.NewService(clients),
		product.NewService(products, product.NewMemoryCostRepository(nil)),
		// 订单服务看到的买家仓储与 client 阶段不同，买家校验必然失败
		order.NewService(orders, client.NewMemoryRepository(nil)),
		WithObserver(observer),
	)

	_, err := svc.Process(ctx, widgetEvent())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodePipeline))

	buyer, ferr := clients.FindByEmail(ctx, "a@x.com")
	require.NoError(t, ferr)
	assert.Equal(t, "Failed to process webhook: Client with ID "+buyer.ID+" not found", errors.MessageOf(err))

	n, _ := products.Count(ctx)
	assert.Equal(t, 1, n)
	n, _ = orders.Count(ctx)
	assert.Equal(t, 0, n)

	require.Len(t, observer.outcomes, 1)
	assert.Error(t, observer.outcomes[0])
	assert.Equal(t, []string{StageClient, StageProduct, StageOrder}, observer.stages)
}

// TestService_PublishesIngested 测试成功后发布 order.ingested，并在失败时重试
func TestService_PublishesIngested(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{failures: 1}
	h := newHarness(t, WithPublisher(pub, fastRetry))

	res, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, MessageTypeOrderIngested, msg.GetType())
	assert.Equal(t, res.Data.OrderID, msg.GetMetadata()["order_id"])
	payload, ok := msg.GetPayload().(Ingested)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", payload.ExternalID)
	assert.Equal(t, res.Data, payload.ResultData)
}

// TestService_PublishFailureDoesNotFailWebhook 测试发布失败不影响处理结果
func TestService_PublishFailureDoesNotFailWebhook(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{failures: 100}
	h := newHarness(t, WithPublisher(pub, fastRetry))

	res, err := h.svc.Process(ctx, widgetEvent())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, pub.calls)
	assert.Empty(t, pub.messages)
}

// TestService_ConcurrentReplays 测试并发重放同一事件
func TestService_ConcurrentReplays(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Process(ctx, widgetEvent())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, p, o := h.counts(t)
	assert.Equal(t, 1, c)
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, o)
}

// TestEvent_Validate 测试入站事件字段校验
func TestEvent_Validate(t *testing.T) {
	assert.NoError(t, widgetEvent().Validate())

	bad := &Event{
		Buyer:     Buyer{BuyerName: "A", BuyerEmail: "not-an-email"},
		LineItems: []LineItem{{ItemID: "P-1", ItemName: "Widget", Qty: 0, UnitPrice: 1}},
		CreatedAt: "yesterday",
	}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	msg := errors.MessageOf(err)
	assert.Contains(t, msg, "id should not be empty")
	assert.Contains(t, msg, "buyer.buyerEmail must be an email")
	assert.Contains(t, msg, "lineItems.0.qty must be a positive number")
	assert.Contains(t, msg, "totalAmount must be a positive number")
	assert.Contains(t, msg, "createdAt must be a valid ISO 8601 date string")
}
