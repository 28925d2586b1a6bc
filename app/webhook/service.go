package webhook

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"orderdesk/domain/client"
	"orderdesk/domain/order"
	"orderdesk/domain/product"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/messaging"
	"orderdesk/patterns/retry"
)

// 流水线阶段名，同时作为指标标签
const (
	StageClient  = "client"
	StageProduct = "product"
	StageOrder   = "order"
)

// MessageTypeOrderIngested 订单入站完成后发布的消息类型
const MessageTypeOrderIngested = "order.ingested"

const successMessage = "Webhook processed successfully"

// Observer 接收流水线指标，monitoring.Collector 满足它
type Observer interface {
	ObserveWebhook(err error)
	ObserveStage(stage string, elapsed time.Duration)
}

// Publisher 发布入站完成消息，messaging.MessageBus 满足它
type Publisher interface {
	Publish(ctx context.Context, message messaging.IMessage) error
}

// Option 服务选项
type Option func(*Service)

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithPublisher 设置消息发布者，publish 失败只记录日志
func WithPublisher(p Publisher, cfg retry.Config) Option {
	return func(s *Service) {
		s.publisher = p
		s.retry = cfg
	}
}

// WithProductConcurrency 限制产品阶段的并发数，<= 0 表示不限
func WithProductConcurrency(n int) Option {
	return func(s *Service) { s.productConcurrency = n }
}

// WithLogger 替换默认日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service webhook 对账服务
//
// 阶段严格按 client → product → order 顺序执行，任一阶段失败即终止，不做重试；
// 重复投递依赖各实体按自然键幂等写入保证安全。
type Service struct {
	clients  *client.Service
	products *product.Service
	orders   *order.Service

	observer           Observer
	publisher          Publisher
	retry              retry.Config
	productConcurrency int
	logger             logging.Logger
}

// NewService 创建 webhook 对账服务
func NewService(clients *client.Service, products *product.Service, orders *order.Service, opts ...Option) *Service {
	s := &Service{
		clients:            clients,
		products:           products,
		orders:             orders,
		retry:              retry.DefaultConfig(),
		productConcurrency: 8,
		logger:             logging.ComponentLogger("webhook.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process 处理一条 webhook 事件
//
// 任一阶段的错误都被包装为 PIPELINE_ERROR，消息为 "Failed to process webhook: <原因>"。
// 产品阶段完成后订单阶段失败时，已写入的 Product 会保留。
func (s *Service) Process(ctx context.Context, event *Event) (*Result, error) {
	logger := s.logger.WithFields(logging.String("external_id", event.ID))
	logger.Info(ctx, "processing webhook")

	data, err := s.reconcile(ctx, event)
	if s.observer != nil {
		s.observer.ObserveWebhook(err)
	}
	if err != nil {
		logger.Error(ctx, "webhook failed", logging.Error(err))
		return nil, errors.WrapError(err, errors.ErrCodePipeline,
			"Failed to process webhook: "+errors.MessageOf(err))
	}

	logger.Info(ctx, "webhook processed",
		logging.String("order_id", data.OrderID),
		logging.String("client_id", data.ClientID),
		logging.Int("product_count", data.ProductCount))

	s.publishIngested(ctx, event.ID, *data)

	return &Result{Success: true, Message: successMessage, Data: *data}, nil
}

func (s *Service) reconcile(ctx context.Context, event *Event) (*ResultData, error) {
	var buyer *client.Client
	err := s.stage(StageClient, func() error {
		var err error
		buyer, err = s.clients.UpsertByEmail(ctx, event.Buyer.BuyerName, event.Buyer.BuyerEmail)
		return err
	})
	if err != nil {
		return nil, err
	}

	var productIDs []string
	err = s.stage(StageProduct, func() error {
		var err error
		productIDs, err = s.upsertProducts(ctx, event.LineItems)
		return err
	})
	if err != nil {
		return nil, err
	}

	var o *order.WithItems
	err = s.stage(StageOrder, func() error {
		items := make([]order.ItemInput, len(event.LineItems))
		for i, li := range event.LineItems {
			items[i] = order.ItemInput{
				ProductID:  productIDs[i],
				ExternalID: li.ItemID,
				Price:      li.Price(),
			}
		}
		var err error
		o, err = s.orders.UpsertByExternalID(ctx, order.UpsertInput{
			ExternalID: event.ID,
			ClientID:   buyer.ID,
			Items:      items,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ResultData{
		OrderID:      o.ID,
		ClientID:     buyer.ID,
		ProductCount: countDistinct(productIDs),
		TotalAmount:  event.TotalAmount,
	}, nil
}

// upsertProducts 并发写入每个订单行的 Product，返回与 lineItems 一一对应的 ID
//
// 同一 itemId 的多行由 product.Service 的键锁串行化，最终指向同一个 Product。
func (s *Service) upsertProducts(ctx context.Context, lineItems []LineItem) ([]string, error) {
	ids := make([]string, len(lineItems))
	g, gctx := errgroup.WithContext(ctx)
	if s.productConcurrency > 0 {
		g.SetLimit(s.productConcurrency)
	}
	for i, li := range lineItems {
		g.Go(func() error {
			p, err := s.products.UpsertByExternalID(gctx, product.UpsertInput{
				ExternalID: li.ItemID,
				Name:       li.ItemName,
			})
			if err != nil {
				return err
			}
			ids[i] = p.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.observer != nil {
		s.observer.ObserveStage(name, time.Since(start))
	}
	return err
}

func (s *Service) publishIngested(ctx context.Context, externalID string, data ResultData) {
	if s.publisher == nil {
		return
	}
	msg := messaging.NewMessage(MessageTypeOrderIngested, Ingested{ExternalID: externalID, ResultData: data})
	msg.SetMetadata("order_id", data.OrderID)

	cfg := s.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn(ctx, "retrying publish",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
	}
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, msg)
	}, cfg)
	if err != nil {
		s.logger.Error(ctx, "publish order.ingested failed",
			logging.String("order_id", data.OrderID),
			logging.Error(err))
	}
}

func countDistinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
