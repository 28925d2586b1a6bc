// Package app 组装订单中台进程：存储、服务、事件总线、HTTP 路由与监控
package app

import (
	"context"
	stdErrors "errors"
	"net/http"
	"time"

	"orderdesk/app/api"
	"orderdesk/app/dashboard"
	"orderdesk/app/seed"
	"orderdesk/app/webhook"
	"orderdesk/config"
	core "orderdesk/data/db"
	"orderdesk/data/db/basic"
	"orderdesk/domain/client"
	"orderdesk/domain/order"
	"orderdesk/domain/product"
	"orderdesk/errors"
	httpx "orderdesk/http"
	hbasic "orderdesk/http/basic"
	"orderdesk/logging"
	"orderdesk/messaging"
	"orderdesk/messaging/middleware"
	"orderdesk/messaging/transport/memory"
	"orderdesk/messaging/transport/natsjetstream"
	"orderdesk/messaging/transport/redisstreams"
	"orderdesk/monitoring"
	"orderdesk/patterns/retry"
	"orderdesk/server"
)

// Options 进程启动参数，来自命令行
type Options struct {
	ConfigPath string
	// Seed 为 true 时启动后台播种
	Seed      bool
	SeedCount int
	SeedValue uint64
}

// Services 组装好的领域服务
type Services struct {
	Clients   *client.Service
	Products  *product.Service
	Orders    *order.Service
	Webhook   *webhook.Service
	Dashboard *dashboard.Service
}

// Application 实现 server.IServer
type Application struct {
	opts   Options
	cfg    *config.Config
	logger logging.Logger

	db        *basic.DB
	bus       *messaging.MessageBus
	services  *Services
	collector *monitoring.Collector
	health    *monitoring.Health
	http      *hbasic.HttpServer
}

var _ server.IServer = (*Application)(nil)

// New 创建应用
func New(opts Options) *Application {
	return &Application{opts: opts, logger: logging.ComponentLogger("app")}
}

func (a *Application) Name() string { return "orderdesk" }

// Config 已加载的配置，LoadConfig 之前为 nil
func (a *Application) Config() *config.Config { return a.cfg }

// Services 已组装的服务，SetupDependencies 之前为 nil
func (a *Application) Services() *Services { return a.services }

// LoadConfig 读取配置并应用日志级别
func (a *Application) LoadConfig() error {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if std, ok := logging.GetLogger().(*logging.StdLogger); ok {
		std.SetLevel(level)
	}
	a.cfg = cfg
	return nil
}

// SetupDependencies 按配置打开存储与事件传输，组装服务和 HTTP 路由
func (a *Application) SetupDependencies(ctx context.Context) error {
	if a.cfg == nil {
		return errors.NewError(errors.ErrCodeInternal, "config not loaded")
	}
	a.collector = monitoring.NewMetricsCollector()
	a.health = monitoring.NewHealth()

	clientRepo, productRepo, costRepo, orderRepo, err := a.openRepositories(ctx)
	if err != nil {
		return err
	}

	clients := client.NewService(clientRepo)
	products := product.NewService(productRepo, costRepo)
	orders := order.NewService(orderRepo, clientRepo)
	board := dashboard.NewService(orders, products, dashboard.Config{
		CostCacheTTL:  a.cfg.Dashboard.CostCacheTTL,
		CostCacheSize: a.cfg.Dashboard.CostCacheSize,
		MaxRangeDays:  a.cfg.Dashboard.MaxRangeDays,
	})
	products.OnCostChanged(board.InvalidateCost)

	webhookOpts := []webhook.Option{webhook.WithObserver(a.collector)}
	bus, err := a.openEventBus(ctx)
	if err != nil {
		return err
	}
	if bus != nil {
		a.bus = bus
		webhookOpts = append(webhookOpts, webhook.WithPublisher(bus, retry.DefaultConfig()))
	}

	a.services = &Services{
		Clients:   clients,
		Products:  products,
		Orders:    orders,
		Webhook:   webhook.NewService(clients, products, orders, webhookOpts...),
		Dashboard: board,
	}

	a.collector.TrackEntities("client", clients.Count)
	a.collector.TrackEntities("product", products.Count)
	a.collector.TrackEntities("order", orders.Count)

	a.http = a.buildHTTP()
	a.logger.Info(ctx, "dependencies ready",
		logging.String("storage", a.cfg.Storage.Driver),
		logging.String("events", a.cfg.Events.Transport))
	return nil
}

func (a *Application) openRepositories(ctx context.Context) (client.Repository, product.Repository, product.CostRepository, order.Repository, error) {
	if a.cfg.Storage.Driver != config.StorageSQLite {
		return client.NewMemoryRepository(nil), product.NewMemoryRepository(nil),
			product.NewMemoryCostRepository(nil), order.NewMemoryRepository(nil), nil
	}

	db, err := basic.Open(ctx, core.DBConfig{Driver: "sqlite", DSN: a.cfg.Storage.DSN})
	if err != nil {
		return nil, nil, nil, nil, errors.WrapError(err, errors.ErrCodeDatabase, "open sqlite")
	}
	for _, schema := range []string{client.SQLSchema, product.SQLSchema, order.SQLSchema} {
		if err := db.ExecScript(ctx, schema); err != nil {
			_ = db.Close()
			return nil, nil, nil, nil, errors.WrapError(err, errors.ErrCodeDatabase, "apply schema")
		}
	}
	a.db = db
	a.health.Register("storage", db.Ping)

	return client.NewSQLRepository(db, nil), product.NewSQLRepository(db, nil),
		product.NewSQLCostRepository(db, nil), order.NewSQLRepository(db, nil), nil
}

// openEventBus 按 events.transport 构建总线；none 时返回 nil
func (a *Application) openEventBus(ctx context.Context) (*messaging.MessageBus, error) {
	events := a.cfg.Events
	var transport messaging.Transport
	switch events.Transport {
	case config.TransportMemory:
		transport = memory.NewMemoryTransport(events.QueueSize, events.Workers)
	case config.TransportNATS:
		transport = natsjetstream.NewTransport(natsjetstream.Config{
			URL:    events.NATSURL,
			Stream: events.NATSStream,
		})
	case config.TransportRedis:
		t, err := redisstreams.NewTransport(redisstreams.Config{
			Addr:         events.RedisAddr,
			StreamPrefix: events.RedisStreamPrefix,
		})
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeQueue, "connect redis streams")
		}
		transport = t
	default:
		return nil, nil
	}

	bus := messaging.NewMessageBus(transport)
	bus.Use(middleware.NewSourceMiddleware(a.Name()))
	bus.Use(middleware.NewLoggingMiddleware(nil))
	bus.Use(middleware.NewObserverMiddleware(a.collector))

	if err := bus.Subscribe(ctx, webhook.MessageTypeOrderIngested, ingestedLogger()); err != nil {
		_ = bus.Close()
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "subscribe order.ingested")
	}
	a.health.Register("events", func(ctx context.Context) error {
		if !bus.Stats().Running {
			return errors.NewError(errors.ErrCodeServiceUnavailable, "event transport not running")
		}
		return nil
	})
	return bus, nil
}

// ingestedLogger 记录每条入站完成消息，供下游联调时确认投递
func ingestedLogger() messaging.IMessageHandler {
	logger := logging.ComponentLogger("events.order_ingested")
	return messaging.NewHandler("order-ingested-log", func(ctx context.Context, message messaging.IMessage) error {
		var payload webhook.Ingested
		if err := messaging.DecodePayload(message, &payload); err != nil {
			return err
		}
		logger.Info(ctx, "order ingested",
			logging.String("external_id", payload.ExternalID),
			logging.String("order_id", payload.OrderID),
			logging.Int("product_count", payload.ProductCount))
		return nil
	})
}

func (a *Application) buildHTTP() *hbasic.HttpServer {
	h := a.cfg.HTTP
	srv := hbasic.NewHTTPServer(&httpx.WebConfig{
		Host:         h.Host,
		Port:         h.Port,
		ReadTimeout:  h.ReadTimeout,
		WriteTimeout: h.WriteTimeout,
		IdleTimeout:  h.IdleTimeout,
		MaxBodyBytes: h.MaxBodyBytes,
	})
	httpLogger := logging.ComponentLogger("http")
	srv.Use(
		hbasic.RequestID(),
		hbasic.AccessLog(httpLogger, a.collector),
		hbasic.Recover(httpLogger),
	)

	s := a.services
	api.Register(srv,
		api.NewWebhookRoutes(s.Webhook),
		api.NewDashboardRoutes(s.Dashboard),
		api.NewClientRoutes(s.Clients, s.Orders),
		api.NewProductRoutes(s.Products),
		api.NewOrderRoutes(s.Orders),
		api.NewHealthRoutes(a.health),
	)
	srv.Mount("/metrics", monitoring.Handler(monitoring.NewRegistry(a.collector)))
	return srv
}

// StartBackgroundTasks 启动事件传输，按需后台播种
func (a *Application) StartBackgroundTasks(ctx context.Context) error {
	if a.bus != nil {
		if err := a.bus.Start(ctx); err != nil {
			return errors.WrapError(err, errors.ErrCodeQueue, "start event transport")
		}
	}
	if a.opts.Seed {
		go func() {
			if _, err := a.Seed(ctx, a.seedCount()); err != nil && !stdErrors.Is(err, context.Canceled) {
				a.logger.Error(ctx, "seeding aborted", logging.Error(err))
			}
		}()
	}
	return nil
}

func (a *Application) seedCount() int {
	if a.opts.SeedCount > 0 {
		return a.opts.SeedCount
	}
	return a.cfg.Seed.Count
}

// Seed 通过 webhook 流水线写入演示订单
func (a *Application) Seed(ctx context.Context, count int) (seed.Report, error) {
	if a.services == nil {
		return seed.Report{}, errors.NewError(errors.ErrCodeInternal, "dependencies not set up")
	}
	value := a.opts.SeedValue
	if value == 0 {
		value = uint64(time.Now().UnixNano())
	}
	return seed.New(a.services.Webhook, count, value).Run(ctx)
}

// Run 阻塞运行 HTTP 服务；ctx 取消时由 Shutdown 停止
func (a *Application) Run(ctx context.Context) error {
	addr := a.cfg.HTTP.Addr()
	a.logger.Info(ctx, "http listening", logging.String("addr", addr))
	if err := a.http.Start(addr); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 依次停止 HTTP、事件总线与数据库
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}
