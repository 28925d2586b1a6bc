// Package dashboard 汇总一段时间内的订单量、收入、成本与利润
package dashboard

import (
	"context"
	"time"

	"orderdesk/cache"
	"orderdesk/domain/entity"
	"orderdesk/domain/order"
	"orderdesk/domain/product"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/validation"
)

const (
	dayLayout = "2006-01-02"
	// DefaultMaxRangeDays 未配置时时间序列最多覆盖的天数
	DefaultMaxRangeDays = 3660
)

// OrderSource 看板读取订单所需的接口，order.Service 满足它
type OrderSource interface {
	FindAllWithItems(ctx context.Context) ([]*order.WithItems, error)
}

// ProductSource 看板读取产品与成本所需的接口，product.Service 满足它
type ProductSource interface {
	FindAll(ctx context.Context) ([]*product.Product, error)
	FindCost(ctx context.Context, id string) (*product.ProductCost, error)
}

// Query 看板查询参数，均为可选的 ISO-8601 字符串
type Query struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// TimeSeriesPoint 某一天的订单数
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Period 实际统计区间（UTC 日期）
type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Response 看板数据
type Response struct {
	TotalOrders     int               `json:"totalOrders"`
	TotalRevenue    float64           `json:"totalRevenue"`
	TotalCost       float64           `json:"totalCost"`
	Profit          float64           `json:"profit"`
	OrderTimeSeries []TimeSeriesPoint `json:"orderTimeSeries"`
	Period          Period            `json:"period"`
}

// Config 看板配置
type Config struct {
	// CostCacheTTL 成本缓存有效期，0 表示不过期
	CostCacheTTL time.Duration
	// CostCacheSize 成本缓存容量，0 表示不限
	CostCacheSize int
	// MaxRangeDays 单次查询最多覆盖的天数，<=0 时取 DefaultMaxRangeDays
	MaxRangeDays int
	Clock        entity.Clock
}

// Service 看板聚合服务
type Service struct {
	orders   OrderSource
	products ProductSource
	costs    *cache.Cache[string, float64]
	maxDays  int
	now      entity.Clock
	logger   logging.Logger
}

// NewService 创建看板服务
func NewService(orders OrderSource, products ProductSource, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = entity.SystemClock
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	return &Service{
		orders:   orders,
		products: products,
		costs: cache.New[string, float64](cache.Config{
			Name:    "product-cost",
			MaxSize: cfg.CostCacheSize,
			TTL:     cfg.CostCacheTTL,
			Now:     cfg.Clock,
		}),
		maxDays: cfg.MaxRangeDays,
		now:     cfg.Clock,
		logger:  logging.ComponentLogger("dashboard.service"),
	}
}

// InvalidateCost 成本被修改或删除后调用，使缓存的金额失效
func (s *Service) InvalidateCost(id string) {
	s.costs.Delete(id)
}

// CostCacheStats 返回成本缓存统计
func (s *Service) CostCacheStats() cache.Stats {
	return s.costs.Stats()
}

// Get 计算看板数据
//
// 区间两端都包含在内；只有日期部分的 endDate 视为当天结束。
// 订单按 createdAt 的 UTC 日期分桶，没有订单的日期计 0。
func (s *Service) Get(ctx context.Context, q Query) (*Response, error) {
	start, end, err := s.resolveRange(q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "calculating dashboard",
		logging.String("start", start.Format(time.RFC3339)),
		logging.String("end", end.Format(time.RFC3339)))

	orders, err := s.orders.FindAllWithItems(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.products.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	costLinks := make(map[string]string, len(products))
	for _, p := range products {
		if p.ProductCostID != nil {
			costLinks[p.ID] = *p.ProductCostID
		}
	}

	series, index, err := buckets(start, end, s.maxDays)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		OrderTimeSeries: series,
		Period:          Period{StartDate: start.Format(dayLayout), EndDate: end.Format(dayLayout)},
	}
	for _, o := range orders {
		created := o.CreatedAt.UTC()
		if created.Before(start) || created.After(end) {
			continue
		}
		resp.TotalOrders++
		if i, ok := index[created.Format(dayLayout)]; ok {
			resp.OrderTimeSeries[i].Count++
		}
		for _, item := range o.Items {
			resp.TotalRevenue += item.Price
			costID, ok := costLinks[item.ProductID]
			if !ok {
				continue
			}
			cost, err := s.costOf(ctx, costID)
			if err != nil {
				return nil, err
			}
			resp.TotalCost += cost
		}
	}
	resp.Profit = resp.TotalRevenue - resp.TotalCost
	return resp, nil
}

// costOf 查找成本金额；被删除的成本按 0 计
func (s *Service) costOf(ctx context.Context, id string) (float64, error) {
	return s.costs.GetOrLoad(id, func() (float64, error) {
		c, err := s.products.FindCost(ctx, id)
		if errors.IsNotFound(err) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return c.Cost, nil
	})
}

func (s *Service) resolveRange(q Query) (time.Time, time.Time, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	end := now

	var errs []error
	if q.StartDate != "" {
		t, _, err := validation.ParseISODate(q.StartDate)
		if err != nil {
			errs = append(errs, validation.ValidateISODate(q.StartDate, "startDate"))
		} else {
			start = t
		}
	}
	if q.EndDate != "" {
		t, dateOnly, err := validation.ParseISODate(q.EndDate)
		if err != nil {
			errs = append(errs, validation.ValidateISODate(q.EndDate, "endDate"))
		} else {
			end = t
			if dateOnly {
				end = t.Add(24*time.Hour - time.Nanosecond)
			}
		}
	}
	if err := validation.Collect(errs...); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// buckets 生成 [start, end] 覆盖的每个 UTC 日期，升序排列
func buckets(start, end time.Time, maxDays int) ([]TimeSeriesPoint, map[string]int, error) {
	first := truncateDay(start)
	last := truncateDay(end)
	if last.Before(first) {
		return []TimeSeriesPoint{}, map[string]int{}, nil
	}
	days := int(last.Sub(first).Hours()/24) + 1
	if days > maxDays {
		return nil, nil, errors.Errorf(errors.ErrCodeValidation,
			"date range must not exceed %d days", maxDays)
	}

	series := make([]TimeSeriesPoint, 0, days)
	index := make(map[string]int, days)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		index[key] = len(series)
		series = append(series, TimeSeriesPoint{Date: key})
	}
	return series, index, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
