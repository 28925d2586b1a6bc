package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CheckFunc 单项健康检查
type CheckFunc func(ctx context.Context) error

// Health 汇总各项依赖的健康状态
type Health struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	started time.Time
}

// HealthReport 健康检查结果
type HealthReport struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthy 是否全部检查通过
func (r HealthReport) Healthy() bool { return r.Status == "ok" }

// NewHealth 创建健康检查汇总
func NewHealth() *Health {
	return &Health{checks: make(map[string]CheckFunc), started: time.Now()}
}

// Register 注册检查项，同名覆盖
func (h *Health) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check 依次执行检查项，任一失败时状态为 degraded
func (h *Health) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
		Checks: make(map[string]string, len(names)),
	}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			report.Status = "degraded"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}
