package api

import (
	"net/http"

	"orderdesk/app/dashboard"
	"orderdesk/app/webhook"
	httpx "orderdesk/http"
	"orderdesk/monitoring"
)

// WebhookRoutes POST /webhooks/external-order
type WebhookRoutes struct {
	svc *webhook.Service
}

// NewWebhookRoutes 创建 webhook 路由
func NewWebhookRoutes(svc *webhook.Service) *WebhookRoutes {
	return &WebhookRoutes{svc: svc}
}

func (r *WebhookRoutes) GetName() string { return "webhook" }

func (r *WebhookRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	group.Group("/webhooks").POST("/external-order", r.externalOrder)
}

// externalOrder 成功时返回 200 而不是 201
func (r *WebhookRoutes) externalOrder(ctx httpx.IHttpContext) error {
	var event webhook.Event
	if err := bind(ctx, &event); err != nil {
		return err
	}
	res, err := r.svc.Process(ctx.Context(), &event)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// DashboardRoutes GET /dashboard
type DashboardRoutes struct {
	svc *dashboard.Service
}

// NewDashboardRoutes 创建看板路由
func NewDashboardRoutes(svc *dashboard.Service) *DashboardRoutes {
	return &DashboardRoutes{svc: svc}
}

func (r *DashboardRoutes) GetName() string { return "dashboard" }

func (r *DashboardRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	group.GET("/dashboard", r.get)
}

func (r *DashboardRoutes) get(ctx httpx.IHttpContext) error {
	resp, err := r.svc.Get(ctx.Context(), dashboard.Query{
		StartDate: ctx.GetQuery("startDate"),
		EndDate:   ctx.GetQuery("endDate"),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

// HealthRoutes GET /healthz，任一检查失败时返回 503
type HealthRoutes struct {
	health *monitoring.Health
}

// NewHealthRoutes 创建健康检查路由
func NewHealthRoutes(health *monitoring.Health) *HealthRoutes {
	return &HealthRoutes{health: health}
}

func (r *HealthRoutes) GetName() string { return "health" }

func (r *HealthRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	group.GET("/healthz", r.get)
}

func (r *HealthRoutes) get(ctx httpx.IHttpContext) error {
	report := r.health.Check(ctx.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, report)
}
