package api

import (
	"fmt"
	"net/http"

	"orderdesk/domain/order"
	httpx "orderdesk/http"
	"orderdesk/validation"
)

type createOrderRequest struct {
	order.CreateInput
}

func (r *createOrderRequest) Validate() error {
	errs := []error{
		validation.ValidateRequired(r.ExternalID, "externalId"),
		validation.ValidateRequired(r.ClientID, "clientId"),
	}
	for i, item := range r.Items {
		field := fmt.Sprintf("items.%d.", i)
		errs = append(errs,
			validation.ValidateRequired(item.ProductID, field+"productId"),
			validation.ValidateRequired(item.ExternalID, field+"externalId"),
			validation.ValidatePositive(item.Price, field+"price"),
		)
	}
	return validation.Collect(errs...)
}

type updateOrderRequest struct {
	order.Patch
}

func (r *updateOrderRequest) Validate() error {
	return validation.Collect(
		optionalNonEmpty(r.ExternalID, "externalId"),
		optionalNonEmpty(r.ClientID, "clientId"),
	)
}

// OrderRoutes /order 资源
type OrderRoutes struct {
	orders *order.Service
}

// NewOrderRoutes 创建 Order 路由
func NewOrderRoutes(orders *order.Service) *OrderRoutes {
	return &OrderRoutes{orders: orders}
}

func (r *OrderRoutes) GetName() string { return "order" }

func (r *OrderRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	g := group.Group("/order")
	g.POST("", r.create)
	g.GET("", r.list)
	g.GET("/with-items", r.listWithItems)
	g.GET("/:id", r.get)
	g.GET("/:id/items", r.getWithItems)
	g.PATCH("/:id", r.update)
	g.DELETE("/:id", r.remove)
}

func (r *OrderRoutes) create(ctx httpx.IHttpContext) error {
	var req createOrderRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	o, err := r.orders.Create(ctx.Context(), req.CreateInput)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (r *OrderRoutes) list(ctx httpx.IHttpContext) error {
	orders, err := r.orders.FindAll(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (r *OrderRoutes) listWithItems(ctx httpx.IHttpContext) error {
	orders, err := r.orders.FindAllWithItems(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (r *OrderRoutes) get(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	o, err := r.orders.FindOne(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, o)
}

func (r *OrderRoutes) getWithItems(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	o, err := r.orders.FindOneWithItems(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, o)
}

func (r *OrderRoutes) update(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	var req updateOrderRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	o, err := r.orders.Update(ctx.Context(), id, req.Patch)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, o)
}

func (r *OrderRoutes) remove(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	if err := r.orders.Remove(ctx.Context(), id); err != nil {
		return err
	}
	return deleted(ctx, "Order")
}
