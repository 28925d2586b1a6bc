package api

import (
	"net/http"

	"orderdesk/domain/client"
	"orderdesk/domain/order"
	httpx "orderdesk/http"
	"orderdesk/validation"
)

type createClientRequest struct {
	client.CreateInput
}

func (r *createClientRequest) Validate() error {
	return validation.Collect(
		validation.ValidateRequired(r.Name, "name"),
		validation.ValidateEmail(r.Email, "email"),
	)
}

type updateClientRequest struct {
	client.Patch
}

func (r *updateClientRequest) Validate() error {
	var emailErr error
	if r.Email != nil {
		emailErr = validation.ValidateEmail(*r.Email, "email")
	}
	return validation.Collect(optionalNonEmpty(r.Name, "name"), emailErr)
}

// ClientRoutes /client 资源
type ClientRoutes struct {
	clients *client.Service
	orders  *order.Service
}

// NewClientRoutes 创建 Client 路由
func NewClientRoutes(clients *client.Service, orders *order.Service) *ClientRoutes {
	return &ClientRoutes{clients: clients, orders: orders}
}

func (r *ClientRoutes) GetName() string { return "client" }

func (r *ClientRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	g := group.Group("/client")
	g.POST("", r.create)
	g.GET("", r.list)
	g.GET("/:id", r.get)
	g.GET("/:id/orders", r.listOrders)
	g.PATCH("/:id", r.update)
	g.DELETE("/:id", r.remove)
}

func (r *ClientRoutes) create(ctx httpx.IHttpContext) error {
	var req createClientRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	c, err := r.clients.Create(ctx.Context(), req.CreateInput)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (r *ClientRoutes) list(ctx httpx.IHttpContext) error {
	clients, err := r.clients.FindAll(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, clients)
}

func (r *ClientRoutes) get(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	c, err := r.clients.FindOne(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

// listOrders 某个买家的订单，买家不存在时 404
func (r *ClientRoutes) listOrders(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	orders, err := r.orders.FindByClientID(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (r *ClientRoutes) update(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	var req updateClientRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	c, err := r.clients.Update(ctx.Context(), id, req.Patch)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (r *ClientRoutes) remove(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	if err := r.clients.Remove(ctx.Context(), id); err != nil {
		return err
	}
	return deleted(ctx, "Client")
}
