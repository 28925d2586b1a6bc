package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"orderdesk/domain/product"
	"orderdesk/errors"
	httpx "orderdesk/http"
	"orderdesk/validation"
)

type createProductRequest struct {
	product.CreateInput
}

func (r *createProductRequest) Validate() error {
	return validation.Collect(
		validation.ValidateRequired(r.ExternalID, "externalId"),
		validation.ValidateRequired(r.Name, "name"),
		optionalNonEmpty(r.ProductCostID, "productCostId"),
	)
}

// updateProductRequest productCostId 显式为 null 时解除成本关联
type updateProductRequest struct {
	ExternalID    *string         `json:"externalId"`
	Name          *string         `json:"name"`
	ProductCostID json.RawMessage `json:"productCostId"`

	patch product.Patch
}

func (r *updateProductRequest) Validate() error {
	r.patch = product.Patch{ExternalID: r.ExternalID, Name: r.Name}
	var costErr error
	switch {
	case len(r.ProductCostID) == 0:
	case bytes.Equal(bytes.TrimSpace(r.ProductCostID), []byte("null")):
		r.patch.ClearProductCost = true
	default:
		var id string
		if err := json.Unmarshal(r.ProductCostID, &id); err != nil {
			costErr = errors.NewError(errors.ErrCodeValidation, "productCostId must be a string")
		} else {
			costErr = validation.ValidateRequired(id, "productCostId")
			r.patch.ProductCostID = &id
		}
	}
	return validation.Collect(
		optionalNonEmpty(r.ExternalID, "externalId"),
		optionalNonEmpty(r.Name, "name"),
		costErr,
	)
}

type costRequest struct {
	Cost float64 `json:"cost"`
}

func (r *costRequest) Validate() error {
	return validation.ValidatePositive(r.Cost, "cost")
}

// ProductRoutes /product 与 /product/cost 资源
type ProductRoutes struct {
	products *product.Service
}

// NewProductRoutes 创建 Product 路由
func NewProductRoutes(products *product.Service) *ProductRoutes {
	return &ProductRoutes{products: products}
}

func (r *ProductRoutes) GetName() string { return "product" }

func (r *ProductRoutes) RegisterRoutes(group httpx.IRouteGroup) {
	g := group.Group("/product")
	g.POST("", r.create)
	g.GET("", r.list)
	g.GET("/with-cost", r.listWithCost)
	g.GET("/:id", r.get)
	g.PATCH("/:id", r.update)
	g.DELETE("/:id", r.remove)

	costs := g.Group("/cost")
	costs.POST("", r.createCost)
	costs.GET("/all", r.listCosts)
	costs.GET("/:id", r.getCost)
	costs.PATCH("/:id", r.updateCost)
	costs.DELETE("/:id", r.removeCost)
}

func (r *ProductRoutes) create(ctx httpx.IHttpContext) error {
	var req createProductRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	p, err := r.products.Create(ctx.Context(), req.CreateInput)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (r *ProductRoutes) list(ctx httpx.IHttpContext) error {
	products, err := r.products.FindAll(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, products)
}

func (r *ProductRoutes) listWithCost(ctx httpx.IHttpContext) error {
	products, err := r.products.FindAllWithCost(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, products)
}

func (r *ProductRoutes) get(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	p, err := r.products.FindOne(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (r *ProductRoutes) update(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	var req updateProductRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	p, err := r.products.Update(ctx.Context(), id, req.patch)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (r *ProductRoutes) remove(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	if err := r.products.Remove(ctx.Context(), id); err != nil {
		return err
	}
	return deleted(ctx, "Product")
}

func (r *ProductRoutes) createCost(ctx httpx.IHttpContext) error {
	var req costRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	c, err := r.products.CreateCost(ctx.Context(), req.Cost)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (r *ProductRoutes) listCosts(ctx httpx.IHttpContext) error {
	costs, err := r.products.FindAllCosts(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, costs)
}

func (r *ProductRoutes) getCost(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	c, err := r.products.FindCost(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (r *ProductRoutes) updateCost(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	var req costRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	c, err := r.products.UpdateCost(ctx.Context(), id, req.Cost)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (r *ProductRoutes) removeCost(ctx httpx.IHttpContext) error {
	id, err := utils.ParseID(ctx, "id")
	if err != nil {
		return err
	}
	if err := r.products.DeleteCost(ctx.Context(), id); err != nil {
		return err
	}
	return deleted(ctx, "Product cost")
}
