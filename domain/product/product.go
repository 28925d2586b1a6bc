// Package product 管理商品（Product）与成本（ProductCost）
//
// Product 以 externalId 为自然键；ProductCost 没有自然键，通过 productCostId 弱引用挂到 Product 上，
// 两者生命周期独立，删除任一方都不会级联或置空另一方。
package product

import (
	"context"

	"orderdesk/domain/entity"
)

// Product 商品
type Product struct {
	entity.Base
	ExternalID    string  `json:"externalId"`
	Name          string  `json:"name"`
	ProductCostID *string `json:"productCostId"`
}

func (p *Product) clone() *Product {
	cp := *p
	if p.ProductCostID != nil {
		id := *p.ProductCostID
		cp.ProductCostID = &id
	}
	return &cp
}

// ProductCost 商品成本
type ProductCost struct {
	entity.Base
	Cost float64 `json:"cost"`
}

func (c *ProductCost) clone() *ProductCost {
	cp := *c
	return &cp
}

// WithCost 商品及其已解析的成本；成本缺失或悬空时 ProductCost 为 nil
type WithCost struct {
	*Product
	ProductCost *ProductCost `json:"productCost"`
}

// Patch 部分更新字段
//
// ProductCostID 非 nil 时写入；ClearProductCost 为 true 时解除关联。
type Patch struct {
	ExternalID       *string `json:"externalId,omitempty"`
	Name             *string `json:"name,omitempty"`
	ProductCostID    *string `json:"productCostId,omitempty"`
	ClearProductCost bool    `json:"-"`
}

func (p Patch) apply(target *Product) {
	if p.ExternalID != nil {
		target.ExternalID = *p.ExternalID
	}
	if p.Name != nil {
		target.Name = *p.Name
	}
	switch {
	case p.ClearProductCost:
		target.ProductCostID = nil
	case p.ProductCostID != nil:
		id := *p.ProductCostID
		target.ProductCostID = &id
	}
}

// Repository Product 仓储
type Repository interface {
	Create(ctx context.Context, p *Product) (*Product, error)
	FindAll(ctx context.Context) ([]*Product, error)
	FindByID(ctx context.Context, id string) (*Product, error)
	FindByExternalID(ctx context.Context, externalID string) (*Product, error)
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// CostRepository ProductCost 仓储
type CostRepository interface {
	Create(ctx context.Context, c *ProductCost) (*ProductCost, error)
	FindAll(ctx context.Context) ([]*ProductCost, error)
	FindByID(ctx context.Context, id string) (*ProductCost, error)
	Update(ctx context.Context, id string, cost float64) (*ProductCost, error)
	Delete(ctx context.Context, id string) (bool, error)
}
