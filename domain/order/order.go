// Package order 管理订单（Order）及其明细（Item）
//
// Order 以 externalId 为自然键。明细没有独立标识，归属于订单，
// 每次写入都整体替换，不做增量修补。
package order

import (
	"context"

	"orderdesk/domain/entity"
)

// Order 订单
type Order struct {
	entity.Base
	ExternalID string `json:"externalId"`
	ClientID   string `json:"clientId"`
}

func (o *Order) clone() *Order {
	cp := *o
	return &cp
}

// WithItems 订单及其明细；没有明细时 Items 序列化为 []
type WithItems struct {
	*Order
	Items []Item `json:"items"`
}

func withItems(o *Order, items []Item) *WithItems {
	if items == nil {
		items = []Item{}
	}
	return &WithItems{Order: o, Items: items}
}

// Item 订单明细
type Item struct {
	ProductID  string  `json:"productId"`
	ExternalID string  `json:"externalId"`
	OrderID    string  `json:"orderId"`
	Price      float64 `json:"price"`
}

// ItemInput 写入明细的输入，OrderID 由仓储填充
type ItemInput struct {
	ProductID  string  `json:"productId"`
	ExternalID string  `json:"externalId"`
	Price      float64 `json:"price"`
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func bindItems(orderID string, in []ItemInput) []Item {
	out := make([]Item, 0, len(in))
	for _, it := range in {
		out = append(out, Item{
			ProductID:  it.ProductID,
			ExternalID: it.ExternalID,
			OrderID:    orderID,
			Price:      it.Price,
		})
	}
	return out
}

// Patch 部分更新字段
type Patch struct {
	ExternalID *string `json:"externalId,omitempty"`
	ClientID   *string `json:"clientId,omitempty"`
}

func (p Patch) apply(o *Order) {
	if p.ExternalID != nil {
		o.ExternalID = *p.ExternalID
	}
	if p.ClientID != nil {
		o.ClientID = *p.ClientID
	}
}

// Repository Order 仓储
//
// Create 同时写入传入的明细；Delete 级联删除明细；
// ReplaceItems 在一个不可分割的单元内先删后插；
// Reconcile 在同一单元内改写 clientId 并替换明细。
type Repository interface {
	Create(ctx context.Context, externalID, clientID string, items []ItemInput) (*WithItems, error)
	FindAll(ctx context.Context) ([]*Order, error)
	FindAllWithItems(ctx context.Context) ([]*WithItems, error)
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIDWithItems(ctx context.Context, id string) (*WithItems, error)
	FindByExternalID(ctx context.Context, externalID string) (*Order, error)
	FindByClientID(ctx context.Context, clientID string) ([]*Order, error)
	Update(ctx context.Context, id string, patch Patch) (*Order, error)
	ReplaceItems(ctx context.Context, orderID string, items []ItemInput) ([]Item, error)
	Reconcile(ctx context.Context, orderID, clientID string, items []ItemInput) (*WithItems, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}
