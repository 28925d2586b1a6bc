package order

import (
	"context"
	"sync"

	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// MemoryRepository 进程内 Order 仓储，订单与明细共用一把锁
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Order
	byExternal map[string]string
	items      map[string][]Item
	order      []string
	now        entity.Clock
}

// NewMemoryRepository 创建内存仓储
func NewMemoryRepository(clock entity.Clock) *MemoryRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &MemoryRepository{
		byID:       make(map[string]*Order),
		byExternal: make(map[string]string),
		items:      make(map[string][]Item),
		now:        clock,
	}
}

// Create 写入订单与明细，externalId 已存在时返回 ErrEntityAlreadyExists
func (r *MemoryRepository) Create(ctx context.Context, externalID, clientID string, items []ItemInput) (*WithItems, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byExternal[externalID]; taken {
		return nil, repository.AlreadyExists(externalID, nil)
	}
	o := &Order{ExternalID: externalID, ClientID: clientID}
	o.Init(r.now())
	r.byID[o.ID] = o
	r.byExternal[externalID] = o.ID
	r.order = append(r.order, o.ID)
	if len(items) > 0 {
		r.items[o.ID] = bindItems(o.ID, items)
	}
	return withItems(o.clone(), r.itemsOf(o.ID)), nil
}

// FindAll 按插入顺序返回全部订单
func (r *MemoryRepository) FindAll(ctx context.Context) ([]*Order, error) {
	return r.list(func(*Order) bool { return true }), nil
}

// FindAllWithItems 按插入顺序返回全部订单及明细
func (r *MemoryRepository) FindAllWithItems(ctx context.Context) ([]*WithItems, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*WithItems, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, withItems(r.byID[id].clone(), r.itemsOf(id)))
	}
	return out, nil
}

// FindByClientID 按插入顺序返回某买家的订单
func (r *MemoryRepository) FindByClientID(ctx context.Context, clientID string) ([]*Order, error) {
	return r.list(func(o *Order) bool { return o.ClientID == clientID }), nil
}

func (r *MemoryRepository) list(keep func(*Order) bool) []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Order, 0, len(r.order))
	for _, id := range r.order {
		if o := r.byID[id]; keep(o) {
			out = append(out, o.clone())
		}
	}
	return out
}

// itemsOf 返回明细副本；无明细时返回空切片而非 nil
func (r *MemoryRepository) itemsOf(orderID string) []Item {
	items := cloneItems(r.items[orderID])
	if items == nil {
		items = []Item{}
	}
	return items
}

// FindByID 按 ID 查找，不存在时返回 ErrEntityNotFound
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	return o.clone(), nil
}

// FindByIDWithItems 按 ID 查找订单及明细
func (r *MemoryRepository) FindByIDWithItems(ctx context.Context, id string) (*WithItems, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	return withItems(o.clone(), r.itemsOf(id)), nil
}

// FindByExternalID 按自然键查找
func (r *MemoryRepository) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, repository.NotFound(externalID)
	}
	return r.byID[id].clone(), nil
}

// Update 合并非空字段并刷新 updatedAt
func (r *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	if patch.ExternalID != nil && *patch.ExternalID != o.ExternalID {
		if _, taken := r.byExternal[*patch.ExternalID]; taken {
			return nil, repository.AlreadyExists(*patch.ExternalID, nil)
		}
		delete(r.byExternal, o.ExternalID)
		r.byExternal[*patch.ExternalID] = id
	}
	patch.apply(o)
	o.Touch(r.now())
	return o.clone(), nil
}

// ReplaceItems 整体替换明细并刷新订单 updatedAt
func (r *MemoryRepository) ReplaceItems(ctx context.Context, orderID string, items []ItemInput) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[orderID]
	if !ok {
		return nil, repository.NotFound(orderID)
	}
	r.replaceLocked(o, items)
	return r.itemsOf(orderID), nil
}

// Reconcile 在同一把锁内改写 clientId 并替换明细
func (r *MemoryRepository) Reconcile(ctx context.Context, orderID, clientID string, items []ItemInput) (*WithItems, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[orderID]
	if !ok {
		return nil, repository.NotFound(orderID)
	}
	o.ClientID = clientID
	r.replaceLocked(o, items)
	return withItems(o.clone(), r.itemsOf(orderID)), nil
}

func (r *MemoryRepository) replaceLocked(o *Order, items []ItemInput) {
	r.items[o.ID] = bindItems(o.ID, items)
	o.Touch(r.now())
}

// Delete 删除订单并级联删除明细，返回是否存在
func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byExternal, o.ExternalID)
	delete(r.items, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count 返回订单数
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
