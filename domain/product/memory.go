package product

import (
	"context"
	"sync"

	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// MemoryRepository 进程内 Product 仓储
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Product
	byExternal map[string]string
	order      []string
	now        entity.Clock
}

// NewMemoryRepository 创建内存仓储，clock 为 nil 时使用系统时钟
func NewMemoryRepository(clock entity.Clock) *MemoryRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &MemoryRepository{
		byID:       make(map[string]*Product),
		byExternal: make(map[string]string),
		now:        clock,
	}
}

// Create 写入 Product，externalId 已存在时返回 ErrEntityAlreadyExists
func (r *MemoryRepository) Create(ctx context.Context, p *Product) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byExternal[p.ExternalID]; taken {
		return nil, repository.AlreadyExists(p.ExternalID, nil)
	}
	stored := p.clone()
	stored.Init(r.now())
	r.byID[stored.ID] = stored
	r.byExternal[stored.ExternalID] = stored.ID
	r.order = append(r.order, stored.ID)
	return stored.clone(), nil
}

// FindAll 按插入顺序返回全部 Product
func (r *MemoryRepository) FindAll(ctx context.Context) ([]*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Product, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out, nil
}

// FindByID 按 ID 查找，不存在时返回 ErrEntityNotFound
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	return p.clone(), nil
}

// FindByExternalID 按自然键查找
func (r *MemoryRepository) FindByExternalID(ctx context.Context, externalID string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, repository.NotFound(externalID)
	}
	return r.byID[id].clone(), nil
}

// Update 合并补丁并刷新 updatedAt
func (r *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	if patch.ExternalID != nil && *patch.ExternalID != p.ExternalID {
		if _, taken := r.byExternal[*patch.ExternalID]; taken {
			return nil, repository.AlreadyExists(*patch.ExternalID, nil)
		}
		delete(r.byExternal, p.ExternalID)
		r.byExternal[*patch.ExternalID] = id
	}
	patch.apply(p)
	p.Touch(r.now())
	return p.clone(), nil
}

// Delete 删除 Product，返回是否存在
func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byExternal, p.ExternalID)
	r.order = removeID(r.order, id)
	return true, nil
}

// Count 返回 Product 数
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// MemoryCostRepository 进程内 ProductCost 仓储
type MemoryCostRepository struct {
	mu    sync.RWMutex
	byID  map[string]*ProductCost
	order []string
	now   entity.Clock
}

// NewMemoryCostRepository 创建内存成本仓储
func NewMemoryCostRepository(clock entity.Clock) *MemoryCostRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &MemoryCostRepository{byID: make(map[string]*ProductCost), now: clock}
}

// Create 写入成本记录
func (r *MemoryCostRepository) Create(ctx context.Context, c *ProductCost) (*ProductCost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := c.clone()
	stored.Init(r.now())
	r.byID[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	return stored.clone(), nil
}

// FindAll 按插入顺序返回全部成本记录
func (r *MemoryCostRepository) FindAll(ctx context.Context) ([]*ProductCost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProductCost, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out, nil
}

// FindByID 按 ID 查找成本记录
func (r *MemoryCostRepository) FindByID(ctx context.Context, id string) (*ProductCost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	return c.clone(), nil
}

// Update 改写金额并刷新 updatedAt
func (r *MemoryCostRepository) Update(ctx context.Context, id string, cost float64) (*ProductCost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	c.Cost = cost
	c.Touch(r.now())
	return c.clone(), nil
}

// Delete 删除成本记录，返回是否存在
func (r *MemoryCostRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false, nil
	}
	delete(r.byID, id)
	r.order = removeID(r.order, id)
	return true, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
