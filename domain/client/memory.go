package client

import (
	"context"
	"sync"

	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// MemoryRepository 进程内 Client 仓储，读写由 RWMutex 保护
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Client
	byEmail map[string]string
	order   []string
	now     entity.Clock
}

// NewMemoryRepository 创建内存仓储，clock 为 nil 时使用系统时钟
func NewMemoryRepository(clock entity.Clock) *MemoryRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &MemoryRepository{
		byID:    make(map[string]*Client),
		byEmail: make(map[string]string),
		now:     clock,
	}
}

// Create 写入 Client，邮箱已存在时返回 ErrEntityAlreadyExists
func (r *MemoryRepository) Create(ctx context.Context, c *Client) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[c.Email]; taken {
		return nil, repository.AlreadyExists(c.Email, nil)
	}
	stored := c.clone()
	stored.Init(r.now())
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	r.order = append(r.order, stored.ID)
	return stored.clone(), nil
}

// FindAll 按插入顺序返回全部 Client
func (r *MemoryRepository) FindAll(ctx context.Context) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out, nil
}

// FindByID 按 ID 查找，不存在时返回 ErrEntityNotFound
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	return c.clone(), nil
}

// FindByEmail 按邮箱查找
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, repository.NotFound(email)
	}
	return r.byID[id].clone(), nil
}

// Update 合并非空字段并刷新 updatedAt
func (r *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, repository.NotFound(id)
	}
	if patch.Email != nil && *patch.Email != c.Email {
		if _, taken := r.byEmail[*patch.Email]; taken {
			return nil, repository.AlreadyExists(*patch.Email, nil)
		}
		delete(r.byEmail, c.Email)
		r.byEmail[*patch.Email] = id
	}
	patch.apply(c)
	c.Touch(r.now())
	return c.clone(), nil
}

// Delete 删除 Client，返回是否存在
func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byEmail, c.Email)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count 返回 Client 数
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
