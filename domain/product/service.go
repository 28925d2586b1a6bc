package product

import (
	"context"
	stdErrors "errors"
	"sync"

	"orderdesk/domain/repository"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/patterns/keylock"
)

// CreateInput 创建 Product 的输入
type CreateInput struct {
	ExternalID    string  `json:"externalId"`
	Name          string  `json:"name"`
	ProductCostID *string `json:"productCostId,omitempty"`
}

// UpsertInput 按 externalId 幂等写入的输入
//
// ProductCostID 为 nil 时保留已有关联。
type UpsertInput struct {
	ExternalID    string
	Name          string
	ProductCostID *string
}

// Service Product 与 ProductCost 领域服务
type Service struct {
	repo   Repository
	costs  CostRepository
	locks  *keylock.KeyLock
	logger logging.Logger

	observersMu sync.RWMutex
	observers   []CostObserver
}

// CostObserver 成本金额被修改或成本记录被删除后收到其 ID
type CostObserver func(id string)

// NewService 创建 Product 服务
func NewService(repo Repository, costs CostRepository) *Service {
	return &Service{
		repo:   repo,
		costs:  costs,
		locks:  keylock.New(),
		logger: logging.ComponentLogger("product.service"),
	}
}

// Create 创建 Product，externalId 已存在时返回冲突错误
func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	var created *Product
	err := s.locks.Do(ctx, in.ExternalID, func() error {
		if _, err := s.repo.FindByExternalID(ctx, in.ExternalID); err == nil {
			return conflict(in.ExternalID)
		} else if !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find product by external id")
		}

		p, err := s.repo.Create(ctx, &Product{
			ExternalID:    in.ExternalID,
			Name:          in.Name,
			ProductCostID: in.ProductCostID,
		})
		if err != nil {
			return s.translate(ctx, err, "", in.ExternalID, "create product")
		}
		created = p
		return nil
	})
	return created, err
}

// FindAll 按插入顺序返回全部 Product
func (s *Service) FindAll(ctx context.Context) ([]*Product, error) {
	products, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list products")
	}
	return products, nil
}

// FindAllWithCost 返回全部 Product 并解析关联成本；悬空引用解析为 nil
func (s *Service) FindAllWithCost(ctx context.Context) ([]*WithCost, error) {
	products, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*WithCost, 0, len(products))
	for _, p := range products {
		item := &WithCost{Product: p}
		if p.ProductCostID != nil {
			c, err := s.costs.FindByID(ctx, *p.ProductCostID)
			switch {
			case err == nil:
				item.ProductCost = c
			case !stdErrors.Is(err, repository.ErrEntityNotFound):
				return nil, errors.WrapDatabaseError(ctx, err, "find product cost")
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// FindOne 按 ID 查询
func (s *Service) FindOne(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, err, id, "", "find product")
	}
	return p, nil
}

// Update 部分更新；修改 externalId 时在新键上加锁并检查冲突
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	if patch.ExternalID == nil {
		p, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return nil, s.translate(ctx, err, id, "", "update product")
		}
		return p, nil
	}

	var updated *Product
	err := s.locks.Do(ctx, *patch.ExternalID, func() error {
		existing, err := s.repo.FindByExternalID(ctx, *patch.ExternalID)
		switch {
		case err == nil && existing.ID != id:
			return conflict(*patch.ExternalID)
		case err != nil && !stdErrors.Is(err, repository.ErrEntityNotFound):
			return errors.WrapDatabaseError(ctx, err, "find product by external id")
		}

		p, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return s.translate(ctx, err, id, *patch.ExternalID, "update product")
		}
		updated = p
		return nil
	})
	return updated, err
}

// Remove 删除 Product，不存在时返回未找到错误
func (s *Service) Remove(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete product")
	}
	if !ok {
		return errors.Errorf(errors.ErrCodeNotFound, "Product with ID %s not found", id)
	}
	return nil
}

// UpsertByExternalID 按 externalId 幂等写入
//
// 已存在时更新 name，仅当输入携带 ProductCostID 时覆盖成本关联。
func (s *Service) UpsertByExternalID(ctx context.Context, in UpsertInput) (*Product, error) {
	var result *Product
	err := s.locks.Do(ctx, in.ExternalID, func() error {
		existing, err := s.repo.FindByExternalID(ctx, in.ExternalID)
		if err == nil {
			result, err = s.repo.Update(ctx, existing.ID, Patch{Name: &in.Name, ProductCostID: in.ProductCostID})
			if err != nil {
				return s.translate(ctx, err, existing.ID, in.ExternalID, "update product")
			}
			return nil
		}
		if !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find product by external id")
		}

		result, err = s.repo.Create(ctx, &Product{
			ExternalID:    in.ExternalID,
			Name:          in.Name,
			ProductCostID: in.ProductCostID,
		})
		if err != nil {
			return s.translate(ctx, err, "", in.ExternalID, "create product")
		}
		s.logger.Debug(ctx, "product created",
			logging.String("product_id", result.ID),
			logging.String("external_id", in.ExternalID))
		return nil
	})
	return result, err
}

// Count 返回 Product 总数
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// CreateCost 创建成本记录
func (s *Service) CreateCost(ctx context.Context, cost float64) (*ProductCost, error) {
	c, err := s.costs.Create(ctx, &ProductCost{Cost: cost})
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "create product cost")
	}
	return c, nil
}

// FindAllCosts 按插入顺序返回全部成本记录
func (s *Service) FindAllCosts(ctx context.Context) ([]*ProductCost, error) {
	costs, err := s.costs.FindAll(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list product costs")
	}
	return costs, nil
}

// FindCost 按 ID 查询成本
func (s *Service) FindCost(ctx context.Context, id string) (*ProductCost, error) {
	c, err := s.costs.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateCost(ctx, err, id, "find product cost")
	}
	return c, nil
}

// OnCostChanged 注册成本变更观察者，UpdateCost 与 DeleteCost 成功后同步回调
func (s *Service) OnCostChanged(fn CostObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Service) notifyCostChanged(id string) {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	for _, fn := range s.observers {
		fn(id)
	}
}

// UpdateCost 更新成本金额
func (s *Service) UpdateCost(ctx context.Context, id string, cost float64) (*ProductCost, error) {
	c, err := s.costs.Update(ctx, id, cost)
	if err != nil {
		return nil, s.translateCost(ctx, err, id, "update product cost")
	}
	s.notifyCostChanged(id)
	return c, nil
}

// DeleteCost 删除成本记录；引用它的 Product 保持原样
func (s *Service) DeleteCost(ctx context.Context, id string) error {
	ok, err := s.costs.Delete(ctx, id)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete product cost")
	}
	if !ok {
		return costNotFound(id)
	}
	s.notifyCostChanged(id)
	return nil
}

func conflict(externalID string) error {
	return errors.Errorf(errors.ErrCodeConflict, "Product with external ID %s already exists", externalID)
}

func costNotFound(id string) error {
	return errors.Errorf(errors.ErrCodeNotFound, "Product cost with ID %s not found", id)
}

func (s *Service) translate(ctx context.Context, err error, id, externalID, op string) error {
	switch {
	case stdErrors.Is(err, repository.ErrEntityNotFound):
		return errors.Errorf(errors.ErrCodeNotFound, "Product with ID %s not found", id)
	case stdErrors.Is(err, repository.ErrEntityAlreadyExists):
		return conflict(externalID)
	}
	return errors.WrapDatabaseError(ctx, err, op)
}

func (s *Service) translateCost(ctx context.Context, err error, id, op string) error {
	if stdErrors.Is(err, repository.ErrEntityNotFound) {
		return costNotFound(id)
	}
	return errors.WrapDatabaseError(ctx, err, op)
}
