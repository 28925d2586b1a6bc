package order

import (
	"context"
	stdErrors "errors"

	"orderdesk/domain/client"
	"orderdesk/domain/repository"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/patterns/keylock"
)

// ClientLookup 订单服务校验买家存在性所需的最小接口，client.Repository 满足它
type ClientLookup interface {
	FindByID(ctx context.Context, id string) (*client.Client, error)
}

// CreateInput 直接创建订单的输入
type CreateInput struct {
	ExternalID string      `json:"externalId"`
	ClientID   string      `json:"clientId"`
	Items      []ItemInput `json:"items,omitempty"`
}

// UpsertInput 按 externalId 幂等写入的输入，Items 整体替换已有明细
type UpsertInput struct {
	ExternalID string
	ClientID   string
	Items      []ItemInput
}

// Service Order 领域服务
type Service struct {
	repo    Repository
	clients ClientLookup
	locks   *keylock.KeyLock
	logger  logging.Logger
}

// NewService 创建 Order 服务
func NewService(repo Repository, clients ClientLookup) *Service {
	return &Service{
		repo:    repo,
		clients: clients,
		locks:   keylock.New(),
		logger:  logging.ComponentLogger("order.service"),
	}
}

// Create 创建订单；买家不存在或 externalId 重复时返回请求错误
func (s *Service) Create(ctx context.Context, in CreateInput) (*WithItems, error) {
	if err := s.requireClient(ctx, in.ClientID); err != nil {
		return nil, err
	}

	var created *WithItems
	err := s.locks.Do(ctx, in.ExternalID, func() error {
		if _, err := s.repo.FindByExternalID(ctx, in.ExternalID); err == nil {
			return conflict(in.ExternalID)
		} else if !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find order by external id")
		}

		o, err := s.repo.Create(ctx, in.ExternalID, in.ClientID, in.Items)
		if err != nil {
			return s.translate(ctx, err, "", in.ExternalID, "create order")
		}
		created = o
		return nil
	})
	return created, err
}

// FindAll 按插入顺序返回全部订单（不含明细）
func (s *Service) FindAll(ctx context.Context) ([]*Order, error) {
	orders, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list orders")
	}
	return orders, nil
}

// FindAllWithItems 返回全部订单及明细
func (s *Service) FindAllWithItems(ctx context.Context) ([]*WithItems, error) {
	orders, err := s.repo.FindAllWithItems(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list orders with items")
	}
	return orders, nil
}

// FindOne 按 ID 查找订单（不含明细）
func (s *Service) FindOne(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, err, id, "", "find order")
	}
	return o, nil
}

// FindOneWithItems 按 ID 查找订单及明细，无明细时 items 为空数组
func (s *Service) FindOneWithItems(ctx context.Context, id string) (*WithItems, error) {
	o, err := s.repo.FindByIDWithItems(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, err, id, "", "find order with items")
	}
	return o, nil
}

// FindByClientID 返回某买家的全部订单，买家不存在时返回未找到错误
func (s *Service) FindByClientID(ctx context.Context, clientID string) ([]*Order, error) {
	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if stdErrors.Is(err, repository.ErrEntityNotFound) {
			return nil, errors.Errorf(errors.ErrCodeNotFound, "Client with ID %s not found", clientID)
		}
		return nil, errors.WrapDatabaseError(ctx, err, "find client")
	}
	orders, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list orders by client")
	}
	return orders, nil
}

// Update 部分更新；变更 clientId 时校验买家存在，变更 externalId 时检查冲突
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Order, error) {
	if patch.ClientID != nil {
		if err := s.requireClient(ctx, *patch.ClientID); err != nil {
			return nil, err
		}
	}
	if patch.ExternalID == nil {
		o, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return nil, s.translate(ctx, err, id, "", "update order")
		}
		return o, nil
	}

	var updated *Order
	err := s.locks.Do(ctx, *patch.ExternalID, func() error {
		existing, err := s.repo.FindByExternalID(ctx, *patch.ExternalID)
		switch {
		case err == nil && existing.ID != id:
			return conflict(*patch.ExternalID)
		case err != nil && !stdErrors.Is(err, repository.ErrEntityNotFound):
			return errors.WrapDatabaseError(ctx, err, "find order by external id")
		}

		o, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return s.translate(ctx, err, id, *patch.ExternalID, "update order")
		}
		updated = o
		return nil
	})
	return updated, err
}

// Remove 删除订单及其明细
func (s *Service) Remove(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete order")
	}
	if !ok {
		return errors.Errorf(errors.ErrCodeNotFound, "Order with ID %s not found", id)
	}
	return nil
}

// UpsertByExternalID 按 externalId 幂等写入订单并整体替换明细
//
// 查找与写入在同一 externalId 的锁内完成，重放同一事件不会产生新记录。
// 已存在时 clientId 与明细由 Repository.Reconcile 在同一事务内改写。
func (s *Service) UpsertByExternalID(ctx context.Context, in UpsertInput) (*WithItems, error) {
	if err := s.requireClient(ctx, in.ClientID); err != nil {
		return nil, err
	}

	var result *WithItems
	err := s.locks.Do(ctx, in.ExternalID, func() error {
		existing, err := s.repo.FindByExternalID(ctx, in.ExternalID)
		if err != nil && !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find order by external id")
		}

		if existing == nil {
			result, err = s.repo.Create(ctx, in.ExternalID, in.ClientID, in.Items)
			if err != nil {
				return s.translate(ctx, err, "", in.ExternalID, "create order")
			}
			s.logger.Debug(ctx, "order created",
				logging.String("order_id", result.ID),
				logging.String("external_id", in.ExternalID))
			return nil
		}

		result, err = s.repo.Reconcile(ctx, existing.ID, in.ClientID, in.Items)
		if err != nil {
			return s.translate(ctx, err, existing.ID, in.ExternalID, "reconcile order")
		}
		return nil
	})
	return result, err
}

// Count 返回订单总数
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) requireClient(ctx context.Context, clientID string) error {
	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.Errorf(errors.ErrCodeInvalidInput, "Client with ID %s not found", clientID)
		}
		return errors.WrapDatabaseError(ctx, err, "find client")
	}
	return nil
}

func conflict(externalID string) error {
	return errors.Errorf(errors.ErrCodeConflict, "Order with external ID %s already exists", externalID)
}

func (s *Service) translate(ctx context.Context, err error, id, externalID, op string) error {
	switch {
	case stdErrors.Is(err, repository.ErrEntityNotFound):
		return errors.Errorf(errors.ErrCodeNotFound, "Order with ID %s not found", id)
	case stdErrors.Is(err, repository.ErrEntityAlreadyExists):
		return conflict(externalID)
	}
	return errors.WrapDatabaseError(ctx, err, op)
}
