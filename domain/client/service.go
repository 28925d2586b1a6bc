package client

import (
	"context"
	stdErrors "errors"

	"orderdesk/domain/repository"
	"orderdesk/errors"
	"orderdesk/logging"
	"orderdesk/patterns/keylock"
)

// CreateInput 创建 Client 的输入
type CreateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Service Client 领域服务
//
// 负责 email 唯一性与未找到语义；同一 email 上的检查与写入通过 keylock 串行化。
type Service struct {
	repo   Repository
	locks  *keylock.KeyLock
	logger logging.Logger
}

// NewService 创建 Client 服务
func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		locks:  keylock.New(),
		logger: logging.ComponentLogger("client.service"),
	}
}

// Create 创建 Client，email 已存在时返回冲突错误
func (s *Service) Create(ctx context.Context, in CreateInput) (*Client, error) {
	var created *Client
	err := s.locks.Do(ctx, in.Email, func() error {
		if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
			return errors.Errorf(errors.ErrCodeConflict, "Client with email %s already exists", in.Email)
		} else if !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find client by email")
		}

		c, err := s.repo.Create(ctx, &Client{Name: in.Name, Email: in.Email})
		if err != nil {
			return s.translate(ctx, err, "", in.Email, "create client")
		}
		created = c
		return nil
	})
	return created, err
}

// FindAll 按插入顺序返回全部 Client
func (s *Service) FindAll(ctx context.Context) ([]*Client, error) {
	clients, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list clients")
	}
	return clients, nil
}

// FindOne 按 ID 查询
func (s *Service) FindOne(ctx context.Context, id string) (*Client, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, err, id, "", "find client")
	}
	return c, nil
}

// Update 部分更新；修改 email 时在新 email 上加锁并检查冲突
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Client, error) {
	if patch.Email == nil {
		c, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return nil, s.translate(ctx, err, id, "", "update client")
		}
		return c, nil
	}

	var updated *Client
	err := s.locks.Do(ctx, *patch.Email, func() error {
		existing, err := s.repo.FindByEmail(ctx, *patch.Email)
		switch {
		case err == nil && existing.ID != id:
			return errors.Errorf(errors.ErrCodeConflict, "Client with email %s already exists", *patch.Email)
		case err != nil && !stdErrors.Is(err, repository.ErrEntityNotFound):
			return errors.WrapDatabaseError(ctx, err, "find client by email")
		}

		c, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return s.translate(ctx, err, id, *patch.Email, "update client")
		}
		updated = c
		return nil
	})
	return updated, err
}

// Remove 删除 Client，不存在时返回未找到错误
func (s *Service) Remove(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete client")
	}
	if !ok {
		return errors.Errorf(errors.ErrCodeNotFound, "Client with ID %s not found", id)
	}
	return nil
}

// UpsertByEmail 按 email 幂等写入：存在则只更新 name，否则创建
func (s *Service) UpsertByEmail(ctx context.Context, name, email string) (*Client, error) {
	var result *Client
	err := s.locks.Do(ctx, email, func() error {
		existing, err := s.repo.FindByEmail(ctx, email)
		if err == nil {
			result, err = s.repo.Update(ctx, existing.ID, Patch{Name: &name})
			if err != nil {
				return s.translate(ctx, err, existing.ID, email, "update client")
			}
			return nil
		}
		if !stdErrors.Is(err, repository.ErrEntityNotFound) {
			return errors.WrapDatabaseError(ctx, err, "find client by email")
		}

		result, err = s.repo.Create(ctx, &Client{Name: name, Email: email})
		if err != nil {
			return s.translate(ctx, err, "", email, "create client")
		}
		s.logger.Debug(ctx, "client created", logging.String("client_id", result.ID))
		return nil
	})
	return result, err
}

// Count 返回 Client 总数
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) translate(ctx context.Context, err error, id, email, op string) error {
	switch {
	case stdErrors.Is(err, repository.ErrEntityNotFound):
		return errors.Errorf(errors.ErrCodeNotFound, "Client with ID %s not found", id)
	case stdErrors.Is(err, repository.ErrEntityAlreadyExists):
		return errors.Errorf(errors.ErrCodeConflict, "Client with email %s already exists", email)
	}
	return errors.WrapDatabaseError(ctx, err, op)
}
