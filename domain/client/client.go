// Package client 管理买家（Client）实体，email 是其自然键
package client

import (
	"context"

	"orderdesk/domain/entity"
)

// Client 买家
type Client struct {
	entity.Base
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c *Client) clone() *Client {
	cp := *c
	return &cp
}

// Patch 部分更新字段，nil 表示不修改
type Patch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

func (p Patch) apply(c *Client) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
}

// Repository Client 仓储
//
// 未找到时返回 repository.ErrEntityNotFound；email 冲突时返回 repository.ErrEntityAlreadyExists。
type Repository interface {
	// Create 分配 ID 与时间戳后保存
	Create(ctx context.Context, c *Client) (*Client, error)
	// FindAll 按插入顺序返回全部记录
	FindAll(ctx context.Context) ([]*Client, error)
	FindByID(ctx context.Context, id string) (*Client, error)
	FindByEmail(ctx context.Context, email string) (*Client, error)
	// Update 合并 patch，保留 ID/CreatedAt，刷新 UpdatedAt
	Update(ctx context.Context, id string, patch Patch) (*Client, error)
	// Delete 返回记录是否存在
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}
