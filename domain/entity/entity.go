// Package entity 定义领域实体的公共字段与标识生成
package entity

import (
	"time"

	"github.com/google/uuid"
)

// IEntity 实体接口
type IEntity interface {
	// GetID 返回实体的唯一标识
	GetID() string
}

// Clock 时间来源，仓储通过它生成审计时间，测试可替换
type Clock func() time.Time

// SystemClock 返回 UTC 当前时间
func SystemClock() time.Time {
	return time.Now().UTC()
}

// NewID 生成新的实体 ID（UUID v4）
func NewID() string {
	return uuid.NewString()
}

// Base 通用实体字段（用于嵌入）
//
// ID 与 CreatedAt 在创建时写入一次，之后不再改变；UpdatedAt 在每次变更时刷新。
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetID 实现 IEntity 接口
func (b *Base) GetID() string {
	return b.ID
}

// Init 为新实体分配 ID 与创建时间
func (b *Base) Init(now time.Time) {
	b.ID = NewID()
	b.CreatedAt = now
	b.UpdatedAt = now
}

// Touch 刷新更新时间，保证单调不回退
func (b *Base) Touch(now time.Time) {
	if now.Before(b.UpdatedAt) {
		now = b.UpdatedAt
	}
	b.UpdatedAt = now
}
