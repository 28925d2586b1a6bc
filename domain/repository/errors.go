// Package repository 定义各实体仓储共享的哨兵错误
package repository

// 常见错误
var (
	ErrEntityNotFound      = &RepositoryError{Code: "ENTITY_NOT_FOUND", Message: "entity not found"}
	ErrEntityAlreadyExists = &RepositoryError{Code: "ENTITY_ALREADY_EXISTS", Message: "entity already exists"}
)

// RepositoryError 仓储错误
type RepositoryError struct {
	Code     string
	Message  string
	EntityID string
	Cause    error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.EntityID != "" {
		return e.Message + " (" + e.EntityID + ")"
	}
	return e.Message
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// Is 按 Code 比较，使带 EntityID/Cause 的副本也能匹配哨兵错误
func (e *RepositoryError) Is(target error) bool {
	t, ok := target.(*RepositoryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NotFound 返回携带实体 ID 的未找到错误
func NotFound(id string) error {
	return &RepositoryError{Code: ErrEntityNotFound.Code, Message: ErrEntityNotFound.Message, EntityID: id}
}

// AlreadyExists 返回携带自然键的冲突错误
func AlreadyExists(key string, cause error) error {
	return &RepositoryError{Code: ErrEntityAlreadyExists.Code, Message: ErrEntityAlreadyExists.Message, EntityID: key, Cause: cause}
}
