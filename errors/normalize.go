package errors

import (
	"context"
	stdErrors "errors"

	"orderdesk/domain/repository"
)

// Normalize 将仓储层/基础设施层的错误规范化为 AppError。
//
// 已经是 IError 的错误原样返回；未识别的错误保持原样，由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, repository.ErrEntityNotFound):
		return WrapError(err, ErrCodeNotFound, "entity not found")
	case stdErrors.Is(err, repository.ErrEntityAlreadyExists):
		return WrapError(err, ErrCodeConflict, "entity already exists")
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, "operation timed out")
	case stdErrors.Is(err, context.Canceled):
		return WrapError(err, ErrCodeServiceUnavailable, "operation canceled")
	}
	return err
}
