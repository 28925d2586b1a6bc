// Package validation 提供请求字段级校验，失败时返回 VALIDATION_ERROR
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"orderdesk/errors"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// 接受的 ISO-8601 形式，按从严到宽的顺序尝试
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const dateOnlyLayout = "2006-01-02"

// IValidator 定义通用验证器接口
type IValidator interface {
	Validate() error
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Errorf(errors.ErrCodeValidation, "%s should not be empty", fieldName)
	}
	return nil
}

// ValidateStringLength 验证字符串长度，max <= 0 表示不限上限
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := len(value)
	if length < min {
		return errors.Errorf(errors.ErrCodeValidation,
			"%s must be longer than or equal to %d characters", fieldName, min)
	}
	if max > 0 && length > max {
		return errors.Errorf(errors.ErrCodeValidation,
			"%s must be shorter than or equal to %d characters", fieldName, max)
	}
	return nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email, fieldName string) error {
	if email == "" {
		return errors.Errorf(errors.ErrCodeValidation, "%s should not be empty", fieldName)
	}
	if !emailRegex.MatchString(email) {
		return errors.Errorf(errors.ErrCodeValidation, "%s must be an email", fieldName)
	}
	return nil
}

// ValidatePositive 验证正数
func ValidatePositive(value float64, fieldName string) error {
	if value <= 0 {
		return errors.Errorf(errors.ErrCodeValidation, "%s must be a positive number", fieldName)
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.Errorf(errors.ErrCodeValidation,
		"%s must be one of the following values: %s", fieldName, strings.Join(validValues, ", "))
}

// ValidateISODate 验证 ISO-8601 日期或日期时间字符串
func ValidateISODate(value, fieldName string) error {
	if _, _, err := ParseISODate(value); err != nil {
		return errors.Errorf(errors.ErrCodeValidation, "%s must be a valid ISO 8601 date string", fieldName)
	}
	return nil
}

// ParseISODate 解析 ISO-8601 字符串并转为 UTC
//
// dateOnly 为 true 表示输入只有日期部分（YYYY-MM-DD）。
// 不带时区的日期时间按 UTC 解释。
func ParseISODate(value string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	if d, err := time.Parse(dateOnlyLayout, value); err == nil {
		return d.UTC(), true, nil
	}
	for _, layout := range isoLayouts {
		if parsed, perr := time.Parse(layout, value); perr == nil {
			return parsed.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid ISO 8601 date: %q", value)
}

// Collect 合并多个校验错误
//
// 全部为 nil 时返回 nil；否则返回一个 VALIDATION_ERROR，消息以 "; " 连接，
// 逐条消息保存在 details["errors"] 中。
func Collect(errs ...error) error {
	var messages []string
	for _, err := range errs {
		if err != nil {
			messages = append(messages, errors.MessageOf(err))
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return errors.NewError(errors.ErrCodeValidation, strings.Join(messages, "; ")).
		WithContext("errors", messages)
}
