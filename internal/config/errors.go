package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 是所有字段校验错误的共同根，调用方可用 errors.Is 区分校验失败与读取失败。
var ErrInvalidConfig = errors.New("invalid config")

// FieldError 记录出错的配置键路径（如 Global.Threshold、Category[datasets].TTLDays）与原因。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error {
	return ErrInvalidConfig
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

func categoryField(name, field string) string {
	return fmt.Sprintf("Category[%s].%s", name, field)
}
