package config

import "fmt"

// FieldError 指出出错的配置字段；Err 为可选的底层原因（如 URL 解析错误）。
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e FieldError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	case e.Reason == "":
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
}

func (e FieldError) Unwrap() error {
	return e.Err
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// wrapFieldError 把校验函数返回的 error 挂到具体字段上，便于 errors.As 统一识别。
func wrapFieldError(field string, err error) error {
	return FieldError{Field: field, Err: err}
}
