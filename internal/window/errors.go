package window

import (
	"errors"

	"netrelay/pkg/model"
)

var (
	ErrInvalidURL            = errors.New("invalid url")
	ErrWindowCreationFailed  = errors.New("window creation failed")
	ErrScriptInjectionFailed = errors.New("script injection failed")
	ErrWindowNotFound        = errors.New("window not found")
)

// Code 将错误映射为对外错误码
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return model.CodeInvalidURL
	case errors.Is(err, ErrWindowCreationFailed):
		return model.CodeWindowCreationFailed
	case errors.Is(err, ErrScriptInjectionFailed):
		return model.CodeScriptInjectionFailed
	default:
		return ""
	}
}
