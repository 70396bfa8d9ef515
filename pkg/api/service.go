package api

import (
	"context"

	"netrelay/internal/config"
	"netrelay/internal/logger"
	"netrelay/internal/relay"
	"netrelay/internal/service"
	"netrelay/pkg/model"
)

// Service 服务接口
type Service interface {
	// OpenInterceptedWindow 打开注入拦截脚本的窗口，空地址使用默认地址
	OpenInterceptedWindow(ctx context.Context, url string) (*model.WindowInfo, error)

	// CloseWindow 关闭窗口并停止其事件转发
	CloseWindow(ctx context.Context, label model.WindowLabel) error

	// ListWindows 列出打开的窗口
	ListWindows() []model.WindowInfo

	// DefaultURL 获取默认地址
	DefaultURL() string

	// SetDefaultURL 设置默认地址
	SetDefaultURL(ctx context.Context, url string) error

	// Settings 获取持久化设置
	Settings(ctx context.Context) (map[string]string, error)

	// Shutdown 关闭全部窗口并释放资源
	Shutdown(ctx context.Context) error
}

// NewService 创建并返回服务接口实现，转发事件发往 surface
func NewService(cfg *config.Config, surface relay.Surface, l logger.Logger) (Service, error) {
	return service.New(cfg, service.Deps{Surface: surface}, l)
}
