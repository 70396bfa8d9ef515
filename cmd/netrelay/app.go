package main

import (
	"context"
	"errors"

	"netrelay/internal/logger"
	"netrelay/internal/surface"
	"netrelay/internal/window"
	"netrelay/pkg/api"
	"netrelay/pkg/model"
)

// App 绑定到前端的方法集合
type App struct {
	ctx     context.Context
	svc     api.Service
	surface *surface.Wails
	log     logger.Logger
}

// NewApp 创建应用实例
func NewApp(svc api.Service, s *surface.Wails, l logger.Logger) *App {
	if l == nil {
		l = logger.NewNop()
	}
	return &App{ctx: context.Background(), svc: svc, surface: s, log: l}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.surface.Attach(ctx)
}

func (a *App) shutdown(ctx context.Context) {
	a.surface.Detach()
	if err := a.svc.Shutdown(ctx); err != nil {
		a.log.Warn("关闭服务失败", "error", err)
	}
}

// OpenInterceptedWindow 打开拦截窗口。失败信息通过 Code 区分，
// 脚本注入失败时 Window 仍然有效。
func (a *App) OpenInterceptedWindow(url string) model.OpenResult {
	info, err := a.svc.OpenInterceptedWindow(a.ctx, url)
	res := model.OpenResult{Window: info}
	if err != nil {
		res.Error = err.Error()
		res.Code = window.Code(err)
	}
	return res
}

// CloseWindow 关闭窗口
func (a *App) CloseWindow(label string) error {
	err := a.svc.CloseWindow(a.ctx, model.WindowLabel(label))
	if errors.Is(err, window.ErrWindowNotFound) {
		return nil
	}
	return err
}

// ListWindows 列出窗口
func (a *App) ListWindows() []model.WindowInfo {
	return a.svc.ListWindows()
}

// DefaultURL 默认地址
func (a *App) DefaultURL() string {
	return a.svc.DefaultURL()
}

// SetDefaultURL 修改默认地址
func (a *App) SetDefaultURL(url string) error {
	return a.svc.SetDefaultURL(a.ctx, url)
}
