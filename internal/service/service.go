package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"netrelay/internal/cdp"
	"netrelay/internal/config"
	"netrelay/internal/ctxkeys"
	"netrelay/internal/interceptor"
	"netrelay/internal/logger"
	"netrelay/internal/relay"
	"netrelay/internal/storage"
	"netrelay/internal/window"
	"netrelay/pkg/model"
)

// Deps 服务依赖，为空的项按配置创建
type Deps struct {
	Shell   window.Shell
	Store   *storage.Store
	Surface relay.Surface
	// Out 诊断输出，默认标准输出
	Out io.Writer
}

// Service 拦截窗口服务
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	windows *window.Manager
	store   *storage.Store
	closers []func() error
}

// New 根据配置创建服务
func New(cfg *config.Config, deps Deps, l logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	s := &Service{cfg: cfg, log: l}

	if deps.Store == nil && cfg.Sqlite.Dsn != "" {
		store, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
		if err != nil {
			return nil, err
		}
		deps.Store = store
		s.closers = append(s.closers, store.Close)
	}
	s.store = deps.Store

	ctx := s.traceCtx(context.Background())
	devtoolsURL := cfg.Browser.DevToolsURL
	defaultURL := cfg.Window.DefaultURL
	if s.store != nil {
		if v, ok, err := s.store.Get(ctx, storage.KeyDevToolsURL); err != nil {
			l.Warn("读取设置失败", "key", storage.KeyDevToolsURL, "error", err)
		} else if ok {
			devtoolsURL = v
		}
		if v, ok, err := s.store.Get(ctx, storage.KeyDefaultURL); err != nil {
			l.Warn("读取设置失败", "key", storage.KeyDefaultURL, "error", err)
		} else if ok {
			defaultURL = v
		}
	}

	if deps.Shell == nil {
		shell := cdp.New(devtoolsURL, cfg.Relay.BufferSize, l)
		deps.Shell = shell
		s.closers = append(s.closers, shell.Close)
	}

	relays := relay.NewFactory(deps.Surface, l, deps.Out, model.RelayChannel)
	mgr, err := window.NewManager(deps.Shell, relays, window.Options{
		DefaultURL:   defaultURL,
		Title:        cfg.Window.Title,
		Width:        cfg.Browser.Width,
		Height:       cfg.Browser.Height,
		OpenDevTools: cfg.Window.OpenDevTools,
		Script:       interceptor.Options{Binding: cfg.Capture.Binding, Skip: cfg.Capture.Skip},
	}, l)
	if err != nil {
		s.close()
		return nil, err
	}
	s.windows = mgr
	return s, nil
}

// OpenInterceptedWindow 打开拦截窗口。脚本注入失败时窗口信息与错误同时返回。
func (s *Service) OpenInterceptedWindow(ctx context.Context, url string) (*model.WindowInfo, error) {
	h, err := s.windows.Open(ctx, url)
	if h == nil {
		return nil, err
	}
	info := h.Info()
	return &info, err
}

// CloseWindow 关闭窗口
func (s *Service) CloseWindow(ctx context.Context, label model.WindowLabel) error {
	return s.windows.Close(ctx, label)
}

// ListWindows 列出窗口
func (s *Service) ListWindows() []model.WindowInfo {
	list := s.windows.List()
	out := make([]model.WindowInfo, 0, len(list))
	for _, h := range list {
		out = append(out, h.Info())
	}
	return out
}

// DefaultURL 当前默认地址
func (s *Service) DefaultURL() string {
	return s.windows.DefaultURL()
}

// SetDefaultURL 修改默认地址并持久化
func (s *Service) SetDefaultURL(ctx context.Context, url string) error {
	if err := s.windows.SetDefaultURL(url); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.Set(s.traceCtx(ctx), storage.KeyDefaultURL, s.windows.DefaultURL()); err != nil {
		return fmt.Errorf("save default url: %w", err)
	}
	return nil
}

// Settings 返回持久化的设置
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	if s.store == nil {
		return map[string]string{}, nil
	}
	return s.store.All(s.traceCtx(ctx))
}

// Shutdown 关闭所有窗口并释放资源
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.windows.CloseAll(ctx)
	return errors.Join(err, s.close())
}

func (s *Service) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Service) traceCtx(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ctxkeys.TraceIDKey{}).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, ctxkeys.TraceIDKey{}, uuid.NewString())
}
