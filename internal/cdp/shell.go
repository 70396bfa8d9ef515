package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/target"
	"github.com/mafredri/cdp/rpcc"

	"netrelay/internal/bridge"
	"netrelay/internal/logger"
	"netrelay/internal/window"
)

// Shell 通过 DevTools 协议在 Chromium 中创建子窗口
type Shell struct {
	devtoolsURL string
	bufSize     int
	log         logger.Logger

	mu      sync.Mutex
	dt      *devtool.DevTools
	conn    *rpcc.Conn
	browser *cdp.Client
}

// New 创建宿主，devtoolsURL 形如 http://127.0.0.1:9222
func New(devtoolsURL string, bufSize int, l logger.Logger) *Shell {
	if l == nil {
		l = logger.NewNop()
	}
	return &Shell{
		devtoolsURL: strings.TrimRight(devtoolsURL, "/"),
		bufSize:     bufSize,
		log:         l,
		dt:          devtool.New(devtoolsURL),
	}
}

// connect 建立浏览器级连接
func (s *Shell) connect(ctx context.Context) (*cdp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}
	ver, err := s.dt.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("query browser version: %w", err)
	}
	conn, err := rpcc.DialContext(ctx, ver.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial browser: %w", err)
	}
	s.conn = conn
	s.browser = cdp.NewClient(conn)
	s.log.Info("已连接浏览器", "browser", ver.Browser, "protocol", ver.Protocol)
	return s.browser, nil
}

// CreateWindow 创建空白新窗口并附加到其页面目标，Load 时再导航到目标地址
func (s *Shell) CreateWindow(ctx context.Context, spec window.Spec) (window.Window, error) {
	bc, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	args := target.NewCreateTargetArgs("about:blank").SetNewWindow(true)
	if spec.Width > 0 && spec.Height > 0 {
		args.SetWidth(spec.Width).SetHeight(spec.Height)
	}
	reply, err := bc.Target.CreateTarget(ctx, args)
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("create target: %w", err)
	}

	dtTarget, err := s.lookup(ctx, string(reply.TargetID))
	if err != nil {
		s.closeTarget(reply.TargetID)
		return nil, err
	}

	w, err := attach(dtTarget, spec, s, bridge.New(string(spec.Label), s.log, s.bufSize))
	if err != nil {
		s.closeTarget(reply.TargetID)
		return nil, err
	}
	s.log.Info("创建子窗口", "label", string(spec.Label), "target", dtTarget.ID, "title", spec.Title)
	return w, nil
}

// lookup 在目标列表中查找新建的页面
func (s *Shell) lookup(ctx context.Context, id string) (*devtool.Target, error) {
	for attempt := 0; attempt < 5; attempt++ {
		targets, err := s.dt.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		for i := range targets {
			if targets[i].ID == id && targets[i].WebSocketDebuggerURL != "" {
				return targets[i], nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("no target %s", id)
}

// frontendURL 补全开发者工具前端地址
func (s *Shell) frontendURL(t *devtool.Target) string {
	u := t.DevToolsFrontendURL
	if strings.HasPrefix(u, "/") {
		return s.devtoolsURL + u
	}
	return u
}

// openTab 在新窗口打开地址，用于开发者工具前端，返回新目标
func (s *Shell) openTab(ctx context.Context, url string) (target.ID, error) {
	bc, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	reply, err := bc.Target.CreateTarget(ctx, target.NewCreateTargetArgs(url).SetNewWindow(true))
	if err != nil {
		return "", err
	}
	return reply.TargetID, nil
}

func (s *Shell) closeTarget(id target.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.mu.Lock()
	bc := s.browser
	s.mu.Unlock()
	if bc == nil {
		return
	}
	if _, err := bc.Target.CloseTarget(ctx, target.NewCloseTargetArgs(id)); err != nil {
		s.log.Debug("关闭目标失败", "target", string(id), "error", err)
	}
}

// reset 丢弃失效的浏览器连接，下次使用时重连
func (s *Shell) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.browser = nil
}

// Close 断开浏览器连接，不关闭浏览器本身
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.browser = nil
	return err
}
