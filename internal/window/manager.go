package window

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"netrelay/internal/bridge"
	"netrelay/internal/config"
	"netrelay/internal/interceptor"
	"netrelay/internal/logger"
	"netrelay/internal/relay"
	"netrelay/pkg/model"
)

// Relays 为窗口提供转发器
type Relays interface {
	For(label model.WindowLabel) *relay.Relay
}

// Options 窗口管理器选项
type Options struct {
	DefaultURL   string
	Title        string
	Width        int
	Height       int
	OpenDevTools bool
	Script       interceptor.Options
	// Clock 标签时间源，默认 time.Now
	Clock func() time.Time
}

// Manager 拦截窗口生命周期管理器
type Manager struct {
	shell  Shell
	relays Relays
	script *interceptor.Script
	opts   Options
	log    logger.Logger

	mu         sync.RWMutex
	windows    map[model.WindowLabel]*Handle
	lastMillis int64
	defaultURL string
}

// NewManager 创建窗口管理器
func NewManager(shell Shell, relays Relays, opts Options, l logger.Logger) (*Manager, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultURL == "" {
		opts.DefaultURL = config.DefaultWindowURL
	}
	if opts.Script.Binding == "" {
		opts.Script.Binding = config.NewConfig().Capture.Binding
	}
	script, err := interceptor.Build(opts.Script)
	if err != nil {
		return nil, err
	}
	return &Manager{
		shell:      shell,
		relays:     relays,
		script:     script,
		opts:       opts,
		log:        l,
		windows:    make(map[model.WindowLabel]*Handle),
		defaultURL: opts.DefaultURL,
	}, nil
}

// DefaultURL 返回空地址时使用的默认地址
func (m *Manager) DefaultURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultURL
}

// SetDefaultURL 修改默认地址，地址必须合法
func (m *Manager) SetDefaultURL(raw string) error {
	u, err := parseTarget(raw)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultURL = u.String()
	return nil
}

// Open 打开一个注入拦截脚本的新窗口。
// 脚本注入失败时同时返回可用的窗口句柄和 ErrScriptInjectionFailed。
func (m *Manager) Open(ctx context.Context, requestedURL string) (*Handle, error) {
	raw := strings.TrimSpace(requestedURL)
	if raw == "" {
		raw = m.DefaultURL()
		m.log.Debug("未指定地址，使用默认地址", "url", raw)
	}
	target, err := parseTarget(raw)
	if err != nil {
		m.log.Warn("地址无效，拒绝创建窗口", "url", requestedURL, "error", err)
		return nil, err
	}

	label := m.nextLabel()
	l := m.log.With("label", string(label))

	win, err := m.shell.CreateWindow(ctx, Spec{
		Label:  label,
		URL:    target.String(),
		Title:  m.opts.Title,
		Width:  m.opts.Width,
		Height: m.opts.Height,
	})
	if err != nil {
		l.Err(err, "创建窗口失败", "url", target.String())
		return nil, fmt.Errorf("%w: %v", ErrWindowCreationFailed, err)
	}

	h := &Handle{
		Label:    label,
		URL:      target.String(),
		OpenedAt: time.Now(),
		win:      win,
		closed:   make(chan struct{}),
	}

	if m.opts.OpenDevTools {
		devURL, err := win.OpenDevTools(ctx)
		if err != nil {
			l.Warn("打开开发者工具失败，忽略", "error", err)
		} else {
			h.devTools = true
			h.devToolsURL = devURL
		}
	}

	r := m.relays.For(label)
	h.sub = win.Bridge().Subscribe(model.CaptureChannel, r.OnEvent)

	var injectErr error
	status, err := win.Inject(ctx, m.script)
	if err == nil && !status.Installed() {
		err = fmt.Errorf("no network primitive wrapped (fetch=%s, xhr=%s)", status.Fetch, status.XHR)
	}
	if err != nil {
		h.sub.Unsubscribe()
		injectErr = fmt.Errorf("%w: %v", ErrScriptInjectionFailed, err)
		l.Err(err, "注入拦截脚本失败，窗口以无拦截模式运行")
	} else {
		l.Debug("拦截脚本已注入", "fetch", status.Fetch, "xhr", status.XHR)
	}

	if err := win.Load(ctx); errors.Is(err, ErrPageLoadFailed) {
		l.Warn("页面加载失败，窗口保持打开", "url", h.URL, "error", err)
	} else if err != nil {
		l.Err(err, "窗口加载地址失败", "url", h.URL)
		h.release()
		if cerr := win.Close(context.WithoutCancel(ctx)); cerr != nil {
			l.Warn("关闭失败窗口出错", "error", cerr)
		}
		return nil, fmt.Errorf("%w: load %s: %v", ErrWindowCreationFailed, h.URL, err)
	}

	m.mu.Lock()
	m.windows[label] = h
	m.mu.Unlock()
	go m.watch(h)

	l.Info("拦截窗口已打开", "url", h.URL, "target", win.TargetID(), "capturing", h.Capturing())
	return h, injectErr
}

// Get 获取窗口
func (m *Manager) Get(label model.WindowLabel) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.windows[label]
	return h, ok
}

// List 返回所有打开的窗口，按标签排序
func (m *Manager) List() []*Handle {
	m.mu.RLock()
	list := make([]*Handle, 0, len(m.windows))
	for _, h := range m.windows {
		list = append(list, h)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Label < list[j].Label })
	return list
}

// Close 关闭窗口并释放其订阅
func (m *Manager) Close(ctx context.Context, label model.WindowLabel) error {
	h, ok := m.Get(label)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, label)
	}
	m.forget(h)
	return h.Close(ctx)
}

// CloseAll 并发关闭所有窗口
func (m *Manager) CloseAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range m.List() {
		h := h
		g.Go(func() error {
			m.forget(h)
			return h.Close(gctx)
		})
	}
	return g.Wait()
}

// watch 窗口被外部关闭时释放订阅并注销
func (m *Manager) watch(h *Handle) {
	select {
	case <-h.win.Done():
		h.release()
		m.log.Info("窗口已被关闭，释放订阅", "label", string(h.Label))
	case <-h.closed:
	}
	m.forget(h)
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.windows[h.Label]; ok && cur == h {
		delete(m.windows, h.Label)
	}
}

// nextLabel 基于毫秒时间生成严格递增的标签
func (m *Manager) nextLabel() model.WindowLabel {
	ms := m.opts.Clock().UnixMilli()
	m.mu.Lock()
	if ms <= m.lastMillis {
		ms = m.lastMillis + 1
	}
	m.lastMillis = ms
	m.mu.Unlock()
	return model.WindowLabel(fmt.Sprintf("window-%d", ms))
}

var opaqueSchemes = map[string]bool{"about": true, "data": true, "file": true}

// parseTarget 校验窗口地址
func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "":
		return nil, fmt.Errorf("%w: %q: relative URL without a base", ErrInvalidURL, raw)
	case scheme == "javascript":
		return nil, fmt.Errorf("%w: %q: scheme not allowed", ErrInvalidURL, raw)
	case u.Host == "" && !opaqueSchemes[scheme]:
		return nil, fmt.Errorf("%w: %q: empty host", ErrInvalidURL, raw)
	}
	return u, nil
}

// Handle 打开的拦截窗口
type Handle struct {
	Label    model.WindowLabel
	URL      string
	OpenedAt time.Time

	win         Window
	sub         *bridge.Subscription
	devTools    bool
	devToolsURL string

	releaseOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
	closed      chan struct{}
}

// Capturing 拦截事件是否仍在转发
func (h *Handle) Capturing() bool {
	return h.sub != nil && h.sub.Active()
}

// Info 窗口信息快照
func (h *Handle) Info() model.WindowInfo {
	return model.WindowInfo{
		Label:       h.Label,
		URL:         h.URL,
		TargetID:    h.win.TargetID(),
		DevTools:    h.devTools,
		DevToolsURL: h.devToolsURL,
		Capturing:   h.Capturing(),
		OpenedAt:    h.OpenedAt,
	}
}

// Close 注销订阅并关闭窗口，可重复调用
func (h *Handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.release()
		h.closeErr = h.win.Close(ctx)
	})
	return h.closeErr
}

// release 注销订阅并关闭事件总线
func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		if h.sub != nil {
			h.sub.Unsubscribe()
		}
		h.win.Bridge().Close()
	})
}
