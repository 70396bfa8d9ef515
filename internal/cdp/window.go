package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/target"
	"github.com/mafredri/cdp/rpcc"

	"netrelay/internal/bridge"
	"netrelay/internal/interceptor"
	"netrelay/internal/logger"
	"netrelay/internal/window"
	"netrelay/pkg/model"
)

// pageWindow 单个页面目标及其会话
type pageWindow struct {
	shell  *Shell
	target *devtool.Target
	spec   window.Spec
	conn   *rpcc.Conn
	client *cdp.Client
	bus    *bridge.Bus
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	binding  atomic.Value // string
	devtools atomic.Value // target.ID
	done     chan struct{}
	once     sync.Once
	downOnce sync.Once
}

// attach 连接页面目标并开始消费绑定调用
func attach(t *devtool.Target, spec window.Spec, s *Shell, bus *bridge.Bus) (*pageWindow, error) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial target: %w", err)
	}
	w := &pageWindow{
		shell:  s,
		target: t,
		spec:   spec,
		conn:   conn,
		client: cdp.NewClient(conn),
		bus:    bus,
		log:    s.log.With("label", string(spec.Label), "target", t.ID),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.binding.Store("")

	calls, err := w.client.Runtime.BindingCalled(ctx)
	if err != nil {
		w.teardown()
		return nil, fmt.Errorf("subscribe binding calls: %w", err)
	}
	console, err := w.client.Runtime.ConsoleAPICalled(ctx)
	if err != nil {
		_ = calls.Close()
		w.teardown()
		return nil, fmt.Errorf("subscribe console: %w", err)
	}
	if err := w.client.Page.Enable(ctx); err != nil {
		_ = calls.Close()
		_ = console.Close()
		w.teardown()
		return nil, fmt.Errorf("enable page: %w", err)
	}
	if err := w.client.Runtime.Enable(ctx); err != nil {
		_ = calls.Close()
		_ = console.Close()
		w.teardown()
		return nil, fmt.Errorf("enable runtime: %w", err)
	}

	go w.consume(calls)
	go w.consoleLoop(console)
	return w, nil
}

func (w *pageWindow) TargetID() string { return w.target.ID }

func (w *pageWindow) Bridge() *bridge.Bus { return w.bus }

func (w *pageWindow) Done() <-chan struct{} { return w.done }

// OpenDevTools 为页面打开开发者工具前端
func (w *pageWindow) OpenDevTools(ctx context.Context) (string, error) {
	u := w.shell.frontendURL(w.target)
	if u == "" {
		return "", window.ErrDevToolsUnsupported
	}
	id, err := w.shell.openTab(ctx, u)
	if err != nil {
		return "", fmt.Errorf("%w: %v", window.ErrDevToolsUnsupported, err)
	}
	w.devtools.Store(id)
	return u, nil
}

// Inject 安装绑定并注入脚本：后续文档自动注入，当前文档立即执行
func (w *pageWindow) Inject(ctx context.Context, script *interceptor.Script) (interceptor.Status, error) {
	var st interceptor.Status
	if err := w.client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(script.Binding)); err != nil {
		return st, fmt.Errorf("add binding: %w", err)
	}
	w.binding.Store(script.Binding)

	if _, err := w.client.Page.AddScriptToEvaluateOnNewDocument(ctx,
		page.NewAddScriptToEvaluateOnNewDocumentArgs(script.Source)); err != nil {
		return st, fmt.Errorf("register script: %w", err)
	}

	reply, err := w.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(script.Source).SetReturnByValue(true))
	if err != nil {
		return st, fmt.Errorf("evaluate: %w", err)
	}
	if reply.ExceptionDetails != nil {
		return st, fmt.Errorf("evaluate: %s", exceptionText(reply.ExceptionDetails))
	}
	return interceptor.ParseStatus(reply.Result.Value)
}

// Load 导航到创建时的目标地址
func (w *pageWindow) Load(ctx context.Context) error {
	reply, err := w.client.Page.Navigate(ctx, page.NewNavigateArgs(w.spec.URL))
	if err != nil {
		return err
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return fmt.Errorf("%w: %s", window.ErrPageLoadFailed, *reply.ErrorText)
	}
	return nil
}

// Close 关闭页面目标
func (w *pageWindow) Close(ctx context.Context) error {
	w.closeDevTools()
	select {
	case <-w.done:
		w.teardown()
		return nil
	default:
	}
	w.teardown()
	bc, err := w.shell.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := bc.Target.CloseTarget(ctx, target.NewCloseTargetArgs(target.ID(w.target.ID))); err != nil {
		return fmt.Errorf("close target: %w", err)
	}
	return nil
}

// consume 持续接收绑定调用并投递到事件总线
func (w *pageWindow) consume(calls runtime.BindingCalledClient) {
	defer calls.Close()
	defer w.markDone()
	for {
		ev, err := calls.Recv()
		if err != nil {
			if w.ctx.Err() == nil {
				w.log.Warn("绑定事件流中断，窗口视为已关闭", "error", err)
			}
			return
		}
		if name, _ := w.binding.Load().(string); name == "" || ev.Name != name {
			continue
		}
		w.bus.Emit(model.CaptureChannel, ev.Payload)
	}
}

// consoleLoop 转发页面控制台输出到日志
func (w *pageWindow) consoleLoop(console runtime.ConsoleAPICalledClient) {
	defer console.Close()
	for {
		ev, err := console.Recv()
		if err != nil {
			return
		}
		parts := make([]string, 0, len(ev.Args))
		for _, a := range ev.Args {
			parts = append(parts, remoteText(a))
		}
		w.log.Debug("页面控制台", "type", fmt.Sprint(ev.Type), "text", strings.Join(parts, " "))
	}
}

// closeDevTools 关闭 OpenDevTools 打开的前端窗口，返回被关闭的目标
func (w *pageWindow) closeDevTools() target.ID {
	id, _ := w.devtools.Swap(target.ID("")).(target.ID)
	if id != "" {
		w.shell.closeTarget(id)
	}
	return id
}

func (w *pageWindow) markDone() {
	w.once.Do(func() { close(w.done) })
}

func (w *pageWindow) teardown() {
	w.downOnce.Do(func() {
		w.cancel()
		if err := w.conn.Close(); err != nil {
			w.log.Debug("关闭页面连接", "error", err)
		}
	})
	w.markDone()
}

func remoteText(o runtime.RemoteObject) string {
	if len(o.Value) > 0 {
		return strings.Trim(string(o.Value), `"`)
	}
	if o.Description != nil {
		return *o.Description
	}
	return fmt.Sprint(o.Type)
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != nil {
		return *d.Exception.Description
	}
	return d.Text
}
