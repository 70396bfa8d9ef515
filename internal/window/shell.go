package window

import (
	"context"
	"errors"

	"netrelay/internal/bridge"
	"netrelay/internal/interceptor"
	"netrelay/pkg/model"
)

// ErrDevToolsUnsupported 宿主无法为窗口打开开发者工具
var ErrDevToolsUnsupported = errors.New("devtools not supported")

// ErrPageLoadFailed 浏览器已导航但页面加载失败（如域名无法解析），
// 窗口显示浏览器错误页并保持可用
var ErrPageLoadFailed = errors.New("page load failed")

// Spec 创建窗口的参数
type Spec struct {
	Label  model.WindowLabel
	URL    string
	Title  string
	Width  int
	Height int
}

// Shell 宿主窗口运行时
type Shell interface {
	CreateWindow(ctx context.Context, spec Spec) (Window, error)
}

// Window 宿主创建的子浏览窗口。页面通过绑定发出的负载
// 出现在 Bridge() 的 model.CaptureChannel 通道上。
type Window interface {
	TargetID() string
	// OpenDevTools 打开诊断工具，返回其地址
	OpenDevTools(ctx context.Context) (string, error)
	// Inject 在当前页面及后续文档中注入拦截脚本
	Inject(ctx context.Context, script *interceptor.Script) (interceptor.Status, error)
	// Load 导航到创建时指定的地址。页面本身加载失败时返回 ErrPageLoadFailed
	Load(ctx context.Context) error
	Bridge() *bridge.Bus
	// Done 在窗口被关闭（包括用户关闭）后关闭
	Done() <-chan struct{}
	Close(ctx context.Context) error
}
