// Package surface provides primary-surface implementations for the relay.
package surface

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrUnavailable is returned while the primary surface has not been created
// yet or has already shut down.
var ErrUnavailable = errors.New("primary surface unavailable")

// Wails 以 wails 主窗口作为主界面
type Wails struct {
	ctx  atomic.Pointer[context.Context]
	emit func(ctx context.Context, name string, data ...any)
}

// NewWails 创建 wails 主界面，需在 OnStartup 中调用 Attach
func NewWails() *Wails {
	return &Wails{emit: wruntime.EventsEmit}
}

// Attach 绑定 wails 运行时上下文
func (w *Wails) Attach(ctx context.Context) {
	w.ctx.Store(&ctx)
}

// Detach 解除绑定，之后的转发全部失败
func (w *Wails) Detach() {
	w.ctx.Store(nil)
}

// Available 主界面是否可用
func (w *Wails) Available() bool {
	p := w.ctx.Load()
	return p != nil && (*p).Err() == nil
}

// Emit 向前端发送事件
func (w *Wails) Emit(channel string, payload any) error {
	p := w.ctx.Load()
	if p == nil || (*p).Err() != nil {
		return ErrUnavailable
	}
	w.emit(*p, channel, payload)
	return nil
}

// Line JSON 行输出中的一条记录
type Line struct {
	Channel string    `json:"channel"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// JSONLines 将转发事件按行写为 JSON，用于无界面模式
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONLines 创建 JSON 行输出
func NewJSONLines(w io.Writer) *JSONLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLines{enc: enc, now: time.Now}
}

// Emit 写出一行记录
func (j *JSONLines) Emit(channel string, payload any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(Line{Channel: channel, Time: j.now().UTC(), Payload: payload})
}
