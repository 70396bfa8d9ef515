// Package relay turns raw capture payloads into diagnostic output and
// republishes the parsed value to the primary surface.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"netrelay/internal/logger"
	"netrelay/pkg/model"
	"netrelay/pkg/traffic"
)

var (
	ErrPayloadParse = errors.New("payload parse failure")
	ErrRepublish    = errors.New("republish failure")
)

// Surface is the primary UI endpoint receiving republished events by name.
type Surface interface {
	Emit(channel string, payload any) error
}

// Options 转发器选项
type Options struct {
	// Channel 转发通道，默认 model.RelayChannel
	Channel string
	// Out 诊断输出，默认标准输出
	Out io.Writer
	// Source 事件来源（窗口标签），仅用于日志
	Source string
}

// Result 单个事件的处理结果
type Result struct {
	TraceID     string
	Parsed      bool
	Summary     bool
	Republished bool
	// Request 负载符合拦截脚本的事件结构时的类型化结果
	Request *traffic.CapturedRequest
	Err     error
}

// Relay 宿主侧转发器，无跨事件状态
type Relay struct {
	surface Surface
	log     logger.Logger
	out     io.Writer
	channel string
}

var prettyOptions = &pretty.Options{Indent: "  ", SortKeys: true}

// Pretty is the canonical pretty printer for relayed payloads: two-space
// indent, sorted object keys, one array element per line. Input must be valid JSON.
func Pretty(raw []byte) string {
	return string(bytes.TrimRight(pretty.PrettyOptions(raw, prettyOptions), "\n"))
}

// New 创建转发器
func New(s Surface, l logger.Logger, opts Options) *Relay {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Channel == "" {
		opts.Channel = model.RelayChannel
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Source != "" {
		l = l.With("window", opts.Source)
	}
	return &Relay{surface: s, log: l, out: opts.Out, channel: opts.Channel}
}

// OnEvent is the bridge handler. It never panics and never returns an error.
func (r *Relay) OnEvent(raw string) {
	r.Process(raw)
}

// Process 处理一个原始负载：解析、格式化输出、摘要、转发
func (r *Relay) Process(raw string) Result {
	res := Result{TraceID: uuid.NewString()}
	l := r.log.With("traceId", res.TraceID)

	value, err := parse(raw)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrPayloadParse, err)
		r.write("Failed to parse payload: " + err.Error() + "\n")
		l.Warn("解析事件负载失败", "error", err.Error(), "size", len(raw))
		return res
	}
	res.Parsed = true

	canonical, err := encode(value)
	if err != nil {
		res.Parsed = false
		res.Err = fmt.Errorf("%w: %v", ErrPayloadParse, err)
		r.write("Failed to parse payload: " + err.Error() + "\n")
		l.Warn("重新编码事件负载失败", "error", err.Error())
		return res
	}

	var block strings.Builder
	block.WriteString("\nFormatted Request:\n")
	block.WriteString(Pretty(canonical))
	block.WriteString("\n")
	if u, m, ok := summary(string(canonical)); ok {
		res.Summary = true
		fmt.Fprintf(&block, "URL: %s, Method: %s\n", u, m)
		if req, err := traffic.ParseCapturedRequest(string(canonical)); err == nil {
			res.Request = req
			l.Info("拦截到请求", "url", u, "method", m, "type", req.Type, "headers", len(req.Headers))
		} else {
			l.Info("拦截到请求", "url", u, "method", m)
		}
	}
	r.write(block.String())

	if r.surface == nil {
		res.Err = fmt.Errorf("%w: no primary surface", ErrRepublish)
		l.Warn("主界面不可用，丢弃事件", "channel", r.channel)
		return res
	}
	if err := r.surface.Emit(r.channel, value); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrRepublish, err)
		l.Err(err, "转发事件失败，丢弃事件", "channel", r.channel)
		return res
	}
	res.Republished = true
	l.Debug("事件已转发", "channel", r.channel)
	return res
}

func (r *Relay) write(s string) {
	if _, err := io.WriteString(r.out, s); err != nil {
		r.log.Err(err, "写入诊断输出失败")
	}
}

// parse decodes a single JSON value keeping numbers verbatim.
func parse(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid character after top-level value")
	}
	return v, nil
}

// encode renders the decoded value back to JSON. Pretty output, summary and
// republish all derive from it, so duplicate keys resolve the same way everywhere.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func summary(raw string) (string, string, bool) {
	if !gjson.Parse(raw).IsObject() {
		return "", "", false
	}
	u := gjson.Get(raw, "url")
	m := gjson.Get(raw, "method")
	if !u.Exists() || !m.Exists() {
		return "", "", false
	}
	return text(u), text(m), true
}

func text(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}

// Factory 为每个窗口创建转发器，共享同一个诊断输出
type Factory struct {
	surface Surface
	log     logger.Logger
	out     io.Writer
	channel string
}

// NewFactory 创建转发器工厂
func NewFactory(s Surface, l logger.Logger, out io.Writer, channel string) *Factory {
	if out == nil {
		out = os.Stdout
	}
	return &Factory{surface: s, log: l, out: &lockedWriter{w: out}, channel: channel}
}

// For 创建指定窗口的转发器
func (f *Factory) For(label model.WindowLabel) *Relay {
	return New(f.surface, f.log, Options{Channel: f.channel, Out: f.out, Source: string(label)})
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
