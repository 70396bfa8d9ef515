package model

import "time"

// WindowLabel 窗口唯一标识
type WindowLabel string

// 事件通道名称
const (
	// CaptureChannel 页面到宿主的拦截事件通道，负载为 JSON 字符串
	CaptureChannel = "http-request"
	// RelayChannel 宿主到主界面的转发通道，负载为解析后的结构化对象
	RelayChannel = "http-request-relay"
)

// WindowInfo 对外暴露的窗口信息
type WindowInfo struct {
	Label       WindowLabel `json:"label"`
	URL         string      `json:"url"`
	TargetID    string      `json:"targetId"`
	DevTools    bool        `json:"devTools"`
	Capturing   bool        `json:"capturing"`
	OpenedAt    time.Time   `json:"openedAt"`
	DevToolsURL string      `json:"devToolsUrl,omitempty"`
}

// OpenResult 打开窗口的结果，降级模式下 Error 非空但窗口仍然可用
type OpenResult struct {
	Window *WindowInfo `json:"window,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// 错误码，与 window 包中的哨兵错误一一对应
const (
	CodeInvalidURL            = "InvalidURL"
	CodeWindowCreationFailed  = "WindowCreationFailed"
	CodeScriptInjectionFailed = "ScriptInjectionFailed"
)
