package traffic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Header 封装通用的头部操作，键统一为小写
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// UnmarshalJSON 解析时统一键名为小写，重名键后者覆盖前者
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*h = nil
		return nil
	}
	out := make(Header, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case string:
			out.Set(k, x)
		case nil:
			out.Set(k, "")
		default:
			out.Set(k, fmt.Sprint(x))
		}
	}
	*h = out
	return nil
}

// CapturedRequest 页面内拦截到的一次出站请求
type CapturedRequest struct {
	Type      string    `json:"type,omitempty"` // fetch 或 xhr
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Headers   Header    `json:"headers"`
	Body      *string   `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCapturedRequest 创建初始化的请求事件
func NewCapturedRequest(method, url string) *CapturedRequest {
	return &CapturedRequest{
		Method:    strings.ToUpper(method),
		URL:       url,
		Headers:   make(Header),
		Timestamp: time.Now().UTC(),
	}
}

// ParseCapturedRequest 解析跨边界传来的原始负载
func ParseCapturedRequest(raw string) (*CapturedRequest, error) {
	var req CapturedRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, err
	}
	if req.Headers == nil {
		req.Headers = make(Header)
	}
	return &req, nil
}

// Encode 序列化为跨边界传输的字符串负载
func (r *CapturedRequest) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
