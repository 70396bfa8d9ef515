package ctxkeys

// TraceIDKey 上下文中的追踪ID键
type TraceIDKey struct{}
