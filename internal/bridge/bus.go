// Package bridge carries string payloads from a page context to host
// subscribers. Emit never blocks; a full subscriber queue drops the payload.
// Delivery is FIFO per subscription and stops once the subscription is gone.
package bridge

import (
	"sync"
	"sync/atomic"

	"netrelay/internal/logger"
)

// DefaultBufferSize 单个订阅的默认队列长度
const DefaultBufferSize = 256

// Handler 订阅回调，每个负载调用一次
type Handler func(payload string)

// Bus 按通道名分发负载的单窗口事件总线
type Bus struct {
	scope   string
	bufSize int
	log     logger.Logger

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool

	dropped atomic.Int64
}

// Subscription 一次订阅，持有独立的投递队列
type Subscription struct {
	bus     *Bus
	channel string
	handler Handler
	queue   chan string
	done    chan struct{}
	drained chan struct{}

	mu     sync.Mutex
	active bool
	once   sync.Once
}

// New 创建事件总线，scope 仅用于日志
func New(scope string, l logger.Logger, bufSize int) *Bus {
	if l == nil {
		l = logger.NewNop()
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bus{
		scope:   scope,
		bufSize: bufSize,
		log:     l,
		subs:    make(map[string][]*Subscription),
	}
}

// Emit 投递负载到通道的所有订阅，不阻塞、不确认
func (b *Bus) Emit(channel, payload string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs[channel] {
		select {
		case s.queue <- payload:
		default:
			b.dropped.Add(1)
			b.log.Warn("订阅队列已满，丢弃事件", "scope", b.scope, "channel", channel)
		}
	}
}

// Subscribe 注册通道订阅
func (b *Bus) Subscribe(channel string, h Handler) *Subscription {
	s := &Subscription{
		bus:     b,
		channel: channel,
		handler: h,
		queue:   make(chan string, b.bufSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		active:  true,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() {
			s.active = false
			close(s.done)
		})
		close(s.drained)
		return s
	}
	b.subs[channel] = append(b.subs[channel], s)
	b.mu.Unlock()

	go s.drain()
	b.log.Debug("注册事件订阅", "scope", b.scope, "channel", channel)
	return s
}

// Dropped 返回因队列满而丢弃的事件数
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers 返回通道上的活动订阅数
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close 关闭总线并注销全部订阅
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.channel]
	for i, cur := range list {
		if cur == s {
			b.subs[s.channel] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.channel]) == 0 {
		delete(b.subs, s.channel)
	}
}

// Channel 返回订阅的通道名
func (s *Subscription) Channel() string { return s.channel }

// Active 订阅是否仍在投递
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Unsubscribe 注销订阅。返回后回调不会再被调用；
// 不可在回调内部调用。
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		close(s.done)
	})
	<-s.drained
}

func (s *Subscription) drain() {
	defer close(s.drained)
	for {
		select {
		case <-s.done:
			return
		case p := <-s.queue:
			s.deliver(p)
		}
	}
}

func (s *Subscription) deliver(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.bus.log.Error("事件回调异常", "scope", s.bus.scope, "channel", s.channel, "panic", r)
		}
	}()
	s.handler(p)
}
