package event

import (
	"reflect"
	"sync"
	"time"

	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

const defaultQueueSize = 10000

// Bus 进程级事件总线
// 一个分发协程 + 一个定时器协程；处理函数在分发协程上按注册顺序同步执行，
// 慢处理函数会延迟后续分发（有意的取舍，换取单写者纪律和稳定顺序）
type Bus struct {
	queue    chan Event
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string][]Handler
	general  []Handler

	active    bool
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option 总线可选参数
type Option func(*Bus)

// WithQueueSize 设置事件队列容量
func WithQueueSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.queue = make(chan Event, size)
		}
	}
}

// WithTimerInterval 设置 eTimer 事件间隔
func WithTimerInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.interval = d
		}
	}
}

// NewBus 创建事件总线（未启动）
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		queue:    make(chan Event, defaultQueueSize),
		interval: time.Second,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start 启动分发协程和定时器协程
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.active = true
		b.mu.Unlock()

		b.wg.Add(2)
		goplus.Go(b.runDispatch)
		goplus.Go(b.runTimer)

		logger.Info().Msg("event bus started")
	})
}

// Stop 停止总线并等待两个协程退出
// 之后的 Put 仍被接受，但不会再被分发
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()

		close(b.done)
		b.wg.Wait()

		logger.Info().Msg("event bus stopped")
	})
}

// Put 非阻塞入队，可从任意协程调用
// 队列满时丢弃并记录（调用方绝不能被总线反压阻塞）
func (b *Bus) Put(ev Event) {
	select {
	case b.queue <- ev:
		monitor.SetEventQueueSize(len(b.queue))
	default:
		monitor.IncEventDropped(ev.Type)
		logger.Warn().Str("type", ev.Type).Msg("event queue full, dropping event")
	}
}

// Register 注册事件处理函数，重复注册同一函数为空操作
func (b *Bus) Register(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.handlers[eventType] {
		if sameHandler(h, handler) {
			return
		}
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Unregister 注销事件处理函数
func (b *Bus) Unregister(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	for i, h := range list {
		if sameHandler(h, handler) {
			b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// RegisterGeneral 注册通配处理函数，任何事件都会回调
func (b *Bus) RegisterGeneral(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.general {
		if sameHandler(h, handler) {
			return
		}
	}
	b.general = append(b.general, handler)
}

// UnregisterGeneral 注销通配处理函数
func (b *Bus) UnregisterGeneral(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, h := range b.general {
		if sameHandler(h, handler) {
			b.general = append(b.general[:i:i], b.general[i+1:]...)
			return
		}
	}
}

// HandlerCount 返回指定类型已注册的处理函数数量（调试用）
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// QueueSize 当前队列积压
func (b *Bus) QueueSize() int {
	return len(b.queue)
}

func (b *Bus) runDispatch() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.queue:
			b.process(ev)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) runTimer() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Put(NewEvent(TypeTimer, time.Now()))
		case <-b.done:
			return
		}
	}
}

// process 按注册顺序同步执行定向和通配处理函数
// 处理函数 panic 被捕获并记录，不影响后续处理函数和事件
func (b *Bus) process(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[ev.Type])+len(b.general))
	handlers = append(handlers, b.handlers[ev.Type]...)
	handlers = append(handlers, b.general...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}

	monitor.IncEventDispatched(ev.Type)
	monitor.SetEventQueueSize(len(b.queue))
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			monitor.IncHandlerError(ev.Type)
			logger.Error().
				Str("type", ev.Type).
				Any("panic", r).
				Msg("event handler panic recovered")
		}
	}()

	h(ev)
}

// sameHandler 按函数指针比较处理函数身份
func sameHandler(a, b Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
