package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

var (
	// ErrBridgeStopped 桥已停止，不再接受新任务
	ErrBridgeStopped = errors.New("bridge: stopped")
	// ErrWaitTimeout 等待任务结果超时
	ErrWaitTimeout = errors.New("bridge: wait timeout")
)

const defaultTaskQueueSize = 1024

// Task 在桥协程上执行的一段工作
// ctx 在 Stop 时被取消，长任务必须观察它
type Task func(ctx context.Context) (any, error)

// TaskHandle 任务句柄，可从任意协程轮询/等待
type TaskHandle struct {
	done chan struct{}

	mu     sync.Mutex
	result any
	err    error
	waited atomic.Bool
}

func newTaskHandle() *TaskHandle {
	return &TaskHandle{done: make(chan struct{})}
}

// Done 任务完成信号
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Wait 阻塞等待任务完成，返回任务错误；超时返回 ErrWaitTimeout
func (h *TaskHandle) Wait(timeout time.Duration) error {
	h.waited.Store(true)

	select {
	case <-h.done:
		_, err := h.Result()
		return err
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Result 返回任务结果，未完成时返回零值
func (h *TaskHandle) Result() (any, error) {
	h.waited.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *TaskHandle) complete(result any, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

type taskItem struct {
	fn     Task
	handle *TaskHandle
}

// Bridge 线程↔协程桥
// 恰好一个专属协程拥有一个串行任务循环，桥的生命周期内不变；
// 其他协程只通过任务队列投递工作，循环内部状态绝不被跨协程修改
type Bridge struct {
	name string
	bus  *event.Bus

	tasks  chan *taskItem
	ctx    context.Context
	cancel context.CancelFunc

	loopDone chan struct{}

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopClean bool
}

// New 创建桥（未启动）
func New(name string, bus *event.Bus) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		name:     name,
		bus:      bus,
		tasks:    make(chan *taskItem, defaultTaskQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// Start 启动循环协程，重复调用为空操作
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}

	goplus.Go(b.runLoop)
	logger.Info().Str("bridge", b.name).Msg("bridge started")
}

// Run 从任意协程投递任务，返回可等待的句柄
// 桥停止后投递的任务立即以 ErrBridgeStopped 完成
func (b *Bridge) Run(fn Task) *TaskHandle {
	handle := newTaskHandle()

	if b.stopped.Load() {
		handle.complete(nil, ErrBridgeStopped)
		return handle
	}

	item := &taskItem{fn: fn, handle: handle}

	select {
	case b.tasks <- item:
		// 入队成功后循环可能恰好退出，错过最后一次排空会让句柄悬挂，
		// 这里等循环彻底结束后再排空一次兜底
		if b.stopped.Load() {
			if b.started.Load() {
				goplus.Go(func() {
					<-b.loopDone
					b.drainTasks()
				})
			} else {
				b.drainTasks()
			}
		}
	case <-b.ctx.Done():
		handle.complete(nil, ErrBridgeStopped)
	}

	return handle
}

// CallSoon 在循环协程上调度一个普通回调，错误只记录
func (b *Bridge) CallSoon(fn func()) {
	b.Run(func(context.Context) (any, error) {
		fn()
		return nil, nil
	})
}

// EmitEvent 把循环协程上产生的事件安全交给总线
// 总线入队本身线程安全，这里保留显式交接点
func (b *Bridge) EmitEvent(ev event.Event) {
	b.bus.Put(ev)
}

// Stop 请求取消所有未完成任务并等待循环退出
// 最多等待 timeout，返回是否干净退出；幂等，重复调用直接返回上次结果
func (b *Bridge) Stop(timeout time.Duration) bool {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.cancel()

		if !b.started.Load() {
			b.stopClean = true
			return
		}

		select {
		case <-b.loopDone:
			b.stopClean = true
		case <-time.After(timeout):
			logger.Warn().Str("bridge", b.name).Msg("bridge loop did not exit in time")
			b.stopClean = false
		}
	})

	return b.stopClean
}

func (b *Bridge) runLoop() {
	defer close(b.loopDone)

	for {
		select {
		case item := <-b.tasks:
			b.execute(item)
		case <-b.ctx.Done():
			b.drainTasks()
			return
		}
	}
}

// drainTasks 把停止后仍在队列里的任务标记为已取消
func (b *Bridge) drainTasks() {
	for {
		select {
		case item := <-b.tasks:
			item.handle.complete(nil, context.Canceled)
		default:
			return
		}
	}
}

// execute 串行执行任务；panic 被捕获落到句柄上，绝不打穿循环协程
func (b *Bridge) execute(item *taskItem) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("bridge task panic: %v", r)
			logger.Error().Str("bridge", b.name).Err(err).Msg("task panic recovered")
			item.handle.complete(nil, err)
		}
	}()

	result, err := item.fn(b.ctx)
	item.handle.complete(result, err)

	// 没有任何等待方时错误仍要可见
	if err != nil && !item.handle.waited.Load() {
		logger.Error().Str("bridge", b.name).Err(err).Msg("unwaited bridge task failed")
	}
}
