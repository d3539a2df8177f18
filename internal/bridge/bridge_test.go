package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-trade-engine/internal/event"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()

	bus := event.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	b := New("test", bus)
	b.Start()
	return b
}

func TestBridge_RunAndWait(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	handle := b.Run(func(ctx context.Context) (any, error) {
		return 42, nil
	})

	assert.NoError(t, handle.Wait(time.Second))
	result, err := handle.Result()
	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestBridge_SerialExecution(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	var mu sync.Mutex
	var order []int

	// 任务严格按投递顺序串行执行
	var handles []*TaskHandle
	for i := 0; i < 10; i++ {
		i := i
		handles = append(handles, b.Run(func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}))
	}
	for _, h := range handles {
		assert.NoError(t, h.Wait(time.Second))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestBridge_CallSoon(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	done := make(chan struct{})
	b.CallSoon(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback not executed")
	}
}

func TestBridge_WaitTimeout(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	blocker := make(chan struct{})
	defer close(blocker)

	handle := b.Run(func(ctx context.Context) (any, error) {
		<-blocker
		return nil, nil
	})

	assert.ErrorIs(t, handle.Wait(20*time.Millisecond), ErrWaitTimeout)
}

func TestBridge_TaskError(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	wantErr := errors.New("task failed")
	handle := b.Run(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	assert.ErrorIs(t, handle.Wait(time.Second), wantErr)
}

func TestBridge_PanicCaptured(t *testing.T) {
	b := newTestBridge(t)
	defer b.Stop(time.Second)

	handle := b.Run(func(ctx context.Context) (any, error) {
		panic("boom")
	})

	// panic 落在句柄上，循环协程继续工作
	err := handle.Wait(time.Second)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	after := b.Run(func(ctx context.Context) (any, error) {
		return "still alive", nil
	})
	assert.NoError(t, after.Wait(time.Second))
}

func TestBridge_StopBoundedAndIdempotent(t *testing.T) {
	b := newTestBridge(t)

	start := time.Now()
	clean := b.Stop(time.Second)
	assert.True(t, clean)
	assert.Less(t, time.Since(start), time.Second)

	// 重复停止直接返回上次结果
	assert.True(t, b.Stop(time.Second))
}

func TestBridge_StopTimeout(t *testing.T) {
	b := newTestBridge(t)

	blocker := make(chan struct{})
	defer close(blocker)

	// 不观察 ctx 的任务会卡住循环
	b.Run(func(ctx context.Context) (any, error) {
		<-blocker
		return nil, nil
	})
	time.Sleep(20 * time.Millisecond)

	assert.False(t, b.Stop(50*time.Millisecond))
	// 结果被固化，后续调用不再等待
	assert.False(t, b.Stop(50*time.Millisecond))
}

func TestBridge_RunAfterStop(t *testing.T) {
	b := newTestBridge(t)
	b.Stop(time.Second)

	handle := b.Run(func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, handle.Wait(time.Second), ErrBridgeStopped)
}

func TestBridge_QueuedTasksCancelledOnStop(t *testing.T) {
	bus := event.NewBus()
	bus.Start()
	defer bus.Stop()

	// 未启动的桥：任务只进队列不执行
	b := New("test", bus)

	handle := b.Run(func(ctx context.Context) (any, error) {
		return nil, nil
	})

	b.Start()
	// 竞争窗口内任务要么完成要么被取消，不会悬挂
	b.Stop(time.Second)

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("queued task left hanging after stop")
	}
}

func TestBridge_EmitEvent(t *testing.T) {
	bus := event.NewBus()
	bus.Start()
	defer bus.Stop()

	received := make(chan event.Event, 1)
	bus.Register(event.TypeLog, func(ev event.Event) {
		received <- ev
	})

	b := New("test", bus)
	b.Start()
	defer b.Stop(time.Second)

	b.CallSoon(func() {
		b.EmitEvent(event.NewEvent(event.TypeLog, "from bridge"))
	})

	select {
	case ev := <-received:
		assert.Equal(t, "from bridge", ev.Data)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded to bus")
	}
}

func TestBridge_StopCompletesAllHandles(t *testing.T) {
	b := newTestBridge(t)

	var mu sync.Mutex
	var handles []*TaskHandle

	// 投递方与 Stop 并发竞跑，任何一次入队都不允许留下悬挂句柄
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h := b.Run(func(context.Context) (any, error) {
					return nil, nil
				})
				mu.Lock()
				handles = append(handles, h)
				mu.Unlock()
			}
		}()
	}

	time.Sleep(time.Millisecond)
	assert.True(t, b.Stop(time.Second))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("handle %d never completed", i)
		}
	}
}
