package ws

import (
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// laneItem 一条待派发的报文及派发瞬间快照下来的回调集
type laneItem struct {
	cbs []Callback
	msg []byte
}

// lane 单个路由键的串行通道
// 同一时刻最多一个排空协程在跑，保证同键报文按入队顺序执行
type lane struct {
	queue []laneItem
	busy  bool
}

// Dispatcher 消息分发器
// 按路由键把原始报文派发到订阅回调；每个键一条串行通道，
// 不同键的通道在 ants 协程池上并行，池满降级同步排空
type Dispatcher struct {
	sup   *Supervisor
	pool  *ants.Pool
	keyFn KeyFunc

	mu    sync.Mutex
	lanes map[string]*lane
}

// NewDispatcher 创建分发器
func NewDispatcher(sup *Supervisor, poolSize int, keyFn KeyFunc) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 1000
	}
	pool, _ := ants.NewPool(poolSize)
	return &Dispatcher{
		sup:   sup,
		pool:  pool,
		keyFn: keyFn,
		lanes: make(map[string]*lane),
	}
}

// Dispatch 处理收到的消息
func (d *Dispatcher) Dispatch(msg []byte) error {
	key := d.keyFn(msg)
	if key == "" {
		// 无法路由的报文广播给所有订阅
		d.broadcast(msg)
		return nil
	}

	d.dispatchToKey(key, msg)
	return nil
}

// dispatchToKey 分发到指定键的订阅
func (d *Dispatcher) dispatchToKey(key string, msg []byte) {
	callbacks := d.sup.callbacksByKey(key)
	if len(callbacks) == 0 {
		return
	}

	d.enqueue(key, laneItem{cbs: callbacks, msg: msg})
}

// broadcast 广播给所有订阅，走独立的串行通道
func (d *Dispatcher) broadcast(msg []byte) {
	callbacks := d.sup.allCallbacks()
	if len(callbacks) == 0 {
		return
	}

	d.enqueue("(broadcast)", laneItem{cbs: callbacks, msg: msg})
}

// enqueue 把报文追加到键的串行通道，必要时启动排空协程
// 入队由单个 readPump 协程驱动，追加顺序即到达顺序
func (d *Dispatcher) enqueue(key string, item laneItem) {
	d.mu.Lock()
	l, ok := d.lanes[key]
	if !ok {
		l = &lane{}
		d.lanes[key] = l
	}
	l.queue = append(l.queue, item)
	if l.busy {
		d.mu.Unlock()
		return
	}
	l.busy = true
	d.mu.Unlock()

	if err := d.pool.Submit(func() { d.drainLane(l, key) }); err != nil {
		// ants.ErrPoolOverload
		// 降级：同步排空。此时不持有任何锁，只会阻塞当前 readPump，不会死锁
		logger.Warn().
			Err(err).
			Str("key", key).
			Msg("dispatcher pool full, draining synchronously")

		d.drainLane(l, key)
	}
}

// drainLane 按序排空一条通道
// 每个回调独立执行互不影响，一个回调的失败不会波及同键的其它回调
func (d *Dispatcher) drainLane(l *lane, key string) {
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			l.busy = false
			d.mu.Unlock()
			return
		}
		item := l.queue[0]
		l.queue = l.queue[1:]
		d.mu.Unlock()

		for _, cb := range item.cbs {
			if err := cb(item.msg); err != nil {
				logger.Error().Err(err).
					Str("key", key).
					Msg("callback error")
			}
		}
	}
}

// Close 关闭分发器
func (d *Dispatcher) Close() {
	if d.pool != nil {
		d.pool.Release()
	}
}
