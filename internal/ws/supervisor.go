package ws

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// Conn 受监护的底层连接
type Conn interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	WriteJSON(v any) error
	SetMessageHandler(handler func(msg []byte) error)
	SetDisconnectCallback(callback func())
}

// Codec 把订阅请求编码成交易所的订阅/退订帧
type Codec interface {
	SubscribeFrame(sub Subscription) any
	UnsubscribeFrame(sub Subscription) any
}

// Config 监护器配置
type Config struct {
	Name                 string        // 适配器名，用于日志和指标
	URL                  string
	Proxy                string        // SOCKS5 代理，可为空
	MaxReconnectAttempts int           // 重连次数上限
	ReconnectDelay       time.Duration // 初始重连间隔
	MaxReconnectDelay    time.Duration // 重连间隔上限
	HeartbeatTimeout     time.Duration // 无消息判定为僵死的窗口
	Codec                Codec
	Dial                 func() Conn // 为空时使用默认 ws Client
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 60 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 90 * time.Second
	}
	if c.Dial == nil {
		c.Dial = func() Conn {
			client := NewClient(c.URL)
			if c.Proxy != "" {
				client.SetProxy(c.Proxy)
			}
			return client
		}
	}
}

// watchEntry 一条期望订阅及其回调
type watchEntry struct {
	subscription Subscription
	callbacks    map[int64]Callback
}

// WatchHandle 订阅句柄
type WatchHandle struct {
	id  int64
	key string
	sup *Supervisor
}

// Unsubscribe 取消这一份订阅
func (h *WatchHandle) Unsubscribe() error {
	return h.sup.removeSubscription(h.key, h.id)
}

// Supervisor 单条流式连接的监护器
// 拥有期望订阅集、心跳与重连策略；每次重连整体重放订阅集；
// 各标的的回调互相独立，一个失败不会取消其它
type Supervisor struct {
	cfg        Config
	dispatcher *Dispatcher

	mu   sync.Mutex // 保护 conn 的替换
	conn Conn

	subsMu sync.RWMutex
	subs   map[string]*watchEntry

	state         atomic.Int32
	lastHeartbeat atomic.Int64
	closed        atomic.Bool
	callbackIDSeq atomic.Int64

	reconnectMu sync.Mutex // 保证同一时间只有一个重连过程在跑

	monitorDone chan struct{}
	monitorOnce sync.Once

	// 降级/恢复通知，重连次数耗尽时上报给适配器
	OnDegraded  func()
	OnRecovered func()
}

// NewSupervisor 创建监护器
func NewSupervisor(cfg Config, keyFn KeyFunc) *Supervisor {
	cfg.applyDefaults()

	s := &Supervisor{
		cfg:         cfg,
		subs:        make(map[string]*watchEntry),
		monitorDone: make(chan struct{}),
	}
	s.dispatcher = NewDispatcher(s, 1000, keyFn)
	s.setState(model.StateDisconnected)
	return s
}

// State 当前连接状态
func (s *Supervisor) State() model.ConnectionState {
	return model.ConnectionState(s.state.Load())
}

func (s *Supervisor) setState(state model.ConnectionState) {
	old := model.ConnectionState(s.state.Swap(int32(state)))
	if old != state {
		monitor.SetConnectionState(s.cfg.Name, int32(state))
		logger.Info().
			Str("adapter", s.cfg.Name).
			Str("from", old.String()).
			Str("to", state.String()).
			Msg("connection state changed")
	}
}

// Connect 建立连接并重放期望订阅集
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.State() == model.StateConnected {
		return nil
	}

	s.closed.Store(false)
	s.setState(model.StateConnecting)

	if err := s.dial(ctx); err != nil {
		s.setState(model.StateDisconnected)
		return err
	}

	s.setState(model.StateConnected)
	s.UpdateHeartbeat()
	s.replaySubscriptions()

	s.monitorOnce.Do(func() {
		goplus.Go(s.heartbeatMonitor)
	})

	return nil
}

// dial 建立一条新连接并挂载回调
func (s *Supervisor) dial(ctx context.Context) error {
	conn := s.cfg.Dial()

	conn.SetMessageHandler(func(msg []byte) error {
		s.UpdateHeartbeat()
		return s.dispatcher.Dispatch(msg)
	})
	conn.SetDisconnectCallback(func() {
		go s.handleDisconnect()
	})

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	return nil
}

// IsConnected 底层连接是否存活
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Subscribe 把订阅加入期望集并（已连接时）下发订阅帧
// 同一 key 允许多个回调，网络订阅只发一次
func (s *Supervisor) Subscribe(sub Subscription, callback Callback) (*WatchHandle, error) {
	key := sub.Key()
	handleID := s.callbackIDSeq.Add(1)

	s.subsMu.Lock()
	entry, exists := s.subs[key]
	if exists {
		entry.callbacks[handleID] = callback
		s.subsMu.Unlock()
		return &WatchHandle{id: handleID, key: key, sup: s}, nil
	}

	s.subs[key] = &watchEntry{
		subscription: sub,
		callbacks:    map[int64]Callback{handleID: callback},
	}
	count := len(s.subs)
	s.subsMu.Unlock()

	monitor.SetSubscriptionsActive(s.cfg.Name, count)

	// 锁外下发网络订阅
	if s.IsConnected() {
		if err := s.writeFrame(s.cfg.Codec.SubscribeFrame(sub)); err != nil {
			// 回滚
			s.subsMu.Lock()
			delete(s.subs, key)
			s.subsMu.Unlock()
			return nil, err
		}
	}

	return &WatchHandle{id: handleID, key: key, sup: s}, nil
}

// removeSubscription 内部取消逻辑
// 最后一个回调移除时才发退订帧
func (s *Supervisor) removeSubscription(key string, handleID int64) error {
	s.subsMu.Lock()
	entry, exists := s.subs[key]
	if !exists {
		s.subsMu.Unlock()
		return nil
	}

	delete(entry.callbacks, handleID)
	if len(entry.callbacks) > 0 {
		s.subsMu.Unlock()
		return nil
	}

	sub := entry.subscription
	delete(s.subs, key)
	count := len(s.subs)
	s.subsMu.Unlock()

	monitor.SetSubscriptionsActive(s.cfg.Name, count)

	if s.IsConnected() {
		_ = s.writeFrame(s.cfg.Codec.UnsubscribeFrame(sub))
	}

	logger.Info().Str("adapter", s.cfg.Name).Str("key", key).Msg("unsubscribed")
	return nil
}

// SubscriptionKeys 返回期望订阅集的键
func (s *Supervisor) SubscriptionKeys() []string {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	keys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		keys = append(keys, key)
	}
	return keys
}

// SubscriptionCount 期望订阅数量
func (s *Supervisor) SubscriptionCount() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

// UpdateHeartbeat 记录最后一条消息时间
// 即使传输层自认为健康，也能据此发现数据僵死
func (s *Supervisor) UpdateHeartbeat() {
	s.lastHeartbeat.Store(time.Now().UnixNano())
}

// HeartbeatAge 距最后一条消息的时长
func (s *Supervisor) HeartbeatAge() time.Duration {
	last := s.lastHeartbeat.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// heartbeatMonitor 周期检查数据僵死，僵死时强制断开触发重连
func (s *Supervisor) heartbeatMonitor() {
	interval := s.cfg.HeartbeatTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.monitorDone:
			return
		case <-ticker.C:
			if s.State() != model.StateConnected {
				continue
			}
			if s.HeartbeatAge() > s.cfg.HeartbeatTimeout {
				logger.Warn().
					Str("adapter", s.cfg.Name).
					Dur("age", s.HeartbeatAge()).
					Msg("heartbeat stale, forcing reconnect")

				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					conn.Close() // 触发断开回调 → handleDisconnect
				}
			}
		}
	}
}

// handleDisconnect 断开回调入口，防并发重连风暴
func (s *Supervisor) handleDisconnect() {
	if s.closed.Load() {
		return
	}

	if !s.reconnectMu.TryLock() {
		return
	}
	defer s.reconnectMu.Unlock()

	s.setState(model.StateError)
	s.HandleReconnection()
}

// HandleReconnection 有界重连：次数上限内按递增（带抖动、封顶）间隔重试，
// 每次成功后整体重放期望订阅集；耗尽后置 ERROR 并向上报告降级
func (s *Supervisor) HandleReconnection() {
	if s.closed.Load() {
		return
	}

	delay := s.cfg.ReconnectDelay

	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		if s.closed.Load() {
			return
		}

		s.setState(model.StateReconnecting)
		monitor.IncReconnectAttempt(s.cfg.Name)

		// 抖动范围 [0.5, 1.5) * delay，避免惊群
		jitter := time.Duration(float64(delay) * (0.5 + rand.Float64()))
		logger.Warn().
			Str("adapter", s.cfg.Name).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("reconnecting")

		time.Sleep(jitter)

		s.setState(model.StateConnecting)
		if err := s.dial(context.Background()); err != nil {
			logger.Error().Err(err).
				Str("adapter", s.cfg.Name).
				Int("attempt", attempt).
				Msg("reconnect failed")

			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
			continue
		}

		s.setState(model.StateConnected)
		s.UpdateHeartbeat()
		s.replaySubscriptions()

		logger.Info().
			Str("adapter", s.cfg.Name).
			Int("attempt", attempt).
			Msg("reconnected successfully")

		if s.OnRecovered != nil {
			s.OnRecovered()
		}
		return
	}

	// 次数耗尽，显式降级而不是静默提供陈旧数据
	s.setState(model.StateError)
	logger.Error().
		Str("adapter", s.cfg.Name).
		Int("max_attempts", s.cfg.MaxReconnectAttempts).
		Msg("reconnect attempts exhausted, degrading")

	if s.OnDegraded != nil {
		s.OnDegraded()
	}
}

// replaySubscriptions 把期望订阅集整体重放到当前连接
func (s *Supervisor) replaySubscriptions() {
	s.subsMu.RLock()
	subs := make([]Subscription, 0, len(s.subs))
	for _, entry := range s.subs {
		subs = append(subs, entry.subscription)
	}
	s.subsMu.RUnlock()

	for _, sub := range subs {
		if err := s.writeFrame(s.cfg.Codec.SubscribeFrame(sub)); err != nil {
			logger.Error().Err(err).
				Str("adapter", s.cfg.Name).
				Str("key", sub.Key()).
				Msg("resubscribe failed")
		}
	}

	if len(subs) > 0 {
		logger.Info().
			Str("adapter", s.cfg.Name).
			Int("count", len(subs)).
			Msg("subscriptions replayed")
	}
}

func (s *Supervisor) writeFrame(frame any) error {
	// 部分流（例如用户数据流）不需要订阅帧
	if frame == nil {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}
	return conn.WriteJSON(frame)
}

// Disconnect 显式关闭：取消在途 watch 任务并干净拆除
func (s *Supervisor) Disconnect() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	close(s.monitorDone)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	s.dispatcher.Close()
	s.setState(model.StateDisconnected)

	logger.Info().Str("adapter", s.cfg.Name).Msg("supervisor disconnected")
}

// callbacksByKey 安全获取回调副本（分发器用）
func (s *Supervisor) callbacksByKey(key string) []Callback {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	entry, exists := s.subs[key]
	if !exists || len(entry.callbacks) == 0 {
		return nil
	}

	cbs := make([]Callback, 0, len(entry.callbacks))
	for _, cb := range entry.callbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

// allCallbacks 所有订阅的回调副本（广播用）
func (s *Supervisor) allCallbacks() []Callback {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	var cbs []Callback
	for _, entry := range s.subs {
		for _, cb := range entry.callbacks {
			cbs = append(cbs, cb)
		}
	}
	return cbs
}
