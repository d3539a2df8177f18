package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

// Publisher 总线事件对外转发器
// 挂在总线的基础类型事件上，把记录序列化后发布到 NATS；
// 发布失败只记录，绝不反压调度协程
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			monitor.SetNATSConnected(true)
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	monitor.SetNATSConnected(true)

	return &Publisher{Conn: conn}, nil
}

// Attach 把转发器挂到总线的基础类型事件上
// 只挂基础类型，定点类型事件不重复外发
func (p *Publisher) Attach(bus *event.Bus) {
	for _, eventType := range []string{
		event.TypeTick,
		event.TypeOrder,
		event.TypeTrade,
		event.TypePosition,
		event.TypeAccount,
		event.TypeLog,
	} {
		bus.Register(eventType, p.forward)
	}
}

// forward 总线处理器：序列化并发布
func (p *Publisher) forward(ev event.Event) {
	if !p.IsConnected() {
		return
	}

	subject, payload, err := encode(ev)
	if err != nil {
		logger.Error().Err(err).Str("type", ev.Type).Msg("encode event failed")
		return
	}
	if subject == "" {
		return
	}

	if err := p.Publish(subject, payload); err != nil {
		logger.Error().Err(err).Str("subject", subject).Msg("publish event failed")
	}
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		p.Conn.Close()
	}
	return nil
}
