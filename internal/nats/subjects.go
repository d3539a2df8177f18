package nats

import (
	"encoding/json"
	"time"

	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
)

// 对外主题前缀，按记录类型分层，消费端可用通配符订阅
const (
	SubjectTick     = "trade.engine.tick"
	SubjectOrder    = "trade.engine.order"
	SubjectTrade    = "trade.engine.trade"
	SubjectPosition = "trade.engine.position"
	SubjectAccount  = "trade.engine.account"
	SubjectLog      = "trade.engine.log"
)

// Envelope 对外消息封皮
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// encode 事件 → (主题, JSON 载荷)
// 无法映射的事件类型返回空主题，调用方跳过
func encode(ev event.Event) (string, []byte, error) {
	var subject string

	switch data := ev.Data.(type) {
	case model.TickRecord:
		subject = SubjectTick + "." + data.VTSymbol()
	case model.OrderRecord:
		subject = SubjectOrder + "." + data.VTOrderID()
	case model.TradeRecord:
		subject = SubjectTrade + "." + data.VTTradeID()
	case model.PositionRecord:
		subject = SubjectPosition + "." + data.VTPositionID()
	case model.AccountRecord:
		subject = SubjectAccount + "." + data.VTAccountID()
	case model.LogRecord:
		subject = SubjectLog
	default:
		return "", nil, nil
	}

	payload, err := json.Marshal(Envelope{
		Type:      ev.Type,
		Timestamp: time.Now().UnixMilli(),
		Data:      ev.Data,
	})
	if err != nil {
		return "", nil, err
	}
	return subject, payload, nil
}
