package event

// 事件类型常量
// 实体事件会在基础类型之外，追加以规范化 ID 结尾的定点类型
// 例如 "eTick." + vt_symbol，便于订阅方免过滤地做点订阅
const (
	TypeTick     = "eTick."
	TypeTrade    = "eTrade."
	TypeOrder    = "eOrder."
	TypePosition = "ePosition."
	TypeAccount  = "eAccount."
	TypeContract = "eContract."
	TypeQuote    = "eQuote."
	TypeLog      = "eLog"
	TypeTimer    = "eTimer"
)

// Event 总线上的一条事件，发布后不可变
type Event struct {
	Type string
	Data any
}

// NewEvent 创建事件
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// Handler 事件处理函数，在分发协程上同步执行
type Handler func(Event)
