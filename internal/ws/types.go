package ws

// Subscription 一条流式订阅请求
type Subscription struct {
	Channel string // 频道，如 trade / depth / userData
	Symbol  string // 标的，可为空（账户类频道）
}

// Key 返回订阅的唯一键
func (s Subscription) Key() string {
	if s.Symbol != "" {
		return s.Channel + ":" + s.Symbol
	}
	return s.Channel
}

// Callback 消息回调函数，入参是原始报文
type Callback func(msg []byte) error

// KeyFunc 从原始报文提取路由键
type KeyFunc func(msg []byte) string
