package binance

import (
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-trade-engine/internal/ws"
)

const (
	channelBookTicker = "bookTicker"
	channelAggTrade   = "aggTrade"
)

// wsCodec 把订阅集合编码成币安流订阅帧
type wsCodec struct {
	idSeq atomic.Int64
}

// streamName btcusdt@bookTicker 形式的流名
func streamName(sub ws.Subscription) string {
	return strings.ToLower(sub.Symbol) + "@" + sub.Channel
}

func (c *wsCodec) SubscribeFrame(sub ws.Subscription) any {
	return map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{streamName(sub)},
		"id":     c.idSeq.Add(1),
	}
}

func (c *wsCodec) UnsubscribeFrame(sub ws.Subscription) any {
	return map[string]any{
		"method": "UNSUBSCRIBE",
		"params": []string{streamName(sub)},
		"id":     c.idSeq.Add(1),
	}
}

// userCodec 用户数据流按 listenKey 建立，不存在订阅帧
type userCodec struct{}

func (userCodec) SubscribeFrame(ws.Subscription) any   { return nil }
func (userCodec) UnsubscribeFrame(ws.Subscription) any { return nil }

// userKeyFunc 用户流按事件类型路由
func userKeyFunc(msg []byte) string {
	eventType := gjson.GetBytes(msg, "e").String()
	if eventType == "" {
		return ""
	}
	return ws.Subscription{Channel: eventType}.Key()
}

// marketKeyFunc 把行情推送映射回订阅键 channel:SYMBOL
// 订阅确认帧等无法归属的消息返回空串走广播
func marketKeyFunc(msg []byte) string {
	body := gjson.ParseBytes(msg)

	eventType := body.Get("e").String()
	symbol := body.Get("s").String()
	if eventType == "" || symbol == "" {
		return ""
	}

	return ws.Subscription{Channel: eventType, Symbol: symbol}.Key()
}
