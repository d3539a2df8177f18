package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/internal/ws"
)

func TestWSCodec_Frames(t *testing.T) {
	codec := &wsCodec{}
	sub := ws.Subscription{Channel: channelBookTicker, Symbol: "BTCUSDT"}

	frame := codec.SubscribeFrame(sub).(map[string]any)
	assert.Equal(t, "SUBSCRIBE", frame["method"])
	assert.Equal(t, []string{"btcusdt@bookTicker"}, frame["params"])

	unframe := codec.UnsubscribeFrame(sub).(map[string]any)
	assert.Equal(t, "UNSUBSCRIBE", unframe["method"])

	// 帧 id 单调递增
	assert.NotEqual(t, frame["id"], unframe["id"])
}

func TestUserCodec_NoFrames(t *testing.T) {
	codec := userCodec{}
	assert.Nil(t, codec.SubscribeFrame(ws.Subscription{Channel: "ORDER_TRADE_UPDATE"}))
	assert.Nil(t, codec.UnsubscribeFrame(ws.Subscription{Channel: "ORDER_TRADE_UPDATE"}))
}

func TestMarketKeyFunc(t *testing.T) {
	msg := []byte(`{"e":"bookTicker","s":"BTCUSDT","b":"100.1","a":"100.2"}`)
	assert.Equal(t, "bookTicker:BTCUSDT", marketKeyFunc(msg))

	// 订阅确认帧没有事件类型，走广播
	assert.Equal(t, "", marketKeyFunc([]byte(`{"result":null,"id":1}`)))
}

func TestUserKeyFunc(t *testing.T) {
	msg := []byte(`{"e":"ORDER_TRADE_UPDATE","o":{}}`)
	assert.Equal(t, "ORDER_TRADE_UPDATE", userKeyFunc(msg))

	assert.Equal(t, "", userKeyFunc([]byte(`{}`)))
}

func TestSubscriptionKeyMatchesKeyFunc(t *testing.T) {
	// 订阅键和路由键必须对得上，否则推送无人认领
	sub := ws.Subscription{Channel: channelAggTrade, Symbol: "ETHUSDT"}
	msg := []byte(`{"e":"aggTrade","s":"ETHUSDT","p":"2000.5","q":"0.3"}`)
	assert.Equal(t, sub.Key(), marketKeyFunc(msg))
}

func TestStatusMapCoversTerminalStates(t *testing.T) {
	assert.Equal(t, model.StatusNotTraded, statusMap["NEW"])
	assert.Equal(t, model.StatusPartTraded, statusMap["PARTIALLY_FILLED"])
	assert.Equal(t, model.StatusAllTraded, statusMap["FILLED"])
	assert.Equal(t, model.StatusCancelled, statusMap["CANCELED"])
	assert.Equal(t, model.StatusCancelled, statusMap["EXPIRED"])
	assert.Equal(t, model.StatusRejected, statusMap["REJECTED"])
}
