package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
)

// newStoreWithBus 启动一条真实总线并挂好缓存
func newStoreWithBus(t *testing.T) (*StateStore, *event.Bus) {
	t.Helper()

	bus := event.NewBus()
	store := NewStateStore(bus)
	bus.Start()
	t.Cleanup(bus.Stop)

	return store, bus
}

func TestStore_TickLastWriteWins(t *testing.T) {
	store, bus := newStoreWithBus(t)

	tick1 := model.TickRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, LastPrice: 100}
	tick2 := model.TickRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, LastPrice: 200}

	bus.Put(event.NewEvent(event.TypeTick, tick1))
	bus.Put(event.NewEvent(event.TypeTick, tick2))

	// 同一 vt_symbol 恰好一条记录，后写覆盖
	assert.Eventually(t, func() bool {
		tick, ok := store.GetTick("BTCUSDT.BINANCE")
		return ok && tick.LastPrice == 200
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, store.GetAllTicks(), 1)
}

func TestStore_ActiveOrderPruning(t *testing.T) {
	store, bus := newStoreWithBus(t)

	order := model.OrderRecord{
		AdapterName: "binance",
		Symbol:      "BTCUSDT",
		Exchange:    model.ExchangeBinance,
		OrderID:     "1",
		Volume:      10,
		Status:      model.StatusNotTraded,
	}
	bus.Put(event.NewEvent(event.TypeOrder, order))

	assert.Eventually(t, func() bool {
		return len(store.GetAllActiveOrders()) == 1
	}, time.Second, 5*time.Millisecond)

	// 终止状态后从活动集合剪除，但完整缓存保留
	order.Status = model.StatusAllTraded
	order.Traded = 10
	bus.Put(event.NewEvent(event.TypeOrder, order))

	assert.Eventually(t, func() bool {
		return len(store.GetAllActiveOrders()) == 0
	}, time.Second, 5*time.Millisecond)

	stored, ok := store.GetOrder("binance.1")
	assert.True(t, ok)
	assert.Equal(t, model.StatusAllTraded, stored.Status)
}

func TestStore_ValueCopies(t *testing.T) {
	store, bus := newStoreWithBus(t)

	bus.Put(event.NewEvent(event.TypeAccount, model.NewAccountRecord("binance", "USDT", 1000, 100)))

	assert.Eventually(t, func() bool {
		_, ok := store.GetAccount("binance.USDT")
		return ok
	}, time.Second, 5*time.Millisecond)

	// 修改返回值不影响缓存内容
	account, _ := store.GetAccount("binance.USDT")
	account.Balance = 0

	again, _ := store.GetAccount("binance.USDT")
	assert.Equal(t, 1000.0, again.Balance)
	assert.Equal(t, 900.0, again.Available)
}

func TestStore_MultipleEntities(t *testing.T) {
	store, bus := newStoreWithBus(t)

	bus.Put(event.NewEvent(event.TypeTrade, model.TradeRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, OrderID: "1", TradeID: "7", Price: 100, Volume: 1}))
	bus.Put(event.NewEvent(event.TypePosition, model.PositionRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, Direction: model.DirectionNet, Volume: 1}))
	bus.Put(event.NewEvent(event.TypeContract, model.ContractRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, PriceTick: 0.1}))

	assert.Eventually(t, func() bool {
		_, okTrade := store.GetTrade("binance.7")
		_, okPos := store.GetPosition("binance.BTCUSDT.BINANCE.NET")
		_, okContract := store.GetContract("BTCUSDT.BINANCE")
		return okTrade && okPos && okContract
	}, time.Second, 5*time.Millisecond)
}

func TestStore_ActiveQuotePruning(t *testing.T) {
	store, bus := newStoreWithBus(t)

	quote := model.QuoteRecord{AdapterName: "mm", Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, QuoteID: "q1", Status: model.StatusNotTraded}
	bus.Put(event.NewEvent(event.TypeQuote, quote))

	assert.Eventually(t, func() bool {
		return len(store.GetAllActiveQuotes()) == 1
	}, time.Second, 5*time.Millisecond)

	quote.Status = model.StatusCancelled
	bus.Put(event.NewEvent(event.TypeQuote, quote))

	assert.Eventually(t, func() bool {
		return len(store.GetAllActiveQuotes()) == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := store.GetQuote("mm.q1")
	assert.True(t, ok)
}

func TestStore_IgnoresForeignPayload(t *testing.T) {
	store, bus := newStoreWithBus(t)

	// 载荷类型不匹配的事件被安静忽略
	bus.Put(event.NewEvent(event.TypeTick, "not a tick"))
	bus.Put(event.NewEvent(event.TypeOrder, 42))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, store.GetAllTicks())
	assert.Empty(t, store.GetAllOrders())
}
