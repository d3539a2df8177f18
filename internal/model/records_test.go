package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeVTSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT.BINANCE", MakeVTSymbol("BTCUSDT", ExchangeBinance))
	assert.Equal(t, "ETHUSDT.PAPER", MakeVTSymbol("ETHUSDT", ExchangePaper))
}

func TestCanonicalIDs(t *testing.T) {
	order := OrderRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: ExchangeBinance, OrderID: "42"}
	assert.Equal(t, "binance.42", order.VTOrderID())
	assert.Equal(t, "BTCUSDT.BINANCE", order.VTSymbol())

	trade := TradeRecord{AdapterName: "binance", OrderID: "42", TradeID: "7"}
	assert.Equal(t, "binance.7", trade.VTTradeID())
	assert.Equal(t, "binance.42", trade.VTOrderID())

	pos := PositionRecord{AdapterName: "binance", Symbol: "BTCUSDT", Exchange: ExchangeBinance, Direction: DirectionNet}
	assert.Equal(t, "binance.BTCUSDT.BINANCE.NET", pos.VTPositionID())

	account := AccountRecord{AdapterName: "binance", AccountID: "USDT"}
	assert.Equal(t, "binance.USDT", account.VTAccountID())
}

func TestNewAccountRecord(t *testing.T) {
	// Available 由 Balance - Frozen 重算，不信任上游
	account := NewAccountRecord("binance", "USDT", 1000, 300)
	assert.Equal(t, 700.0, account.Available)
}

func TestCreateOrderRecord(t *testing.T) {
	req := OrderRequest{
		Symbol:    "BTCUSDT",
		Exchange:  ExchangeBinance,
		Direction: DirectionLong,
		Type:      OrderTypeLimit,
		Volume:    2,
		Price:     50000,
	}

	order := req.CreateOrderRecord("binance", "1")
	assert.Equal(t, StatusSubmitting, order.Status)
	assert.Equal(t, "binance.1", order.VTOrderID())
	assert.Equal(t, 0.0, order.Traded)
	assert.False(t, order.Datetime.IsZero())
}

func TestCreateCancelRequest(t *testing.T) {
	order := OrderRecord{Symbol: "BTCUSDT", Exchange: ExchangeBinance, OrderID: "1"}
	cancel := order.CreateCancelRequest()
	assert.Equal(t, "BTCUSDT", cancel.Symbol)
	assert.Equal(t, "1", cancel.OrderID)
}

func TestStatusTransitions(t *testing.T) {
	// 前向转移，允许跳过中间状态
	assert.True(t, StatusSubmitting.CanTransitionTo(StatusNotTraded))
	assert.True(t, StatusSubmitting.CanTransitionTo(StatusAllTraded))
	assert.True(t, StatusNotTraded.CanTransitionTo(StatusPartTraded))
	assert.True(t, StatusPartTraded.CanTransitionTo(StatusAllTraded))

	// REJECTED 只能来自 SUBMITTING
	assert.True(t, StatusSubmitting.CanTransitionTo(StatusRejected))
	assert.False(t, StatusNotTraded.CanTransitionTo(StatusRejected))

	// CANCELLED 只能来自挂单中的状态
	assert.True(t, StatusNotTraded.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusPartTraded.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusSubmitting.CanTransitionTo(StatusCancelled))

	// 倒退非法
	assert.False(t, StatusPartTraded.CanTransitionTo(StatusNotTraded))
	assert.False(t, StatusAllTraded.CanTransitionTo(StatusPartTraded))

	// 终止态没有出边
	for _, terminal := range []Status{StatusAllTraded, StatusCancelled, StatusRejected} {
		for _, next := range []Status{StatusSubmitting, StatusNotTraded, StatusPartTraded, StatusAllTraded, StatusCancelled, StatusRejected} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}

	// 同活动状态允许重复更新
	assert.True(t, StatusPartTraded.CanTransitionTo(StatusPartTraded))
	assert.False(t, StatusAllTraded.CanTransitionTo(StatusAllTraded))
}

func TestStatusActive(t *testing.T) {
	assert.True(t, StatusSubmitting.IsActive())
	assert.True(t, StatusNotTraded.IsActive())
	assert.True(t, StatusPartTraded.IsActive())
	assert.False(t, StatusAllTraded.IsActive())
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusRejected.IsActive())

	assert.True(t, StatusAllTraded.IsTerminal())
	assert.False(t, StatusSubmitting.IsTerminal())
}
