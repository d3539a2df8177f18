package engine

import (
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/pkg/concurrent"
)

// StateStore 最新状态只读缓存（CQRS 查询侧）
// 写入只发生在总线分发协程的处理函数里（单写者纪律）；
// 读取走 concurrent.Map，任意协程可读，返回的都是值副本
// 每个规范化 ID 恰好一条记录，last-write-wins，不保留历史
type StateStore struct {
	ticks     concurrent.Map[string, model.TickRecord]
	orders    concurrent.Map[string, model.OrderRecord]
	trades    concurrent.Map[string, model.TradeRecord]
	positions concurrent.Map[string, model.PositionRecord]
	accounts  concurrent.Map[string, model.AccountRecord]
	contracts concurrent.Map[string, model.ContractRecord]
	quotes    concurrent.Map[string, model.QuoteRecord]

	// 非终止子集，终止状态时剪除
	activeOrders concurrent.Map[string, model.OrderRecord]
	activeQuotes concurrent.Map[string, model.QuoteRecord]
}

// NewStateStore 创建缓存并把处理函数挂到总线上
func NewStateStore(bus *event.Bus) *StateStore {
	s := &StateStore{}

	bus.Register(event.TypeTick, s.processTick)
	bus.Register(event.TypeOrder, s.processOrder)
	bus.Register(event.TypeTrade, s.processTrade)
	bus.Register(event.TypePosition, s.processPosition)
	bus.Register(event.TypeAccount, s.processAccount)
	bus.Register(event.TypeContract, s.processContract)
	bus.Register(event.TypeQuote, s.processQuote)

	return s
}

func (s *StateStore) processTick(ev event.Event) {
	tick, ok := ev.Data.(model.TickRecord)
	if !ok {
		return
	}
	s.ticks.Store(tick.VTSymbol(), tick)
}

func (s *StateStore) processOrder(ev event.Event) {
	order, ok := ev.Data.(model.OrderRecord)
	if !ok {
		return
	}

	vtOrderID := order.VTOrderID()
	s.orders.Store(vtOrderID, order)

	if order.IsActive() {
		s.activeOrders.Store(vtOrderID, order)
	} else {
		s.activeOrders.Delete(vtOrderID)
	}
}

func (s *StateStore) processTrade(ev event.Event) {
	trade, ok := ev.Data.(model.TradeRecord)
	if !ok {
		return
	}
	s.trades.Store(trade.VTTradeID(), trade)
}

func (s *StateStore) processPosition(ev event.Event) {
	position, ok := ev.Data.(model.PositionRecord)
	if !ok {
		return
	}
	s.positions.Store(position.VTPositionID(), position)
}

func (s *StateStore) processAccount(ev event.Event) {
	account, ok := ev.Data.(model.AccountRecord)
	if !ok {
		return
	}
	s.accounts.Store(account.VTAccountID(), account)
}

func (s *StateStore) processContract(ev event.Event) {
	contract, ok := ev.Data.(model.ContractRecord)
	if !ok {
		return
	}
	s.contracts.Store(contract.VTSymbol(), contract)
}

func (s *StateStore) processQuote(ev event.Event) {
	quote, ok := ev.Data.(model.QuoteRecord)
	if !ok {
		return
	}

	vtQuoteID := quote.VTQuoteID()
	s.quotes.Store(vtQuoteID, quote)

	if quote.IsActive() {
		s.activeQuotes.Store(vtQuoteID, quote)
	} else {
		s.activeQuotes.Delete(vtQuoteID)
	}
}

// GetTick 按 vt_symbol 查询最新行情
func (s *StateStore) GetTick(vtSymbol string) (model.TickRecord, bool) {
	return s.ticks.Load(vtSymbol)
}

// GetOrder 按 vt_orderid 查询最新订单快照
func (s *StateStore) GetOrder(vtOrderID string) (model.OrderRecord, bool) {
	return s.orders.Load(vtOrderID)
}

// GetTrade 按 vt_tradeid 查询成交
func (s *StateStore) GetTrade(vtTradeID string) (model.TradeRecord, bool) {
	return s.trades.Load(vtTradeID)
}

// GetPosition 按 vt_positionid 查询持仓
func (s *StateStore) GetPosition(vtPositionID string) (model.PositionRecord, bool) {
	return s.positions.Load(vtPositionID)
}

// GetAccount 按 vt_accountid 查询账户
func (s *StateStore) GetAccount(vtAccountID string) (model.AccountRecord, bool) {
	return s.accounts.Load(vtAccountID)
}

// GetContract 按 vt_symbol 查询合约
func (s *StateStore) GetContract(vtSymbol string) (model.ContractRecord, bool) {
	return s.contracts.Load(vtSymbol)
}

// GetQuote 按 vt_quoteid 查询报价
func (s *StateStore) GetQuote(vtQuoteID string) (model.QuoteRecord, bool) {
	return s.quotes.Load(vtQuoteID)
}

// GetAllTicks 返回全部行情快照
func (s *StateStore) GetAllTicks() []model.TickRecord {
	return snapshot(&s.ticks)
}

// GetAllOrders 返回全部订单快照
func (s *StateStore) GetAllOrders() []model.OrderRecord {
	return snapshot(&s.orders)
}

// GetAllTrades 返回全部成交快照
func (s *StateStore) GetAllTrades() []model.TradeRecord {
	return snapshot(&s.trades)
}

// GetAllPositions 返回全部持仓快照
func (s *StateStore) GetAllPositions() []model.PositionRecord {
	return snapshot(&s.positions)
}

// GetAllAccounts 返回全部账户快照
func (s *StateStore) GetAllAccounts() []model.AccountRecord {
	return snapshot(&s.accounts)
}

// GetAllContracts 返回全部合约快照
func (s *StateStore) GetAllContracts() []model.ContractRecord {
	return snapshot(&s.contracts)
}

// GetAllQuotes 返回全部报价快照
func (s *StateStore) GetAllQuotes() []model.QuoteRecord {
	return snapshot(&s.quotes)
}

// GetAllActiveOrders 返回活动订单快照
func (s *StateStore) GetAllActiveOrders() []model.OrderRecord {
	return snapshot(&s.activeOrders)
}

// GetAllActiveQuotes 返回活动报价快照
func (s *StateStore) GetAllActiveQuotes() []model.QuoteRecord {
	return snapshot(&s.activeQuotes)
}

func snapshot[V any](m *concurrent.Map[string, V]) []V {
	out := make([]V, 0, m.Len())
	m.Range(func(_ string, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}
