package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-trade-engine/internal/adapter"
	"github.com/utrading/utrading-trade-engine/internal/bridge"
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/internal/ws"
	"github.com/utrading/utrading-trade-engine/pkg/goplus"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

const (
	mainnetWSURL = "wss://fstream.binance.com/ws"
	testnetWSURL = "wss://stream.binancefuture.com/ws"

	connectTimeout    = 10 * time.Second
	listenKeyInterval = 30 * time.Minute
	defaultPollEvery  = 5 * time.Second
)

// Adapter 币安 U 本位合约适配器
// REST 负责下单撤单和快照，两条 ws 流分别承载行情和用户数据，
// 厂商回调统一经桥协程串行化后再上报事件
type Adapter struct {
	*adapter.BaseAdapter

	rest      *restClient
	marketSup *ws.Supervisor
	userSup   *ws.Supervisor
	br        *bridge.Bridge

	// 用户流推送去重：重连后交易所可能重放执行回报
	dedup *gocache.Cache

	connected atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once

	// 只在桥协程上读写
	ticks map[string]*model.TickRecord

	subMu      sync.Mutex
	subscribed map[string]model.SubscribeRequest

	// 本地单号 → 客户端订单号前缀，重启后不与历史单冲突
	orderPrefix string

	pollMu       sync.Mutex
	pollCancel   context.CancelFunc
	pollInterval time.Duration
}

var _ adapter.Adapter = (*Adapter)(nil)

// New 适配器构造函数
func New(bus *event.Bus, name string) adapter.Adapter {
	return &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(bus, name),
		br:          bridge.New(name, bus),
		dedup:       gocache.New(5*time.Minute, 10*time.Minute),
		stopCh:      make(chan struct{}),
		ticks:       make(map[string]*model.TickRecord),
		subscribed:  make(map[string]model.SubscribeRequest),
		orderPrefix: time.Now().Format("20060102150405") + "-",
	}
}

func (a *Adapter) Exchanges() []model.Exchange {
	return []model.Exchange{model.ExchangeBinance}
}

func (a *Adapter) DefaultSettings() map[string]any {
	return map[string]any{
		"key":           "",
		"secret":        "",
		"sandbox":       false,
		"proxy_host":    "",
		"proxy_port":    0,
		"max_reconnect": 10,
		"poll_interval": 5,
	}
}

// Connect 建连：先 REST 探测，后拉参考数据和快照，最后挂两条 ws 流
// 配置类错误直接返回，不留半开句柄
func (a *Adapter) Connect(settings map[string]any) error {
	key := cast.ToString(settings["key"])
	secret := cast.ToString(settings["secret"])
	if key == "" || secret == "" {
		return fmt.Errorf("binance adapter requires key and secret")
	}

	sandbox := cast.ToBool(settings["sandbox"])
	proxyHost := cast.ToString(settings["proxy_host"])
	proxyPort := cast.ToInt(settings["proxy_port"])
	maxReconnect := cast.ToInt(settings["max_reconnect"])
	pollSeconds := cast.ToInt(settings["poll_interval"])
	if pollSeconds <= 0 {
		pollSeconds = int(defaultPollEvery / time.Second)
	}
	a.pollInterval = time.Duration(pollSeconds) * time.Second

	proxy := ""
	if proxyHost != "" && proxyPort > 0 {
		proxy = fmt.Sprintf("%s:%d", proxyHost, proxyPort)
	}

	a.rest = newRESTClient(key, secret, sandbox)
	if err := a.rest.Ping(); err != nil {
		return fmt.Errorf("rest connectivity probe failed: %w", err)
	}

	listenKey, err := a.rest.CreateListenKey()
	if err != nil {
		return fmt.Errorf("create listen key failed: %w", err)
	}

	wsURL := mainnetWSURL
	if sandbox {
		wsURL = testnetWSURL
	}

	codec := &wsCodec{}
	a.marketSup = ws.NewSupervisor(ws.Config{
		Name:                 a.Name() + ".market",
		URL:                  wsURL,
		Proxy:                proxy,
		MaxReconnectAttempts: maxReconnect,
		Codec:                codec,
	}, marketKeyFunc)
	a.marketSup.OnDegraded = a.startPolling
	a.marketSup.OnRecovered = a.stopPolling

	a.userSup = ws.NewSupervisor(ws.Config{
		Name:                 a.Name() + ".user",
		URL:                  wsURL + "/" + listenKey,
		Proxy:                proxy,
		MaxReconnectAttempts: maxReconnect,
		Codec:                userCodec{},
	}, userKeyFunc)
	a.userSup.OnDegraded = a.startPolling
	a.userSup.OnRecovered = a.stopPolling

	// 用户流按事件类型路由，订阅帧为空帧
	if _, err := a.userSup.Subscribe(ws.Subscription{Channel: "ORDER_TRADE_UPDATE"}, a.onOrderUpdate); err != nil {
		return err
	}
	if _, err := a.userSup.Subscribe(ws.Subscription{Channel: "ACCOUNT_UPDATE"}, a.onAccountUpdate); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := a.marketSup.Connect(ctx); err != nil {
		return fmt.Errorf("market stream connect failed: %w", err)
	}
	if err := a.userSup.Connect(ctx); err != nil {
		a.marketSup.Disconnect()
		return fmt.Errorf("user stream connect failed: %w", err)
	}

	a.br.Start()
	a.connected.Store(true)

	goplus.Go(a.keepAliveLoop)
	goplus.Go(func() {
		a.publishContracts()
		a.QueryAccount()
		a.QueryPosition()
	})

	a.WriteLog("binance adapter connected")
	return nil
}

// Close 拆除连接；适配器实例不可复用
func (a *Adapter) Close() {
	a.stopOnce.Do(func() {
		a.connected.Store(false)
		close(a.stopCh)
		a.stopPolling()

		if a.marketSup != nil {
			a.marketSup.Disconnect()
		}
		if a.userSup != nil {
			a.userSup.Disconnect()
		}

		if !a.br.Stop(5 * time.Second) {
			logger.Warn().Str("adapter", a.Name()).Msg("bridge did not stop cleanly")
		}
	})
}

// Subscribe 同时订阅最优价和归集成交两条流，合成一张行情快照
func (a *Adapter) Subscribe(req model.SubscribeRequest) error {
	if !a.connected.Load() {
		return fmt.Errorf("binance adapter not connected")
	}

	symbol := strings.ToUpper(req.Symbol)
	bookHandle, err := a.marketSup.Subscribe(ws.Subscription{Channel: channelBookTicker, Symbol: symbol}, a.onMarketMessage)
	if err != nil {
		return err
	}
	if _, err := a.marketSup.Subscribe(ws.Subscription{Channel: channelAggTrade, Symbol: symbol}, a.onMarketMessage); err != nil {
		// 第二条流失败时回滚第一条，不留半订阅状态
		if rbErr := bookHandle.Unsubscribe(); rbErr != nil {
			logger.Warn().Err(rbErr).Str("symbol", symbol).Msg("rollback bookTicker subscription failed")
		}
		return err
	}

	a.subMu.Lock()
	a.subscribed[req.Symbol] = req
	a.subMu.Unlock()
	return nil
}

// SendOrder 先本地分配单号并发布 SUBMITTING 快照，REST 调用在桥协程上异步执行
// 未连接时返回空串且不产生任何订单记录
func (a *Adapter) SendOrder(req model.OrderRequest) string {
	if !a.connected.Load() {
		logger.Warn().Str("adapter", a.Name()).Msg("send order on disconnected adapter")
		return ""
	}

	side, ok := directionMapReverse[req.Direction]
	if !ok {
		logger.Warn().Str("adapter", a.Name()).Str("direction", string(req.Direction)).Msg("unsupported direction")
		return ""
	}
	orderType, ok := orderTypeMapReverse[req.Type]
	if !ok {
		logger.Warn().Str("adapter", a.Name()).Str("type", string(req.Type)).Msg("unsupported order type")
		return ""
	}

	orderID := a.Tracker().NextOrderID()
	order := req.CreateOrderRecord(a.Name(), orderID)
	a.OnOrder(order)

	clientOrderID := a.orderPrefix + orderID
	a.br.Run(func(ctx context.Context) (any, error) {
		venueID, err := a.rest.NewOrder(req.Symbol, side, orderType, clientOrderID, req.Price, req.Volume)
		if err != nil {
			// 提交失败翻译为 REJECTED 快照，不跨边界抛错
			order.Status = model.StatusRejected
			a.OnOrder(order)
			return nil, err
		}
		a.Tracker().SetVenueOrderID(orderID, venueID)
		return venueID, nil
	})

	return order.VTOrderID()
}

// CancelOrder 在桥协程上异步撤单
func (a *Adapter) CancelOrder(req model.CancelRequest) error {
	if !a.connected.Load() {
		return fmt.Errorf("binance adapter not connected")
	}

	clientOrderID := a.orderPrefix + req.OrderID
	a.br.Run(func(ctx context.Context) (any, error) {
		return nil, a.rest.CancelOrder(req.Symbol, clientOrderID)
	})
	return nil
}

// QueryAccount 拉取账户快照并上报
func (a *Adapter) QueryAccount() {
	if !a.connected.Load() {
		return
	}

	a.br.Run(func(ctx context.Context) (any, error) {
		body, err := a.rest.Account()
		if err != nil {
			return nil, err
		}

		for _, asset := range body.Get("assets").Array() {
			balance := asset.Get("walletBalance").Float()
			if balance == 0 {
				continue
			}
			frozen := balance - asset.Get("availableBalance").Float()
			a.OnAccount(model.NewAccountRecord(a.Name(), asset.Get("asset").String(), balance, frozen))
		}
		return nil, nil
	})
}

// QueryPosition 拉取持仓快照并上报
func (a *Adapter) QueryPosition() {
	if !a.connected.Load() {
		return
	}

	a.br.Run(func(ctx context.Context) (any, error) {
		body, err := a.rest.Account()
		if err != nil {
			return nil, err
		}

		for _, pos := range body.Get("positions").Array() {
			amount := pos.Get("positionAmt").Float()
			if amount == 0 {
				continue
			}
			a.OnPosition(model.PositionRecord{
				Symbol:    pos.Get("symbol").String(),
				Exchange:  model.ExchangeBinance,
				Direction: model.DirectionNet,
				Volume:    amount,
				Price:     pos.Get("entryPrice").Float(),
				PnL:       pos.Get("unrealizedProfit").Float(),
			})
		}
		return nil, nil
	})
}

// QueryHistory 同步拉取历史 K 线
func (a *Adapter) QueryHistory(req model.HistoryRequest) []model.BarRecord {
	if !a.connected.Load() {
		return nil
	}

	interval, ok := intervalMap[req.Interval]
	if !ok {
		logger.Warn().Str("adapter", a.Name()).Str("interval", string(req.Interval)).Msg("unsupported interval")
		return nil
	}

	body, err := a.rest.Klines(req.Symbol, interval, req.Start, req.End, 1000)
	if err != nil {
		logger.Error().Err(err).Str("adapter", a.Name()).Str("symbol", req.Symbol).Msg("query history failed")
		return nil
	}

	rows := body.Array()
	bars := make([]model.BarRecord, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, parseKline(row, req.Symbol, req.Interval))
	}
	return bars
}

// onMarketMessage 行情推送：在桥协程上合成行情快照后上报
func (a *Adapter) onMarketMessage(msg []byte) error {
	body := gjson.ParseBytes(msg)
	eventType := body.Get("e").String()
	symbol := body.Get("s").String()
	if symbol == "" {
		return nil
	}

	a.br.CallSoon(func() {
		tick, ok := a.ticks[symbol]
		if !ok {
			tick = &model.TickRecord{Symbol: symbol, Exchange: model.ExchangeBinance}
			a.ticks[symbol] = tick
		}

		switch eventType {
		case channelBookTicker:
			parseBookTicker(body, tick)
		case channelAggTrade:
			parseAggTrade(body, tick)
		default:
			return
		}

		a.OnTick(*tick)
	})
	return nil
}

// onOrderUpdate 用户流执行回报：去重后过状态机上报
func (a *Adapter) onOrderUpdate(msg []byte) error {
	body := gjson.ParseBytes(msg)
	o := body.Get("o")
	if !o.Exists() {
		return nil
	}

	// 重连后交易所会重放执行回报，按 (订单号, 状态, 成交号) 去重
	dedupKey := fmt.Sprintf("%s:%s:%s", o.Get("i").String(), o.Get("X").String(), o.Get("t").String())
	if _, found := a.dedup.Get(dedupKey); found {
		return nil
	}
	a.dedup.Set(dedupKey, struct{}{}, gocache.DefaultExpiration)

	order := parseOrderUpdate(o)
	order.OrderID = a.localOrderID(order.OrderID)
	a.OnOrder(order)

	// 逐笔成交
	if o.Get("x").String() == "TRADE" {
		trade := parseTradeFill(o)
		trade.OrderID = a.localOrderID(trade.OrderID)
		a.OnTrade(trade)
	}
	return nil
}

// onAccountUpdate 用户流资金与持仓变动
func (a *Adapter) onAccountUpdate(msg []byte) error {
	body := gjson.ParseBytes(msg).Get("a")
	if !body.Exists() {
		return nil
	}

	for _, asset := range body.Get("B").Array() {
		balance := asset.Get("wb").Float()
		frozen := balance - asset.Get("cw").Float()
		a.OnAccount(model.NewAccountRecord(a.Name(), asset.Get("a").String(), balance, frozen))
	}

	for _, pos := range body.Get("P").Array() {
		a.OnPosition(model.PositionRecord{
			Symbol:    pos.Get("s").String(),
			Exchange:  model.ExchangeBinance,
			Direction: model.DirectionNet,
			Volume:    pos.Get("pa").Float(),
			Price:     pos.Get("ep").Float(),
			PnL:       pos.Get("up").Float(),
		})
	}
	return nil
}

// localOrderID 把客户端订单号还原成本地单号
// 不是本实例发出的订单原样保留，至少能对账
func (a *Adapter) localOrderID(clientOrderID string) string {
	if local, ok := strings.CutPrefix(clientOrderID, a.orderPrefix); ok {
		return local
	}
	return clientOrderID
}

// publishContracts 拉取合约参考数据并逐个上报
func (a *Adapter) publishContracts() {
	body, err := a.rest.ExchangeInfo()
	if err != nil {
		logger.Error().Err(err).Str("adapter", a.Name()).Msg("query exchange info failed")
		return
	}

	count := 0
	for _, row := range body.Get("symbols").Array() {
		if row.Get("status").String() != "TRADING" {
			continue
		}
		a.OnContract(parseContract(row))
		count++
	}
	logger.Info().Str("adapter", a.Name()).Int("count", count).Msg("contracts published")
}

// keepAliveLoop 周期续期 listenKey，断流前交易所要求 60 分钟内至少一次
func (a *Adapter) keepAliveLoop() {
	ticker := time.NewTicker(listenKeyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if err := a.rest.KeepAliveListenKey(); err != nil {
				logger.Error().Err(err).Str("adapter", a.Name()).Msg("listen key keepalive failed")
			}
		}
	}
}

// startPolling 流降级后的 REST 轮询兜底：行情、订单、账户持仓全部走快照
func (a *Adapter) startPolling() {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()

	if a.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.pollCancel = cancel
	monitor.SetPollingFallback(a.Name(), true)
	logger.Warn().Str("adapter", a.Name()).Msg("stream degraded, polling fallback engaged")

	goplus.Go(func() {
		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.pollOnce()
			}
		}
	})
}

// stopPolling 流恢复后退出轮询
func (a *Adapter) stopPolling() {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()

	if a.pollCancel == nil {
		return
	}
	a.pollCancel()
	a.pollCancel = nil
	monitor.SetPollingFallback(a.Name(), false)
	logger.Info().Str("adapter", a.Name()).Msg("polling fallback disengaged")
}

// pollOnce 一轮快照轮询
func (a *Adapter) pollOnce() {
	a.subMu.Lock()
	symbols := make([]string, 0, len(a.subscribed))
	for symbol := range a.subscribed {
		symbols = append(symbols, symbol)
	}
	a.subMu.Unlock()

	for _, symbol := range symbols {
		body, err := a.rest.BookTicker(strings.ToUpper(symbol))
		if err != nil {
			continue
		}
		a.OnTick(model.TickRecord{
			Symbol:     body.Get("symbol").String(),
			Exchange:   model.ExchangeBinance,
			BidPrice1:  body.Get("bidPrice").Float(),
			BidVolume1: body.Get("bidQty").Float(),
			AskPrice1:  body.Get("askPrice").Float(),
			AskVolume1: body.Get("askQty").Float(),
			Datetime:   time.Now(),
		})
	}

	if body, err := a.rest.OpenOrders(); err == nil {
		for _, row := range body.Array() {
			order := model.OrderRecord{
				Symbol:       row.Get("symbol").String(),
				Exchange:     model.ExchangeBinance,
				OrderID:      a.localOrderID(row.Get("clientOrderId").String()),
				VenueOrderID: row.Get("orderId").String(),
				Type:         parseOrderType(row.Get("type").String()),
				Direction:    directionMap[row.Get("side").String()],
				Price:        row.Get("price").Float(),
				Volume:       row.Get("origQty").Float(),
				Traded:       row.Get("executedQty").Float(),
				Status:       statusMap[row.Get("status").String()],
				Datetime:     time.UnixMilli(row.Get("updateTime").Int()),
			}
			a.OnOrder(order)
		}
	}

	a.QueryAccount()
	a.QueryPosition()
}
