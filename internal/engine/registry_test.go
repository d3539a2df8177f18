package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-trade-engine/internal/adapter"
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/model"
)

// mockAdapter 注册表测试用适配器
type mockAdapter struct {
	*adapter.BaseAdapter

	connectErr    error
	connectedWith map[string]any
	closed        bool
	sentOrders    []model.OrderRequest
	subscribed    []model.SubscribeRequest
	closePanics   bool
}

func newMockConstructor(m **mockAdapter) adapter.Constructor {
	return func(bus *event.Bus, name string) adapter.Adapter {
		a := &mockAdapter{BaseAdapter: adapter.NewBaseAdapter(bus, name)}
		*m = a
		return a
	}
}

func (m *mockAdapter) Exchanges() []model.Exchange     { return []model.Exchange{model.ExchangeLocal} }
func (m *mockAdapter) DefaultSettings() map[string]any { return map[string]any{"key": ""} }

func (m *mockAdapter) Connect(settings map[string]any) error {
	m.connectedWith = settings
	return m.connectErr
}

func (m *mockAdapter) Close() {
	if m.closePanics {
		panic("close failed")
	}
	m.closed = true
}

func (m *mockAdapter) Subscribe(req model.SubscribeRequest) error {
	m.subscribed = append(m.subscribed, req)
	return nil
}

func (m *mockAdapter) SendOrder(req model.OrderRequest) string {
	m.sentOrders = append(m.sentOrders, req)
	return m.Name() + ".1"
}

func (m *mockAdapter) CancelOrder(model.CancelRequest) error { return nil }

func (m *mockAdapter) QueryAccount()  {}
func (m *mockAdapter) QueryPosition() {}

func (m *mockAdapter) QueryHistory(model.HistoryRequest) []model.BarRecord { return nil }

func TestRegistry_AddAndGet(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var mock *mockAdapter
	a := registry.AddAdapter(newMockConstructor(&mock), "local")
	assert.NotNil(t, a)
	assert.Equal(t, "local", a.Name())

	assert.Same(t, a, registry.GetAdapter("local"))
	assert.ElementsMatch(t, []string{"local"}, registry.AdapterNames())
	assert.ElementsMatch(t, []model.Exchange{model.ExchangeLocal}, registry.SupportedExchanges())
}

func TestRegistry_DuplicateNameKeepsExisting(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var first, second *mockAdapter
	a1 := registry.AddAdapter(newMockConstructor(&first), "local")
	a2 := registry.AddAdapter(newMockConstructor(&second), "local")

	// 重名注册返回已有实例，第二个构造函数不被调用
	assert.Same(t, a1, a2)
	assert.Nil(t, second)
}

func TestRegistry_UnknownAdapter(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	assert.Nil(t, registry.GetAdapter("nope"))
	// 未知名字的命令是记录并吞掉，不是错误
	assert.Equal(t, "", registry.SendOrder(model.OrderRequest{}, "nope"))
	assert.NoError(t, registry.CancelOrder(model.CancelRequest{}, "nope"))
	assert.NoError(t, registry.Subscribe(model.SubscribeRequest{}, "nope"))
	assert.Nil(t, registry.QueryHistory(model.HistoryRequest{}, "nope"))
}

func TestRegistry_ConnectTracksState(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var mock *mockAdapter
	registry.AddAdapter(newMockConstructor(&mock), "local")

	settings := map[string]any{"key": "value"}
	assert.NoError(t, registry.Connect(settings, "local"))
	assert.Equal(t, settings, mock.connectedWith)
	assert.Equal(t, 1, registry.ConnectedCount())
}

func TestRegistry_ConnectFailure(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var mock *mockAdapter
	registry.AddAdapter(newMockConstructor(&mock), "local")
	mock.connectErr = assert.AnError

	assert.Error(t, registry.Connect(nil, "local"))
	assert.Equal(t, 0, registry.ConnectedCount())
}

func TestRegistry_SendOrderRouting(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var mock *mockAdapter
	registry.AddAdapter(newMockConstructor(&mock), "local")

	req := model.OrderRequest{Symbol: "BTCUSDT", Exchange: model.ExchangeLocal, Volume: 1}
	vtOrderID := registry.SendOrder(req, "local")

	assert.Equal(t, "local.1", vtOrderID)
	assert.Len(t, mock.sentOrders, 1)
}

func TestRegistry_QuoteUnsupported(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var mock *mockAdapter
	registry.AddAdapter(newMockConstructor(&mock), "local")

	// 不支持报价的适配器返回空串而不是 panic
	assert.Equal(t, "", registry.SendQuote(model.QuoteRequest{}, "local"))
	assert.NoError(t, registry.CancelQuote(model.CancelQuoteRequest{}, "local"))
}

func TestRegistry_ClosePanicIsolated(t *testing.T) {
	registry := NewRegistry(event.NewBus())

	var bad, good *mockAdapter
	registry.AddAdapter(newMockConstructor(&bad), "bad")
	registry.AddAdapter(newMockConstructor(&good), "good")
	bad.closePanics = true

	// 一个适配器 Close panic 不影响其余
	registry.Close()
	assert.True(t, good.closed)
}
