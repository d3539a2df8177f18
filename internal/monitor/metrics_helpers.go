package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncEventDispatched 增加事件分发计数
func IncEventDispatched(eventType string) {
	GetMetrics().IncEventDispatched(eventType)
}

// IncEventDropped 增加事件丢弃计数
func IncEventDropped(eventType string) {
	GetMetrics().IncEventDropped(eventType)
}

// IncHandlerError 增加处理函数异常计数
func IncHandlerError(eventType string) {
	GetMetrics().IncHandlerError(eventType)
}

// SetEventQueueSize 设置事件队列积压
func SetEventQueueSize(size int) {
	GetMetrics().SetEventQueueSize(size)
}

// IncOrderStatus 增加订单状态计数
func IncOrderStatus(adapter, status string) {
	GetMetrics().IncOrderStatus(adapter, status)
}

// SetConnectionState 设置连接状态
func SetConnectionState(adapter string, state int32) {
	GetMetrics().SetConnectionState(adapter, state)
}

// IncReconnectAttempt 增加重连尝试计数
func IncReconnectAttempt(adapter string) {
	GetMetrics().IncReconnectAttempt(adapter)
}

// SetSubscriptionsActive 设置订阅数量
func SetSubscriptionsActive(adapter string, count int) {
	GetMetrics().SetSubscriptionsActive(adapter, count)
}

// SetPollingFallback 设置轮询降级状态
func SetPollingFallback(adapter string, active bool) {
	GetMetrics().SetPollingFallback(adapter, active)
}

// SetNATSConnected 设置 NATS 连接状态
func SetNATSConnected(connected bool) {
	GetMetrics().SetNATSConnected(connected)
}
