package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_Broadcast(t *testing.T) {
	dialer := &fakeDialer{}
	sup := newTestSupervisor(dialer, 3)
	defer sup.Disconnect()
	assert.NoError(t, sup.Connect(context.Background()))

	var count atomic.Int64
	_, _ = sup.Subscribe(Subscription{Channel: "trade", Symbol: "BTC"}, func([]byte) error {
		count.Add(1)
		return nil
	})
	_, _ = sup.Subscribe(Subscription{Channel: "trade", Symbol: "ETH"}, func([]byte) error {
		count.Add(1)
		return nil
	})

	// 路由键为空的报文广播给所有订阅
	dialer.last().push([]byte(""))

	assert.Eventually(t, func() bool {
		return count.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_UnknownKeyDropped(t *testing.T) {
	dialer := &fakeDialer{}
	sup := newTestSupervisor(dialer, 3)
	defer sup.Disconnect()
	assert.NoError(t, sup.Connect(context.Background()))

	var count atomic.Int64
	_, _ = sup.Subscribe(Subscription{Channel: "trade", Symbol: "BTC"}, func([]byte) error {
		count.Add(1)
		return nil
	})

	// 有键但无订阅方的报文被丢弃
	dialer.last().push([]byte("trade:DOGE"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), count.Load())
}

func TestDispatcher_PerKeyOrdering(t *testing.T) {
	dialer := &fakeDialer{}
	sup := newTestSupervisor(dialer, 3)
	defer sup.Disconnect()
	assert.NoError(t, sup.Connect(context.Background()))

	var mu sync.Mutex
	got := make(map[string][]string)
	record := func(msg []byte) error {
		parts := strings.SplitN(string(msg), "|", 2)
		mu.Lock()
		got[parts[0]] = append(got[parts[0]], parts[1])
		mu.Unlock()
		return nil
	}
	_, _ = sup.Subscribe(Subscription{Channel: "trade", Symbol: "BTC"}, record)
	_, _ = sup.Subscribe(Subscription{Channel: "trade", Symbol: "ETH"}, record)

	// 小池子逼出通道并发，同键仍须保序
	d := NewDispatcher(sup, 4, func(msg []byte) string {
		return strings.SplitN(string(msg), "|", 2)[0]
	})
	defer d.Close()

	const total = 5000
	for i := 0; i < total; i++ {
		key := "trade:BTC"
		if i%2 == 1 {
			key = "trade:ETH"
		}
		_ = d.Dispatch([]byte(fmt.Sprintf("%s|%06d", key, i)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["trade:BTC"])+len(got["trade:ETH"]) == total
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for key, seqs := range got {
		for i := 1; i < len(seqs); i++ {
			if seqs[i-1] >= seqs[i] {
				t.Fatalf("key %s: %q arrived before %q", key, seqs[i-1], seqs[i])
			}
		}
	}
}

func TestDispatcher_CallbackErrorIsolated(t *testing.T) {
	dialer := &fakeDialer{}
	sup := newTestSupervisor(dialer, 3)
	defer sup.Disconnect()
	assert.NoError(t, sup.Connect(context.Background()))

	var healthy atomic.Int64
	sub := Subscription{Channel: "trade", Symbol: "BTC"}
	_, _ = sup.Subscribe(sub, func([]byte) error {
		return assert.AnError
	})
	_, _ = sup.Subscribe(sub, func([]byte) error {
		healthy.Add(1)
		return nil
	})

	// 一个回调出错不影响同键的其它回调
	dialer.last().push([]byte("trade:BTC"))

	assert.Eventually(t, func() bool {
		return healthy.Load() == 1
	}, time.Second, 5*time.Millisecond)
}
