package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_BasicOps(t *testing.T) {
	var m Map[string, int]

	assert.Equal(t, int64(0), m.Len())

	m.Store("a", 1)
	m.Store("b", 2)
	assert.Equal(t, int64(2), m.Len())

	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = m.Load("missing")
	assert.False(t, ok)

	m.Delete("a")
	assert.Equal(t, int64(1), m.Len())

	// 删除不存在的键不影响计数
	m.Delete("missing")
	assert.Equal(t, int64(1), m.Len())
}

func TestMap_LoadOrStore(t *testing.T) {
	var m Map[string, int]

	v, loaded := m.LoadOrStore("k", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.LoadOrStore("k", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), m.Len())
}

func TestMap_LoadAndDelete(t *testing.T) {
	var m Map[string, int]
	m.Store("k", 7)

	v, loaded := m.LoadAndDelete("k")
	assert.True(t, loaded)
	assert.Equal(t, 7, v)
	assert.Equal(t, int64(0), m.Len())

	_, loaded = m.LoadAndDelete("k")
	assert.False(t, loaded)
}

func TestMap_Range(t *testing.T) {
	var m Map[int, int]
	for i := 0; i < 10; i++ {
		m.Store(i, i*i)
	}

	sum := 0
	m.Range(func(_ int, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 285, sum)
}

func TestMap_Clear(t *testing.T) {
	var m Map[string, int]
	m.Store("a", 1)
	m.Store("b", 2)

	m.Clear()
	assert.Equal(t, int64(0), m.Len())
	_, ok := m.Load("a")
	assert.False(t, ok)
}

func TestMap_ConcurrentLen(t *testing.T) {
	var m Map[int, int]
	var wg sync.WaitGroup

	// 并发读写后计数保持一致
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Store(base*100+j, j)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Len())
}
