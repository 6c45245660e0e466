package ringbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_KeepsInsertionOrderUntilFull(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)

	assert.Equal(t, []int{1, 2}, b.Items())
	assert.Equal(t, 2, b.Len())
}

func TestBuffer_DropsOldestWhenFull(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{4, 5}, b.Recent(2))
	assert.Equal(t, []int{3, 4, 5}, b.Recent(10))
	assert.Empty(t, b.Recent(0))
}

func TestBuffer_Clear(t *testing.T) {
	b := New[string](2)
	b.Push("a")
	b.Push("b")
	b.Clear()

	assert.Empty(t, b.Items())
	b.Push("c")
	assert.Equal(t, []string{"c"}, b.Items())
}

func TestBuffer_MinimumCapacity(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	b.Push(2)
	assert.Equal(t, 1, b.Cap())
	assert.Equal(t, []int{2}, b.Items())
}

func TestBuffer_ConcurrentPush(t *testing.T) {
	b := New[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}
