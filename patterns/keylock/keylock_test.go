package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKeyLock_SerializesSameKey 测试同一键串行执行
func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := New()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := kl.Do(ctx, "a@x.com", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, kl.Len())
}

// TestKeyLock_DifferentKeysDoNotBlock 测试不同键互不阻塞
func TestKeyLock_DifferentKeysDoNotBlock(t *testing.T) {
	kl := New()
	ctx := context.Background()

	unlockA, err := kl.Lock(ctx, "ORD-1")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		defer close(done)
		unlockB, err := kl.Lock(ctx, "ORD-2")
		if err == nil {
			unlockB()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

// TestKeyLock_ContextCancel 测试等待锁时上下文取消
func TestKeyLock_ContextCancel(t *testing.T) {
	kl := New()

	unlock, err := kl.Lock(context.Background(), "P-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = kl.Lock(ctx, "P-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, kl.Len())
}
