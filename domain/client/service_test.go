package client

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/errors"
	"orderdesk/logging"
)

func newTestService() (*Service, *MemoryRepository) {
	logging.SetLogger(logging.NewNoopLogger())
	repo := NewMemoryRepository(nil)
	return NewService(repo), repo
}

// TestService_CreateRejectsDuplicateEmail 测试直接创建时的 email 唯一性
func TestService_CreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Create(ctx, CreateInput{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Name: "B", Email: "a@x.com"})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, "Client with email a@x.com already exists", errors.MessageOf(err))
}

// TestService_NotFound 测试未找到语义
func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.FindOne(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "Client with ID nope not found", errors.MessageOf(err))

	name := "x"
	_, err = svc.Update(ctx, "nope", Patch{Name: &name})
	assert.True(t, errors.IsNotFound(err))

	err = svc.Remove(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
}

// TestService_UpdateEmailConflict 测试修改 email 时的冲突检查
func TestService_UpdateEmailConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	a, err := svc.Create(ctx, CreateInput{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "B", Email: "b@x.com"})
	require.NoError(t, err)

	taken := "b@x.com"
	_, err = svc.Update(ctx, a.ID, Patch{Email: &taken})
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, "Client with email b@x.com already exists", errors.MessageOf(err))

	same := "a@x.com"
	updated, err := svc.Update(ctx, a.ID, Patch{Email: &same})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", updated.Email)
}

// TestService_UpsertByEmailIsIdempotent 测试按 email 幂等写入
func TestService_UpsertByEmailIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	first, err := svc.UpsertByEmail(ctx, "A", "a@x.com")
	require.NoError(t, err)
	second, err := svc.UpsertByEmail(ctx, "A renamed", "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "A renamed", second.Name)
	assert.Equal(t, "a@x.com", second.Email)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	n, _ := repo.Count(ctx)
	assert.Equal(t, 1, n)
}

// TestService_ConcurrentUpsertCreatesOneClient 测试并发写入同一 email 只产生一个 Client
func TestService_ConcurrentUpsertCreatesOneClient(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := svc.UpsertByEmail(ctx, fmt.Sprintf("buyer-%d", i), "same@x.com")
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	n, _ := repo.Count(ctx)
	assert.Equal(t, 1, n)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
