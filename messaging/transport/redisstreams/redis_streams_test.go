package redisstreams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/logging"
	"orderdesk/messaging"
)

// fakeClient 以内存切片模拟单个消费组
type fakeClient struct {
	mu      sync.Mutex
	entries map[string][]redis.XMessage
	acked   []string
	seq     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{entries: make(map[string][]redis.XMessage)}
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := time.Unix(int64(f.seq), 0).Format("150405") + "-0"
	f.entries[a.Stream] = append(f.entries[a.Stream], redis.XMessage{ID: id, Values: a.Values.(map[string]any)})
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal(id)
	return cmd
}

func (f *fakeClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	f.mu.Lock()
	stream := a.Streams[0]
	pending := f.entries[stream]
	f.entries[stream] = nil
	f.mu.Unlock()

	if len(pending) == 0 {
		select {
		case <-ctx.Done():
			cmd.SetErr(ctx.Err())
		case <-time.After(5 * time.Millisecond):
			cmd.SetErr(redis.Nil)
		}
		return cmd
	}
	cmd.SetVal([]redis.XStream{{Stream: stream, Messages: pending}})
	return cmd
}

func (f *fakeClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	f.acked = append(f.acked, ids...)
	f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
	return cmd
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

// TestEncodeDecodeEntry 测试条目编解码
func TestEncodeDecodeEntry(t *testing.T) {
	msg := messaging.NewMessage("order.ingested", map[string]any{"orderId": "o1"})
	msg.SetMetadata("externalId", "ORD-1")

	values, err := encodeEntry(msg)
	require.NoError(t, err)
	assert.Equal(t, "order.ingested", values["type"])

	decoded, err := decodeEntry(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, "ORD-1", decoded.GetMetadata()["externalId"])

	var payload map[string]string
	require.NoError(t, messaging.DecodePayload(decoded, &payload))
	assert.Equal(t, "o1", payload["orderId"])

	_, err = decodeEntry(redis.XMessage{ID: "2-0", Values: map[string]any{"id": "x"}})
	assert.Error(t, err)
}

// TestNewTransport_RequiresClient 测试缺少连接配置时报错
func TestNewTransport_RequiresClient(t *testing.T) {
	_, err := NewTransport(Config{})
	assert.Error(t, err)
}

// TestTransport_PublishConsume 测试发布后由消费组读取、分发并确认
func TestTransport_PublishConsume(t *testing.T) {
	fc := newFakeClient()
	tpt := newTransport(Config{
		StreamPrefix:   "orderdesk:",
		GroupName:      "orderdesk",
		ConsumerName:   "c1",
		MinReadBackoff: time.Millisecond,
		MaxReadBackoff: time.Millisecond,
		Logger:         logging.NewNoopLogger(),
	}, fc, false)

	received := make(chan string, 1)
	require.NoError(t, tpt.Subscribe("order.ingested", messaging.NewHandler("rec", func(ctx context.Context, m messaging.IMessage) error {
		received <- m.GetID()
		return nil
	})))
	require.NoError(t, tpt.Start(context.Background()))
	defer tpt.Close()

	msg := messaging.NewMessage("order.ingested", nil)
	require.NoError(t, tpt.Publish(context.Background(), msg))

	select {
	case id := <-received:
		assert.Equal(t, msg.ID, id)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	assert.Eventually(t, func() bool { return fc.ackedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, tpt.Stats().Running)
}
