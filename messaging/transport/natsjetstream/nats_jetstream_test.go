package natsjetstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/logging"
	"orderdesk/messaging"
)

// TestNewTransport_Defaults 测试默认配置
func TestNewTransport_Defaults(t *testing.T) {
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})

	assert.Equal(t, nats.DefaultURL, tpt.cfg.URL)
	assert.Equal(t, "ORDERDESK", tpt.cfg.Stream)
	assert.Equal(t, "orderdesk.order.ingested", tpt.subjectName("order.ingested"))
	assert.Equal(t, "orderdesk-order_ingested", tpt.durableName("order.ingested"))
	assert.Equal(t, 30*time.Second, tpt.cfg.AckWait)
}

// TestStreamConfig 测试流配置
func TestStreamConfig(t *testing.T) {
	tpt := NewTransport(Config{Retention: "workqueue", Logger: logging.NewNoopLogger()})
	sc := tpt.streamConfig()
	assert.Equal(t, nats.WorkQueuePolicy, sc.Retention)
	assert.Equal(t, []string{"orderdesk.>"}, sc.Subjects)

	assert.Equal(t, nats.LimitsPolicy, NewTransport(Config{Logger: logging.NewNoopLogger()}).streamConfig().Retention)
}

// TestPublish_NotRunning 测试未启动时拒绝发布
func TestPublish_NotRunning(t *testing.T) {
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})
	err := tpt.Publish(context.Background(), messaging.NewMessage("order.ingested", nil))
	assert.Error(t, err)
}

// TestDispatch 测试只调用订阅类型的处理器并汇报失败
func TestDispatch(t *testing.T) {
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})
	var got []string
	require.NoError(t, tpt.Subscribe("order.ingested", messaging.NewHandler("ok", func(ctx context.Context, m messaging.IMessage) error {
		got = append(got, m.GetID())
		return nil
	})))
	require.NoError(t, tpt.Subscribe("other", messaging.NewHandler("other", func(ctx context.Context, m messaging.IMessage) error {
		return errors.New("should not be called")
	})))

	msg := messaging.NewMessage("order.ingested", nil)
	require.NoError(t, tpt.dispatch(context.Background(), "order.ingested", msg))
	assert.Equal(t, []string{msg.ID}, got)
	assert.Equal(t, 2, tpt.Stats().HandlerCount)

	boom := errors.New("boom")
	require.NoError(t, tpt.Subscribe("order.ingested", messaging.NewHandler("fail", func(ctx context.Context, m messaging.IMessage) error {
		return boom
	})))
	assert.ErrorIs(t, tpt.dispatch(context.Background(), "order.ingested", msg), boom)
}
