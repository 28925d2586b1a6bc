package middleware

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/logging"
	"orderdesk/messaging"
)

type recordingObserver struct {
	types []string
	errs  []error
}

func (r *recordingObserver) ObservePublish(messageType string, err error, elapsed time.Duration) {
	r.types = append(r.types, messageType)
	r.errs = append(r.errs, err)
}

func passthrough(err error) messaging.HandlerFunc {
	return func(ctx context.Context, m messaging.IMessage) error { return err }
}

// TestLoggingMiddleware 测试发布失败时记录 WARN
func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStdLoggerTo(&buf, "[test]")
	mw := NewLoggingMiddleware(logger)
	msg := messaging.NewMessage("order.ingested", nil)

	require.NoError(t, mw.Handle(context.Background(), msg, passthrough(nil)))

	boom := errors.New("boom")
	assert.ErrorIs(t, mw.Handle(context.Background(), msg, passthrough(boom)), boom)
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "publish failed")
	assert.Contains(t, buf.String(), "message_type=order.ingested")
}

// TestObserverMiddleware 测试发布结果转交观察者
func TestObserverMiddleware(t *testing.T) {
	obs := &recordingObserver{}
	mw := NewObserverMiddleware(obs)
	msg := messaging.NewMessage("order.ingested", nil)

	_ = mw.Handle(context.Background(), msg, passthrough(nil))
	boom := errors.New("boom")
	_ = mw.Handle(context.Background(), msg, passthrough(boom))

	assert.Equal(t, []string{"order.ingested", "order.ingested"}, obs.types)
	assert.Equal(t, []error{nil, boom}, obs.errs)
}

// TestSourceMiddleware 测试来源元数据只在缺失时写入
func TestSourceMiddleware(t *testing.T) {
	mw := NewSourceMiddleware("orderdesk")
	msg := messaging.NewMessage("order.ingested", nil)
	require.NoError(t, mw.Handle(context.Background(), msg, passthrough(nil)))
	assert.Equal(t, "orderdesk", msg.Metadata["source"])

	msg.Metadata["source"] = "seed"
	require.NoError(t, mw.Handle(context.Background(), msg, passthrough(nil)))
	assert.Equal(t, "seed", msg.Metadata["source"])
}
