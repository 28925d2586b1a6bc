package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/logging"
)

// fakeServer 记录生命周期调用顺序，可按步骤注入错误
type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadErr     error
	setupErr    error
	runErr      error
	shutdownErr error

	// block 为 true 时 Run 阻塞到 ctx 取消
	block  bool
	bgDone chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadErr
}

func (s *fakeServer) SetupDependencies(ctx context.Context) error {
	s.record("SetupDependencies")
	return s.setupErr
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	if s.bgDone != nil {
		go func() {
			<-ctx.Done()
			close(s.bgDone)
		}()
	}
	return nil
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.block {
		<-ctx.Done()
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.record("Shutdown")
	return s.shutdownErr
}

func newTestEngine(s IServer, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(logging.NewNoopLogger()), WithShutdownTimeout(50 * time.Millisecond)}, opts...)
	return NewEngine(s, opts...)
}

var fullLifecycle = []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}

// TestEngineStart_LifecycleSuccess 测试正常生命周期的调用顺序
func TestEngineStart_LifecycleSuccess(t *testing.T) {
	s := &fakeServer{}
	engine := newTestEngine(s)

	require.NoError(t, engine.Start())
	assert.Equal(t, StateStopped, engine.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

// TestEngineStart_RunError 测试 Run 失败时仍执行 Shutdown 并包装错误
func TestEngineStart_RunError(t *testing.T) {
	runErr := errors.New("run failed")
	s := &fakeServer{runErr: runErr}
	engine := newTestEngine(s)

	err := engine.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, runErr)
	assert.Contains(t, err.Error(), "server execution error")
	assert.Equal(t, StateError, engine.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

// TestEngineStart_EarlyFailures 测试配置与依赖阶段失败时提前终止
func TestEngineStart_EarlyFailures(t *testing.T) {
	sentinel := errors.New("boom")
	tests := []struct {
		name   string
		server *fakeServer
		prefix string
		steps  []string
	}{
		{"load config", &fakeServer{loadErr: sentinel}, "failed to load config", []string{"LoadConfig"}},
		{"setup", &fakeServer{setupErr: sentinel}, "failed to setup dependencies", []string{"LoadConfig", "SetupDependencies"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(tt.server)
			err := engine.Start()
			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel)
			assert.Contains(t, err.Error(), tt.prefix)
			assert.Equal(t, StateError, engine.State())
			assert.Equal(t, tt.steps, tt.server.snapshot())
		})
	}
}

// TestEngineStart_ShutdownError 测试关闭失败直接返回错误
func TestEngineStart_ShutdownError(t *testing.T) {
	sentinel := errors.New("close failed")
	engine := newTestEngine(&fakeServer{shutdownErr: sentinel})

	assert.ErrorIs(t, engine.Start(), sentinel)
	assert.Equal(t, StateError, engine.State())
}

// TestEngineStart_Hooks 测试启动前回调失败中止启动，启动后回调失败不影响运行
func TestEngineStart_Hooks(t *testing.T) {
	t.Run("before start aborts", func(t *testing.T) {
		s := &fakeServer{}
		engine := newTestEngine(s, WithBeforeStart(func(ctx context.Context) error {
			return errors.New("not ready")
		}))
		err := engine.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OnBeforeStart hook failed")
		assert.Equal(t, []string{"LoadConfig", "SetupDependencies"}, s.snapshot())
	})

	t.Run("after start and after stop tolerated", func(t *testing.T) {
		s := &fakeServer{}
		var stopped bool
		engine := newTestEngine(s,
			WithAfterStart(func(ctx context.Context) error { return errors.New("ignored") }),
			WithAfterStop(func(ctx context.Context) error {
				stopped = true
				return nil
			}),
		)
		require.NoError(t, engine.Start())
		assert.True(t, stopped)
		assert.Equal(t, StateStopped, engine.State())
	})
}

// TestEngineStart_CancelsBackgroundTasks 测试退出时取消后台任务上下文
func TestEngineStart_CancelsBackgroundTasks(t *testing.T) {
	s := &fakeServer{bgDone: make(chan struct{})}
	engine := newTestEngine(s)

	require.NoError(t, engine.Start())
	select {
	case <-s.bgDone:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("background task was not cancelled")
	}
}

// TestEngineStartContext_ParentCancel 测试父上下文取消触发优雅关闭
func TestEngineStartContext_ParentCancel(t *testing.T) {
	s := &fakeServer{block: true}
	engine := newTestEngine(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.StartContext(ctx) }()

	require.Eventually(t, func() bool { return len(s.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after parent cancel")
	}
	assert.Equal(t, StateStopped, engine.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

// TestState_String 测试状态名称
func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Error", StateError.String())
	assert.Equal(t, "Unknown", State(99).String())
}
