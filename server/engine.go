// Package server 定义应用进程的生命周期模板
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"orderdesk/logging"
)

// IServer 业务应用实现的生命周期钩子，由 Engine 按固定顺序调用
type IServer interface {
	// Name 应用名称
	Name() string

	// LoadConfig 步骤 1：读取配置文件与环境变量
	LoadConfig() error

	// SetupDependencies 步骤 2：打开存储、连接消息传输、组装服务与路由
	SetupDependencies(ctx context.Context) error

	// StartBackgroundTasks 步骤 3：启动消费者、种子数据等非阻塞任务
	StartBackgroundTasks(ctx context.Context) error

	// Run 步骤 4：启动主服务，阻塞直到服务退出
	Run(ctx context.Context) error

	// Shutdown 步骤 5：停止服务并释放资源
	Shutdown(ctx context.Context) error
}

// Engine 编排启动流程：Init -> Setup -> Background -> Run -> Signal -> Shutdown
type Engine struct {
	server  IServer
	options *Options
	logger  logging.Logger
	state   atomic.Int32
}

// NewEngine 创建启动引擎，server.Name() 非空时作为默认名称
func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.ComponentLogger("server")
	}
	e := &Engine{
		server:  server,
		options: options,
		logger:  logger.WithFields(logging.String("app", options.Name)),
	}
	e.setState(StatePending)
	return e
}

// State 当前引擎状态
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Start 使用后台上下文执行完整生命周期
func (e *Engine) Start() error {
	return e.StartContext(context.Background())
}

// StartContext 执行完整生命周期；parent 取消与收到 SIGINT/SIGTERM/SIGHUP 等价
func (e *Engine) StartContext(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e.logger.Info(ctx, "starting application", logging.String("version", e.options.Version))

	e.setState(StateInitializing)
	if err := e.runHooks(ctx, "OnBeforeInit", e.options.OnBeforeInit, true); err != nil {
		return err
	}
	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := e.runHooks(ctx, "OnAfterInit", e.options.OnAfterInit, true); err != nil {
		return err
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	defer setupCancel()
	if err := e.server.SetupDependencies(setupCtx); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	e.setState(StatePrepared)

	if err := e.runHooks(ctx, "OnBeforeStart", e.options.OnBeforeStart, true); err != nil {
		return err
	}
	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to start background tasks: %w", err)
	}

	e.setState(StateRunning)
	errChan := make(chan error, 1)
	go func() {
		e.logger.Info(ctx, "server is running")
		errChan <- e.server.Run(ctx)
	}()
	_ = e.runHooks(ctx, "OnAfterStart", e.options.OnAfterStart, false)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-errChan:
		if err != nil {
			e.logger.Error(ctx, "server stopped with error", logging.Error(err))
			runErr = err
		} else {
			e.logger.Info(ctx, "server stopped")
		}
	case sig := <-quit:
		e.logger.Info(ctx, "received signal", logging.String("signal", sig.String()))
	case <-parent.Done():
		e.logger.Info(ctx, "parent context cancelled")
	}
	cancel()

	e.setState(StateStopping)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer shutdownCancel()

	_ = e.runHooks(shutdownCtx, "OnBeforeStop", e.options.OnBeforeStop, false)
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.setState(StateError)
		e.logger.Error(shutdownCtx, "shutdown failed", logging.Error(err))
		return err
	}
	_ = e.runHooks(shutdownCtx, "OnAfterStop", e.options.OnAfterStop, false)

	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}

	e.setState(StateStopped)
	e.logger.Info(shutdownCtx, "shutdown complete")
	return nil
}

// runHooks 依次执行回调；fatal 为 true 时首个错误中止启动，否则只记录告警
func (e *Engine) runHooks(ctx context.Context, phase string, hooks []Hook, fatal bool) error {
	for _, hook := range hooks {
		err := hook(ctx)
		if err == nil {
			continue
		}
		if fatal {
			e.setState(StateError)
			return fmt.Errorf("%s hook failed: %w", phase, err)
		}
		e.logger.Warn(ctx, "lifecycle hook failed", logging.String("phase", phase), logging.Error(err))
	}
	return nil
}
