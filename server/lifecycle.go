package server

import (
	"context"
	"time"

	"orderdesk/logging"
)

// State 引擎生命周期状态
type State int32

const (
	StatePending State = iota
	StateInitializing
	// StatePrepared 依赖已就绪，尚未启动主服务
	StatePrepared
	StateRunning
	StateStopping
	StateStopped
	// StateError 任一阶段失败后停留在此状态
	StateError
)

var stateNames = [...]string{
	StatePending:      "Pending",
	StateInitializing: "Initializing",
	StatePrepared:     "Prepared",
	StateRunning:      "Running",
	StateStopping:     "Stopping",
	StateStopped:      "Stopped",
	StateError:        "Error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Hook 生命周期回调
type Hook func(ctx context.Context) error

// Options 引擎选项
type Options struct {
	Name    string
	Version string
	Logger  logging.Logger

	// StartupTimeout 只约束 SetupDependencies
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Before* 回调失败会中止启动，After* 与 OnBeforeStop 失败只记录告警
	OnBeforeInit  []Hook
	OnAfterInit   []Hook
	OnBeforeStart []Hook
	OnAfterStart  []Hook
	OnBeforeStop  []Hook
	OnAfterStop   []Hook
}

// Option 选项函数
type Option func(*Options)

// DefaultOptions 默认选项
func DefaultOptions() *Options {
	return &Options{
		Name:            "orderdesk",
		Version:         "dev",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

// WithLogger 替换引擎日志，默认使用 server 组件日志
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithStartupTimeout(d time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = d }
}

// WithBeforeStart 在后台任务启动前执行，常用于预热或依赖检查
func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStart = append(o.OnBeforeStart, fn) }
}

func WithAfterStart(fn Hook) Option {
	return func(o *Options) { o.OnAfterStart = append(o.OnAfterStart, fn) }
}

func WithBeforeStop(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStop = append(o.OnBeforeStop, fn) }
}

func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
