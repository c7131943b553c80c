// Configuration for rxtime schedulers
// 调度器配置选项
package rxtime

import "log/slog"

// Option 配置选项接口
type Option interface {
	Apply(config *Config)
}

// Config 调度器配置
type Config struct {
	// Logger 调度器生命周期与动作 panic 的日志输出
	Logger *slog.Logger
	// Name 调度器名称，出现在日志中
	Name string
}

// DefaultConfig 默认配置，日志被丢弃
func DefaultConfig() *Config {
	return &Config{
		Logger: slog.New(slog.DiscardHandler),
	}
}

func newConfig(options []Option) *Config {
	config := DefaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt.Apply(config)
		}
	}
	return config
}

// optionFunc 函数形式的配置选项
type optionFunc func(config *Config)

func (f optionFunc) Apply(config *Config) {
	f(config)
}

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(config *Config) {
		if logger != nil {
			config.Logger = logger
		}
	})
}

// WithName 设置调度器名称
func WithName(name string) Option {
	return optionFunc(func(config *Config) {
		config.Name = name
	})
}
