package logger

import "github.com/rs/zerolog"

var (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
)

func setLogLevel(level string) {
	switch level {
	case DEBUG:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case INFO:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case WARN:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case ERROR:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case FATAL:
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

type Config struct {
	Path       string // 日志文件路径（为空时仅输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保存的旧日志文件最大数量
	MaxAge     int    // 保留旧日志文件的最大天数
	Level      string // 日志级别 (debug, info, warn, error, fatal)
	Compress   bool   // 是否压缩旧日志
	Console    bool   // 是否同时输出到控制台
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:       "logs/engine.log",
		MaxSize:    10,
		MaxBackups: 100,
		MaxAge:     5,
		Level:      INFO,
		Compress:   false,
		Console:    true,
	}
}

type Builder struct {
	config Config
}

// NewBuilder 创建日志构建器
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) SetPath(path string) *Builder {
	b.config.Path = path
	return b
}

func (b *Builder) SetMaxSize(size int) *Builder {
	if size > 0 {
		b.config.MaxSize = size
	}
	return b
}

func (b *Builder) SetMaxBackups(n int) *Builder {
	if n > 0 {
		b.config.MaxBackups = n
	}
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	if days > 0 {
		b.config.MaxAge = days
	}
	return b
}

func (b *Builder) SetLevel(level string) *Builder {
	if level != "" {
		b.config.Level = level
	}
	return b
}

func (b *Builder) EnableCompression(on bool) *Builder {
	b.config.Compress = on
	return b
}

func (b *Builder) EnableConsoleOutput(on bool) *Builder {
	b.config.Console = on
	return b
}

// Build 按配置初始化全局日志
func (b *Builder) Build() error {
	return initLogger(b.config)
}
