package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"vectorAdmin/internal/config"
)

// New 按配置构造 slog.Logger；配置了文件路径时同时写入 stdout 与滚动日志文件。
func New(cfg config.LogConfig) *slog.Logger {
	return slog.New(NewHandler(cfg, os.Stdout))
}

// NewHandler 便于测试时替换 stdout。
func NewHandler(cfg config.LogConfig, stdout io.Writer) slog.Handler {
	var out io.Writer = stdout
	if cfg.File != "" {
		out = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel 将 debug/info/warn/error 转为 slog.Level，无法识别时回落到 info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
