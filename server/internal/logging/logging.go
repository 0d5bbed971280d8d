// Package logging 根据配置创建标准库 *log.Logger。
//
// 全项目的日志都是 "[Component] message" 形式的单行文本；
// 调试日志通过 Debugf 写出，level 不是 debug 时会被过滤掉。
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"chat-drafts/server/internal/config"
)

const debugTag = "[debug] "

// New 根据配置创建 logger。输出到文件时，调用方需要在退出前关闭返回的 io.Closer。
func New(cfg config.LoggingConfig) (*log.Logger, io.Closer, error) {
	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	flags := log.LstdFlags | log.Lmicroseconds
	switch strings.ToLower(cfg.Format) {
	case "", "text":
	case "plain":
		// 由 journald/容器运行时补时间戳
		flags = 0
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown logging.format %q", cfg.Format)
	}

	if !strings.EqualFold(cfg.Level, "debug") {
		out = &levelWriter{w: out}
	}
	return log.New(out, "", flags), closer, nil
}

// Debugf 写一条调试日志，logger 为 nil 时使用 log.Default()。
func Debugf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Print(debugTag + fmt.Sprintf(format, args...))
}

// levelWriter 丢弃调试日志。log.Logger 每条日志只调用一次 Write。
type levelWriter struct {
	w io.Writer
}

func (l *levelWriter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte(debugTag)) {
		return len(p), nil
	}
	return l.w.Write(p)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
