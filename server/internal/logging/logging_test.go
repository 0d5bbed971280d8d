package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chat-drafts/server/internal/config"
)

// TestDebugFilteredUnlessDebugLevel 验证 info 级别丢弃调试日志、debug 级别保留。
func TestDebugFilteredUnlessDebugLevel(t *testing.T) {
	for _, tc := range []struct {
		level     string
		wantDebug bool
	}{
		{level: "info", wantDebug: false},
		{level: "debug", wantDebug: true},
	} {
		path := filepath.Join(t.TempDir(), "app.log")
		logger, closer, err := New(config.LoggingConfig{Level: tc.level, Format: "plain", Output: path})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.Printf("[Test] visible")
		Debugf(logger, "[Test] cursor=%s", "abc")
		closer.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		got := string(data)
		if !strings.Contains(got, "[Test] visible") {
			t.Fatalf("level=%s: expected info line, got %q", tc.level, got)
		}
		if strings.Contains(got, "cursor=abc") != tc.wantDebug {
			t.Fatalf("level=%s: expected debug present=%v, got %q", tc.level, tc.wantDebug, got)
		}
	}
}

// TestNewRejectsUnknownFormat 验证未知格式返回错误。
func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
