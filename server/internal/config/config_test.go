package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatdrafts.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadMergesFileOverDefaults 验证 yaml 中出现的字段覆盖默认值，未出现的保持默认。
func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: sqlite
  path: /tmp/drafts.db
retention:
  enabled: true
  cron: "*/5 * * * *"
  period: 48h
paging:
  stale_after: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Retention.Period != 48*time.Hour {
		t.Fatalf("expected period 48h, got %v", cfg.Retention.Period)
	}
	if cfg.Paging.StaleAfter != time.Minute || cfg.Paging.MaxLimit != 25 {
		t.Fatalf("unexpected paging config: %+v", cfg.Paging)
	}
}

// TestLoadEnvOverrides 验证环境变量覆盖监听地址、数据库路径与客户端参数。
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHATDRAFTS_ADDR", "127.0.0.1:7000")
	t.Setenv("CHATDRAFTS_DB_PATH", "/var/lib/chatdrafts.db")
	t.Setenv("CHATDRAFTS_SERVER_URL", "http://backend:7000")
	t.Setenv("CHATDRAFTS_USER_ID", "alice")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:7000" {
		t.Fatalf("expected addr override, got %s", cfg.Addr())
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/var/lib/chatdrafts.db" {
		t.Fatalf("expected sqlite storage override, got %+v", cfg.Storage)
	}
	if cfg.Client.ServerURL != "http://backend:7000" || cfg.Client.UserID != "alice" {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
}

// TestValidateRejectsBadRetentionCron 验证启用清理时 cron 表达式必须合法。
func TestValidateRejectsBadRetentionCron(t *testing.T) {
	cfg := Default()
	cfg.Retention.Enabled = true
	cfg.Retention.Cron = "every day"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "retention.cron") {
		t.Fatalf("expected cron validation error, got %v", err)
	}
}

// TestValidateRequiresSQLitePath 验证 sqlite 驱动必须配置路径。
func TestValidateRequiresSQLitePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for sqlite without path")
	}
}
