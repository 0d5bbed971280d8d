package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLoadSeedParsesFile 验证能读取仓库自带的演示数据。
func TestLoadSeedParsesFile(t *testing.T) {
	seed, err := LoadSeed(filepath.Join("..", "..", "..", "configs", "seed.json"))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(seed.Users) == 0 || len(seed.Messages) == 0 || len(seed.Attachments) == 0 {
		t.Fatalf("expected non-empty seed, got %d users %d messages %d attachments",
			len(seed.Users), len(seed.Messages), len(seed.Attachments))
	}
}

// TestLoadSeedRejectsMissingID 验证缺少 ID 的记录会报错。
func TestLoadSeedRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`{"users":[{"name":"nobody"}]}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	_, err := LoadSeed(path)
	if err == nil || !strings.Contains(err.Error(), "users[0]") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}
