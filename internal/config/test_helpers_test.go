package config

import (
	"os"
	"path/filepath"
	"testing"
)

// fixture 返回 testdata 下的配置样例路径，并清空会覆盖文件内容的 WQB_* 环境变量。
func fixture(t *testing.T, name string) string {
	t.Helper()
	isolateEnv(t)
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"WQB_EMAIL", "WQB_PASSWORD", "WQB_CACHE_ROOT"} {
		t.Setenv(key, "")
	}
}
