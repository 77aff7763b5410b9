package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级运行参数：日志、缓存目录、平台访问与相关性默认值。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// CacheRoot 同时承载静态缓存（index.json）与基线缓存（entities/）。
	CacheRoot string `mapstructure:"CacheRoot"`

	PlatformURL       string   `mapstructure:"PlatformURL"`
	Email             string   `mapstructure:"Email"`
	Password          string   `mapstructure:"Password"`
	MaxRetries        int      `mapstructure:"MaxRetries"`
	InitialBackoff    Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	RequestsPerSecond float64  `mapstructure:"RequestsPerSecond"`
	RequestBurst      int      `mapstructure:"RequestBurst"`

	RosterStage      string  `mapstructure:"RosterStage"`
	RosterPageSize   int     `mapstructure:"RosterPageSize"`
	Threshold        float64 `mapstructure:"Threshold"`
	Years            int     `mapstructure:"Years"`
	MinOverlap       int     `mapstructure:"MinOverlap"`
	FetchConcurrency int     `mapstructure:"FetchConcurrency"`
}

// CategoryConfig 覆盖某个缓存类别的 TTL（天）。
type CategoryConfig struct {
	Name    string `mapstructure:"Name"`
	TTLDays int    `mapstructure:"TTLDays"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	Categories []CategoryConfig `mapstructure:"Category"`
}

// HasCredentials 表示是否配置了完整的平台凭证。
func (g GlobalConfig) HasCredentials() bool {
	return g.Email != "" && g.Password != ""
}

// AuthMode 返回 credentialed/anonymous，用于启动日志，避免输出凭证本身。
func (g GlobalConfig) AuthMode() string {
	if g.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// CategoryTTLOverrides 将 [[Category]] 配置整理为 name -> ttl_days。
func (c *Config) CategoryTTLOverrides() map[string]int {
	if c == nil || len(c.Categories) == 0 {
		return nil
	}
	out := make(map[string]int, len(c.Categories))
	for _, cat := range c.Categories {
		out[strings.ToLower(strings.TrimSpace(cat.Name))] = cat.TTLDays
	}
	return out
}
