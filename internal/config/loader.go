package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultConfigPath 为未显式指定 -config 时尝试读取的文件；不存在时仅使用默认值。
const DefaultConfigPath = "config.toml"

// envPrefix 约定环境变量覆盖的前缀，例如 WQB_EMAIL、WQB_PASSWORD。
const envPrefix = "WQB"

// envOverlay 描述允许通过环境变量覆盖的字段；凭证优先从环境读取，避免写入配置文件。
type envOverlay struct {
	Email     string `envconfig:"EMAIL"`
	Password  string `envconfig:"PASSWORD"`
	CacheRoot string `envconfig:"CACHE_ROOT"`
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	if err := rejectLegacyKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := applyEnvOverlay(&cfg.Global); err != nil {
		return nil, err
	}
	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Categories {
		cfg.Categories[i].Name = strings.ToLower(strings.TrimSpace(cfg.Categories[i].Name))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := expandHome(cfg.Global.CacheRoot)
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheRoot", "~/.wqb_mcp/cache")
	v.SetDefault("PlatformURL", "https://api.worldquantbrain.com")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("RequestsPerSecond", 5.0)
	v.SetDefault("RequestBurst", 5)
	v.SetDefault("RosterStage", "OS")
	v.SetDefault("RosterPageSize", 100)
	v.SetDefault("Threshold", 0.7)
	v.SetDefault("Years", 4)
	v.SetDefault("MinOverlap", 30)
	v.SetDefault("FetchConcurrency", 3)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		g.CacheRoot = "~/.wqb_mcp/cache"
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.RequestBurst <= 0 {
		g.RequestBurst = 1
	}
	if g.FetchConcurrency <= 0 {
		g.FetchConcurrency = 1
	}
	g.PlatformURL = strings.TrimRight(strings.TrimSpace(g.PlatformURL), "/")
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
}

// applyEnvOverlay 用 WQB_* 环境变量覆盖文件中的凭证与缓存目录。
func applyEnvOverlay(g *GlobalConfig) error {
	var overlay envOverlay
	if err := envconfig.Process(envPrefix, &overlay); err != nil {
		return fmt.Errorf("读取环境变量失败: %w", err)
	}
	if overlay.Email != "" {
		g.Email = overlay.Email
	}
	if overlay.Password != "" {
		g.Password = overlay.Password
	}
	if overlay.CacheRoot != "" {
		g.CacheRoot = overlay.CacheRoot
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("无法定位用户目录: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectLegacyKeys 拒绝旧版配置中的 StoragePath 与 Category.TTL 写法，提示迁移到新字段。
func rejectLegacyKeys(v *viper.Viper) error {
	if v.IsSet("StoragePath") {
		return newFieldError("Global.StoragePath", "字段已弃用，请改用 CacheRoot")
	}

	raw := v.Get("Category")
	categories, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	for idx, entry := range categories {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := lookupFold(m, "TTL"); exists {
			name := fmt.Sprintf("#%d", idx)
			if rawName, ok := lookupFold(m, "Name"); ok {
				if str, ok := rawName.(string); ok && str != "" {
					name = strings.ToLower(str)
				}
			}
			return newFieldError(categoryField(name, "TTL"), "字段已弃用，请使用以天为单位的 TTLDays")
		}
	}
	return nil
}

// lookupFold 忽略大小写查找键；viper 对数组内表的键是否归一化取决于版本。
func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
