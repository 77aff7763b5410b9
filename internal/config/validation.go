package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别: "+g.LogLevel)
	}
	switch g.LogFormat {
	case "", "json", "text":
	default:
		return newFieldError("Global.LogFormat", "仅支持 json/text")
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if err := validatePlatformURL(g.PlatformURL); err != nil {
		return newFieldError("Global.PlatformURL", err.Error())
	}
	if (g.Email == "") != (g.Password == "") {
		return newFieldError("Global.Email/Password", "必须同时提供或同时留空")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.RequestsPerSecond < 0 {
		return newFieldError("Global.RequestsPerSecond", "不能为负数")
	}
	if strings.TrimSpace(g.RosterStage) == "" {
		return newFieldError("Global.RosterStage", "不能为空")
	}
	if g.RosterPageSize <= 0 {
		return newFieldError("Global.RosterPageSize", "必须大于 0")
	}
	if g.Threshold < 0 || g.Threshold > 1 {
		return newFieldError("Global.Threshold", "必须在 0-1 之间")
	}
	if g.Years <= 0 {
		return newFieldError("Global.Years", "必须大于 0")
	}
	if g.MinOverlap < 2 {
		return newFieldError("Global.MinOverlap", "至少为 2")
	}

	seen := map[string]struct{}{}
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return newFieldError("Category[].Name", "不能为空")
		}
		if _, exists := seen[cat.Name]; exists {
			return newFieldError(categoryField(cat.Name, "Name"), "重复")
		}
		seen[cat.Name] = struct{}{}
		if cat.TTLDays <= 0 {
			return newFieldError(categoryField(cat.Name, "TTLDays"), "必须大于 0")
		}
	}

	return nil
}

func validatePlatformURL(raw string) error {
	if raw == "" {
		return errors.New("缺少平台地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("平台地址缺少 Host: %s", raw)
	}
	return nil
}
