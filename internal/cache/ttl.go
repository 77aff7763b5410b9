package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// isoLayout 与索引文件既有格式保持一致（UTC 偏移写成 +00:00，微秒精度）。
const isoLayout = "2006-01-02T15:04:05.000000-07:00"

// Timestamp 以 ISO-8601 序列化时间戳，兼容带/不带小数秒以及 Z 结尾的写法。
type Timestamp struct {
	time.Time
}

// NewTimestamp 将时间统一转换为 UTC 后包装。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON 输出 "2024-01-01T00:00:00.000000+00:00" 形式。
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.UTC().Format(isoLayout))
}

// UnmarshalJSON 接受 RFC3339 / RFC3339Nano 以及 isoLayout。
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp 解析索引文件中出现过的各种 ISO 写法。
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, isoLayout, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

// ExpiresAt 返回条目失效的时间点。
func (e IndexEntry) ExpiresAt() time.Time {
	return e.CachedAt.Add(time.Duration(e.TTLDays) * 24 * time.Hour)
}

// ValidAt 判断条目在 now 时刻是否仍有效：now < cached_at + ttl_days。
func (e IndexEntry) ValidAt(now time.Time) bool {
	if e.CachedAt.IsZero() {
		return false
	}
	return now.Before(e.ExpiresAt())
}
