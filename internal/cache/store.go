package cache

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<root>/index.json              # 中央索引 {version, entries}
//	<root>/<category>/.meta.json   # 目录级元数据（仅供人工排查）
//	<root>/<category>/<name>.csv   # 表格类数据
//	<root>/<category>/<name>.json  # 非表格数据
//
// 所有读取接口在“索引缺失 / TTL 过期 / 文件缺失或损坏”时统一返回 miss，
// 调用方应当重新拉取而不是当作错误处理。
type Store interface {
	// Root 返回缓存根目录的绝对路径。
	Root() string

	// IsValid 判断 key 是否存在于索引且仍在 TTL 内。
	IsValid(key string) bool

	// Get 返回有效的索引条目；过期或文件缺失时返回 false。
	Get(key string) (IndexEntry, bool)

	// ReadTable 读取 CSV 表格，嵌套的 JSON 单元格会被还原。
	ReadTable(key string) ([]Row, bool)

	// WriteTable 以 CSV 写入行数据，并更新 .meta.json 与 index.json。空行集不会落盘。
	WriteTable(key string, rows []Row, ttlDays int, relPath string) error

	// ReadDict 读取 JSON 载荷。
	ReadDict(key string) (any, bool)

	// WriteDict 以 JSON 写入任意载荷，并更新 .meta.json 与 index.json。
	WriteDict(key string, data any, ttlDays int, relPath string) error

	// Invalidate 删除单个索引条目及其文件。
	Invalidate(key string) error

	// InvalidateAll 清空索引并删除根目录下除 index.json 以外的所有内容。
	InvalidateAll() error

	// Entries 返回索引快照（包含已过期条目），供诊断接口使用。
	Entries() map[string]IndexEntry
}

// Row 表示表格中的一行，值可以是标量或嵌套的 map/slice。
type Row map[string]any

// IndexEntry 对应 index.json 中的单个条目。
type IndexEntry struct {
	CachedAt    Timestamp `json:"cached_at"`
	TTLDays     int       `json:"ttl_days"`
	Path        string    `json:"path"`
	RecordCount *int      `json:"record_count,omitempty"`
}

// MetaEntry 对应 <dir>/.meta.json 中以文件名为键的条目。
type MetaEntry struct {
	CachedAt    Timestamp `json:"cached_at"`
	TTLDays     int       `json:"ttl_days"`
	RecordCount *int      `json:"record_count,omitempty"`
}

// Options 控制 Store 的可选依赖，零值即可使用。
type Options struct {
	Logger logrus.FieldLogger
	// Clock 用于 TTL 判断，测试中可注入固定时间。
	Clock func() time.Time
}

// ErrNotFound 表示缓存不存在或已失效，仅在包内用于区分 miss。
var ErrNotFound = errors.New("cache entry not found")

const (
	indexFileName = "index.json"
	metaFileName  = ".meta.json"
	indexVersion  = 1
)
