package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/metrics"
	"github.com/jordane95/wqb-hub/internal/returns"
)

const (
	// Dir 是基线缓存相对缓存根目录的子目录名。
	Dir = "entities"

	indexFileName  = "index.json"
	seriesFileName = "daily-pnl.csv"
	indexVersion   = 1
)

// Options 控制 Cache 的可选依赖。
type Options struct {
	Logger logrus.FieldLogger
	Clock  func() time.Time
}

// Cache 管理 entities/ 目录：名册索引在内存中修改，由 SaveIndex 显式提交；
// 序列文件在 SaveSeries 时立即原子写入。
type Cache struct {
	dir    string
	logger logrus.FieldLogger
	now    func() time.Time

	mu     sync.RWMutex
	index  rosterFile
	loaded bool
	frame  *returns.Frame
	// gen 在名册或序列变化时递增，构建中的宽表只在 gen 未变时才被缓存。
	gen    uint64
}

type rosterFile struct {
	Version   int              `json:"version"`
	UpdatedAt *cache.Timestamp `json:"updated_at"`
	Entities  map[string]Entry `json:"entities"`
}

// Open 在 <root>/entities 下打开基线缓存并加载已有名册。
func Open(root string, opts Options) (*Cache, error) {
	if root == "" {
		return nil, errors.New("baseline root required")
	}
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Cache{dir: dir, logger: logger, now: clock}
	c.load()
	return c, nil
}

// load 读取 entities/index.json；文件缺失、损坏或版本不符时从空名册开始。
func (c *Cache) load() {
	c.index = rosterFile{Version: indexVersion, Entities: make(map[string]Entry)}
	raw, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if err != nil {
		return
	}
	var idx rosterFile
	if err := json.Unmarshal(bytes.TrimSpace(raw), &idx); err != nil || idx.Version != indexVersion {
		c.logger.WithField("action", "baseline_load").Warn("baseline index unreadable, starting empty")
		return
	}
	if idx.Entities == nil {
		idx.Entities = make(map[string]Entry)
	}
	c.index = idx
	c.loaded = true
	metrics.BaselineSize(len(idx.Entities))
}

// Dir 返回 entities 目录的绝对路径。
func (c *Cache) Dir() string {
	return c.dir
}

// Loaded 表示打开时磁盘上是否已有可用名册。
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// UpdatedAt 返回名册上次提交时间。
func (c *Cache) UpdatedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index.UpdatedAt == nil {
		return time.Time{}, false
	}
	return c.index.UpdatedAt.Time, true
}

// Register 在内存中插入或覆盖实体元数据，需 SaveIndex 才会落盘。
func (c *Cache) Register(id string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Entities[id] = entry
	c.invalidateFrame()
}

// invalidateFrame 丢弃缓存的宽表，调用方需持有写锁。
func (c *Cache) invalidateFrame() {
	c.frame = nil
	c.gen++
}

// SaveSeries 立即原子写入实体的收益序列。
func (c *Cache) SaveSeries(id string, s returns.Series) error {
	target, err := c.seriesPath(id)
	if err != nil {
		return err
	}
	s.ID = id
	if err := cache.WriteAtomic(target, func(w io.Writer) error {
		return returns.WriteCSV(w, s)
	}); err != nil {
		return fmt.Errorf("write series %s: %w", id, err)
	}

	c.mu.Lock()
	c.invalidateFrame()
	c.mu.Unlock()
	return nil
}

// SaveIndex 记录 updated_at 并一次性原子写入整个名册。
func (c *Cache) SaveIndex() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := cache.NewTimestamp(c.now())
	c.index.UpdatedAt = &stamp
	if err := cache.WriteJSONAtomic(filepath.Join(c.dir, indexFileName), c.index); err != nil {
		return fmt.Errorf("write baseline index: %w", err)
	}
	c.loaded = true
	metrics.BaselineSize(len(c.index.Entities))
	return nil
}

// Remove 从内存名册中移除实体并删除其目录。
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	delete(c.index.Entities, id)
	c.invalidateFrame()
	c.mu.Unlock()

	entityDir, err := c.entityDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(entityDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// IDs 返回已跟踪实体的 id（排序）。
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.index.Entities))
	for id := range c.index.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 返回已跟踪实体数。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index.Entities)
}

// Entry 返回实体元数据。
func (c *Cache) Entry(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.index.Entities[id]
	return e, ok
}

// Series 从磁盘读取单个实体的序列。
func (c *Cache) Series(id string) (returns.Series, error) {
	target, err := c.seriesPath(id)
	if err != nil {
		return returns.Series{}, err
	}
	f, err := os.Open(target)
	if err != nil {
		return returns.Series{}, err
	}
	defer f.Close()
	s, err := returns.ReadCSV(f, id)
	if err != nil {
		return returns.Series{}, fmt.Errorf("read series %s: %w", id, err)
	}
	s.ID = id
	return s, nil
}

// AllSeries 返回所有已跟踪实体按日期外连接的宽表。结果被缓存，
// 直到下一次 Register、SaveSeries 或 Remove。读取失败的序列被跳过。
func (c *Cache) AllSeries() returns.Frame {
	c.mu.RLock()
	if c.frame != nil {
		f := *c.frame
		c.mu.RUnlock()
		return f
	}
	gen := c.gen
	ids := make([]string, 0, len(c.index.Entities))
	for id := range c.index.Entities {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	series := make([]returns.Series, 0, len(ids))
	for _, id := range ids {
		s, err := c.Series(id)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action":    "baseline_load",
				"entity_id": id,
			}).Warn("skip unreadable series")
			continue
		}
		series = append(series, s)
	}
	frame := returns.Join(series...)

	c.mu.Lock()
	if c.gen == gen {
		c.frame = &frame
	}
	c.mu.Unlock()
	return frame
}

// Partition 返回分区内、region 非空且（给定 region 时）精确匹配的实体 id，已排序。
func (c *Cache) Partition(tag Tag, region string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, entry := range c.index.Entities {
		if entry.Region == "" || !tag.Matches(entry) {
			continue
		}
		if region != "" && entry.Region != region {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByRegion 将分区内实体按 region 分组。
func (c *Cache) ByRegion(tag Tag) map[string][]string {
	out := make(map[string][]string)
	for _, id := range c.Partition(tag, "") {
		entry, _ := c.Entry(id)
		out[entry.Region] = append(out[entry.Region], id)
	}
	return out
}

func (c *Cache) entityDir(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid entity id: %q", id)
	}
	return filepath.Join(c.dir, id), nil
}

func (c *Cache) seriesPath(id string) (string, error) {
	dir, err := c.entityDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, seriesFileName), nil
}
