package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/logging"
	"github.com/jordane95/wqb-hub/internal/metrics"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，调用方持有实例并按需传递。
func NewStore(basePath string, opts Options) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
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

	return &fileStore{
		basePath: abs,
		logger:   logger,
		now:      clock,
	}, nil
}

// fileStore 在进程内用互斥锁串行化索引的读改写；跨进程并发写入不受保护。
type fileStore struct {
	basePath string
	logger   logrus.FieldLogger
	now      func() time.Time

	mu    sync.Mutex
	index *indexFile
}

type indexFile struct {
	Version int                   `json:"version"`
	Entries map[string]IndexEntry `json:"entries"`
}

func newIndexFile() *indexFile {
	return &indexFile{Version: indexVersion, Entries: make(map[string]IndexEntry)}
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) IsValid(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.loadIndex().Entries[key]
	return ok && entry.ValidAt(s.now())
}

func (s *fileStore) Get(key string) (IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, _, err := s.lookup(key)
	if err != nil {
		return IndexEntry{}, false
	}
	return entry, true
}

func (s *fileStore) ReadTable(key string) ([]Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, filePath, err := s.lookup(key)
	if err != nil {
		s.recordMiss(key)
		return nil, false
	}

	f, err := os.Open(filePath)
	if err != nil {
		s.readFailed(key, err)
		return nil, false
	}
	defer f.Close()

	rows, err := decodeTable(f)
	if err != nil {
		s.readFailed(key, err)
		return nil, false
	}

	metrics.CacheRequest(metrics.CacheHit)
	s.logger.WithFields(logging.CacheFields("cache_read", key)).
		WithField("rows", len(rows)).Debug("cache hit")
	return rows, true
}

func (s *fileStore) WriteTable(key string, rows []Row, ttlDays int, relPath string) error {
	if len(rows) == 0 {
		return nil
	}

	payload, err := encodeTable(rows)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(rows)
	if err := s.writePayload(key, relPath, ttlDays, payload, &count); err != nil {
		return err
	}
	s.logger.WithFields(logging.CacheFields("cache_write", key)).
		WithFields(logrus.Fields{"rows": count, "path": relPath}).Info("cache write")
	return nil
}

func (s *fileStore) ReadDict(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, filePath, err := s.lookup(key)
	if err != nil {
		s.recordMiss(key)
		return nil, false
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		s.readFailed(key, err)
		return nil, false
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.readFailed(key, err)
		return nil, false
	}

	metrics.CacheRequest(metrics.CacheHit)
	s.logger.WithFields(logging.CacheFields("cache_read", key)).Debug("cache hit")
	return data, true
}

func (s *fileStore) WriteDict(key string, data any, ttlDays int, relPath string) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dict %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writePayload(key, relPath, ttlDays, payload, nil); err != nil {
		return err
	}
	s.logger.WithFields(logging.CacheFields("cache_write", key)).
		WithField("path", relPath).Info("cache write")
	return nil
}

func (s *fileStore) Invalidate(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadIndex()
	entry, ok := idx.Entries[key]
	if !ok {
		return nil
	}
	delete(idx.Entries, key)
	if err := s.saveIndex(); err != nil {
		return err
	}

	if filePath, err := s.path(entry.Path); err == nil {
		if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithFields(logging.CacheFields("cache_invalidate", key)).Warn("remove cached file failed")
		}
	}
	s.logger.WithFields(logging.CacheFields("cache_invalidate", key)).Info("cache invalidate")
	return nil
}

func (s *fileStore) InvalidateAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = newIndexFile()
	if err := s.saveIndex(); err != nil {
		return err
	}

	children, err := os.ReadDir(s.basePath)
	if err != nil {
		return fmt.Errorf("list cache root: %w", err)
	}
	for _, child := range children {
		if child.Name() == indexFileName {
			continue
		}
		target := filepath.Join(s.basePath, child.Name())
		if err := os.RemoveAll(target); err != nil {
			s.logger.WithError(err).WithFields(logging.CacheFields("cache_invalidate_all", child.Name())).Warn("remove cache child failed")
		}
	}
	s.logger.WithFields(logging.CacheFields("cache_invalidate_all", "*")).Info("cache invalidate all")
	return nil
}

func (s *fileStore) Entries() map[string]IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadIndex()
	out := make(map[string]IndexEntry, len(idx.Entries))
	for k, v := range idx.Entries {
		out[k] = v
	}
	return out
}

// lookup 返回有效条目及其绝对路径；索引缺失、过期、文件不存在统一视为 ErrNotFound。
func (s *fileStore) lookup(key string) (IndexEntry, string, error) {
	entry, ok := s.loadIndex().Entries[key]
	if !ok || !entry.ValidAt(s.now()) {
		return IndexEntry{}, "", ErrNotFound
	}
	filePath, err := s.path(entry.Path)
	if err != nil {
		return IndexEntry{}, "", ErrNotFound
	}
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return IndexEntry{}, "", ErrNotFound
	}
	return entry, filePath, nil
}

// writePayload 依次原子写入正文、目录 .meta.json 与中央索引，三者各自原子但不构成事务。
func (s *fileStore) writePayload(key, relPath string, ttlDays int, payload []byte, count *int) error {
	filePath, err := s.path(relPath)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(filePath, payload); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	cachedAt := NewTimestamp(s.now())
	idx := s.loadIndex()
	idx.Entries[key] = IndexEntry{
		CachedAt:    cachedAt,
		TTLDays:     ttlDays,
		Path:        cleanRel(relPath),
		RecordCount: count,
	}
	if err := s.saveIndex(); err != nil {
		return err
	}

	metaPath := filepath.Join(filepath.Dir(filePath), metaFileName)
	meta := loadMeta(metaPath)
	meta[filepath.Base(filePath)] = MetaEntry{CachedAt: cachedAt, TTLDays: ttlDays, RecordCount: count}
	if err := WriteJSONAtomic(metaPath, meta); err != nil {
		return fmt.Errorf("write meta for %s: %w", relPath, err)
	}
	return nil
}

// loadIndex 懒加载中央索引；版本不匹配或文件损坏时从空索引开始。
func (s *fileStore) loadIndex() *indexFile {
	if s.index != nil {
		return s.index
	}
	raw, err := os.ReadFile(filepath.Join(s.basePath, indexFileName))
	if err == nil {
		var idx indexFile
		if jsonErr := json.Unmarshal(raw, &idx); jsonErr == nil && idx.Version == indexVersion {
			if idx.Entries == nil {
				idx.Entries = make(map[string]IndexEntry)
			}
			s.index = &idx
			return s.index
		}
	}
	s.index = newIndexFile()
	return s.index
}

func (s *fileStore) saveIndex() error {
	if err := WriteJSONAtomic(filepath.Join(s.basePath, indexFileName), s.loadIndex()); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	return nil
}

func loadMeta(metaPath string) map[string]MetaEntry {
	meta := make(map[string]MetaEntry)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &meta); err != nil {
		return make(map[string]MetaEntry)
	}
	return meta
}

func (s *fileStore) recordMiss(key string) {
	metrics.CacheRequest(metrics.CacheMiss)
	s.logger.WithFields(logging.CacheFields("cache_read", key)).Debug("cache miss")
}

func (s *fileStore) readFailed(key string, err error) {
	metrics.CacheRequest(metrics.CacheMiss)
	s.logger.WithError(err).WithFields(logging.CacheFields("cache_read", key)).Warn("cache read error")
}

// path 将相对路径解析到根目录下，拒绝越界路径。
func (s *fileStore) path(relPath string) (string, error) {
	rel := cleanRel(relPath)
	if rel == "" || rel == indexFileName {
		return "", fmt.Errorf("invalid cache path: %q", relPath)
	}
	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}

func cleanRel(relPath string) string {
	rel := path.Clean("/" + filepath.ToSlash(relPath))
	return strings.TrimPrefix(rel, "/")
}
