package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind 描述缓存载荷的形态。
type Kind string

const (
	KindTable Kind = "table"
	KindDict  Kind = "dict"
)

// Built-in category names.
const (
	CategoryOperators        = "operators"
	CategoryDatasets         = "datasets"
	CategoryPlatformSettings = "platform_settings"
)

// ErrUnknownCategory 表示引用了未注册的缓存分类。
var ErrUnknownCategory = errors.New("unknown cache category")

// Category 记录一类缓存数据的静态信息，供 Service 与诊断接口使用。
type Category struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Kind           Kind   `json:"kind"`
	TTLDays        int    `json:"ttl_days"`
	// DefaultTTLDays 是覆盖前的内置 TTL。
	DefaultTTLDays int    `json:"default_ttl_days"`
}

func builtinCategories() []Category {
	return []Category{
		{Name: CategoryOperators, Description: "operator catalog", Kind: KindTable, TTLDays: 30},
		{Name: CategoryDatasets, Description: "datasets per instrument/region/universe/delay", Kind: KindTable, TTLDays: 7},
		{Name: CategoryPlatformSettings, Description: "simulation setting options", Kind: KindDict, TTLDays: 30},
	}
}

// Registry 保存分类元数据；名字大小写不敏感。
type Registry struct {
	mu         sync.RWMutex
	categories map[string]Category
}

// NewRegistry 注册内置分类并应用 TTL 覆盖，覆盖项引用未知分类时返回 ErrUnknownCategory。
func NewRegistry(ttlOverrides map[string]int) (*Registry, error) {
	r := &Registry{categories: make(map[string]Category)}
	for _, c := range builtinCategories() {
		r.mustRegister(c)
	}
	for name, days := range ttlOverrides {
		if err := r.override(name, days); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register 加入新分类，重复名字会返回错误。
func (r *Registry) Register(c Category) error {
	name := normalizeName(c.Name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	if c.TTLDays <= 0 {
		return fmt.Errorf("category %s: ttl must be positive", name)
	}
	c.Name = name
	if c.Kind == "" {
		c.Kind = KindTable
	}
	c.DefaultTTLDays = c.TTLDays

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.categories[name]; exists {
		return fmt.Errorf("category %s already registered", name)
	}
	r.categories[name] = c
	return nil
}

func (r *Registry) mustRegister(c Category) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

func (r *Registry) override(name string, days int) error {
	key := normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.categories[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	if days <= 0 {
		return fmt.Errorf("category %s: ttl must be positive", key)
	}
	c.TTLDays = days
	r.categories[key] = c
	return nil
}

// Resolve 返回指定分类。
func (r *Registry) Resolve(name string) (Category, bool) {
	if name == "" {
		return Category{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.categories[normalizeName(name)]
	return c, ok
}

// TTLDays 返回分类的有效 TTL。
func (r *Registry) TTLDays(name string) (int, error) {
	c, ok := r.Resolve(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	return c.TTLDays, nil
}

// List 返回按名字排序的分类列表。
func (r *Registry) List() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Category, 0, len(names))
	for _, name := range names {
		out = append(out, r.categories[name])
	}
	return out
}
