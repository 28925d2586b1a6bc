// Package cache 提供带容量上限与写入过期的泛型缓存
//
// 看板用它缓存成本查找结果，写入成本时通过 Delete 主动失效。
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Cache 泛型 LRU 缓存
//
// 超过 MaxSize 时淘汰最久未使用的条目；条目在写入 TTL 之后失效，读取不会续期。
type Cache[K comparable, V any] struct {
	name   string
	config Config

	mu    sync.Mutex
	items map[K]*list.Element
	lru   *list.List // 最近使用的在前
	stats Stats
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // 零值表示不过期
}

// Config 缓存配置
type Config struct {
	Name string

	// MaxSize 最大条目数，0 表示不限
	MaxSize int

	// TTL 自写入起的有效期，0 表示不过期
	TTL time.Duration

	// Now 时间来源，测试可替换
	Now func() time.Time

	OnEvict func(key, value any)
}

// Stats 缓存统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expires   int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Cache[K, V]{
		name:   config.Name,
		config: config,
		items:  make(map[K]*list.Element),
		lru:    list.New(),
	}
}

// Get 获取未过期的值
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[K, V]) getLocked(key K) (V, bool) {
	var zero V
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeLocked(el)
		c.stats.Misses++
		c.stats.Expires++
		return zero, false
	}
	c.lru.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set 写入或覆盖，同时重置有效期
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	var expiresAt time.Time
	if c.config.TTL > 0 {
		expiresAt = c.config.Now().Add(c.config.TTL)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.stats.Evictions++
		}
	}
	c.items[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// GetOrLoad 命中时直接返回，否则调用 load 并缓存其结果
//
// load 在锁外执行，并发未命中时可能被调用多次，后写入者覆盖先写入者。
// load 返回错误时不缓存。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete 删除条目，返回条目是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear 清空缓存
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, el := range c.items {
		c.removeLocked(el)
	}
}

// CleanExpired 清理过期条目，返回清理数量
func (c *Cache[K, V]) CleanExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for _, el := range c.items {
		if c.expired(el.Value.(*entry[K, V])) {
			c.removeLocked(el)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Stats 返回统计副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.items)
	return s
}

// Size 当前条目数
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate 命中率
func (c *Cache[K, V]) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expiresAt.IsZero() && !c.config.Now().Before(e.expiresAt)
}

func (c *Cache[K, V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[K, V])
	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
	c.lru.Remove(el)
	delete(c.items, e.key)
}

// String 返回缓存概况
func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, hit_rate=%.2f%%, evictions=%d, expires=%d",
		c.name, s.Size, c.config.MaxSize, s.Hits, s.Misses, c.HitRate()*100, s.Evictions, s.Expires)
}
