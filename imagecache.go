package imagelink

import (
	"container/list"
	"sync"
)

const DefaultCacheCapacity = 5

type CacheLoader[K comparable, V any] func(key K) (V, error)

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// ImageDataCache keeps the most recently used decoded images. A miss loads
// through the loader and evicts the least recently used entry once the
// capacity is exceeded. Failed loads are not cached.
type ImageDataCache[K comparable, V any] struct {
	mtx      sync.Mutex
	capacity int
	loader   CacheLoader[K, V]
	order    *list.List // front is most recent
	entries  map[K]*list.Element
}

// NewImageDataCache falls back to DefaultCacheCapacity for capacity <= 0.
func NewImageDataCache[K comparable, V any](capacity int, loader CacheLoader[K, V]) *ImageDataCache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ImageDataCache[K, V]{
		capacity: capacity,
		loader:   loader,
		order:    list.New(),
		entries:  make(map[K]*list.Element),
	}
}

func (c *ImageDataCache[K, V]) Get(key K) (V, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if element, found := c.entries[key]; found {
		c.order.MoveToFront(element)
		return element.Value.(*cacheEntry[K, V]).value, nil
	}

	value, err := c.loader(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.entries[key] = c.order.PushFront(&cacheEntry[K, V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry[K, V]).key)
	}
	return value, nil
}

func (c *ImageDataCache[K, V]) Remove(key K) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	element, found := c.entries[key]
	if !found {
		return false
	}
	c.order.Remove(element)
	delete(c.entries, key)
	return true
}

func (c *ImageDataCache[K, V]) Contains(key K) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	_, found := c.entries[key]
	return found
}

func (c *ImageDataCache[K, V]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.order.Len()
}

func (c *ImageDataCache[K, V]) Capacity() int {
	return c.capacity
}

func (c *ImageDataCache[K, V]) Clear() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.order.Init()
	c.entries = make(map[K]*list.Element)
}
