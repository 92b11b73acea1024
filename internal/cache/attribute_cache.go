// Package cache holds revealed proof attributes for a bounded time without
// writing them to durable storage. It is a volatile, single-process store;
// multi-instance deployments need a shared equivalent (e.g. Redis) behind the
// same interface.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AttributeCache is a capacity-bounded store of revealed attributes keyed by
// session id. Entries evict autonomously once their TTL elapses, independent
// of the session's own expiry deadline.
type AttributeCache interface {
	Set(key string, attributes map[string]any)
	Get(key string) (map[string]any, bool)
}

type lruAttributeCache struct {
	lru *expirable.LRU[string, map[string]any]
}

// NewAttributeCache creates an AttributeCache bounded to size entries, each
// living at most ttl from insertion. A size of 0 means unbounded.
func NewAttributeCache(size int, ttl time.Duration) AttributeCache {
	return &lruAttributeCache{
		lru: expirable.NewLRU[string, map[string]any](size, nil, ttl),
	}
}

func (c *lruAttributeCache) Set(key string, attributes map[string]any) {
	c.lru.Add(key, attributes)
}

func (c *lruAttributeCache) Get(key string) (map[string]any, bool) {
	return c.lru.Get(key)
}
