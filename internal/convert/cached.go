package convert

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// Cached memoizes a converter. Bodies are keyed by their full text, so the cache
// only pays off for repeated conversions of unchanged documents within a process.
type Cached struct {
	inner    Converter
	toLocal  *lru.Cache[string, string]
	toRemote *lru.Cache[string, string]
}

func NewCached(inner Converter, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	toLocal, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	toRemote, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, toLocal: toLocal, toRemote: toRemote}, nil
}

func (c *Cached) ToLocal(remote string) string {
	if v, ok := c.toLocal.Get(remote); ok {
		return v
	}
	v := c.inner.ToLocal(remote)
	c.toLocal.Add(remote, v)
	return v
}

func (c *Cached) ToRemote(local string) string {
	if v, ok := c.toRemote.Get(local); ok {
		return v
	}
	v := c.inner.ToRemote(local)
	c.toRemote.Add(local, v)
	return v
}
