// Package cache provides a small generic LRU cache.
//
//	c := cache.New[int64, *decode.Frame](32)
//	c.Set(12, frame)
//	f, ok := c.Get(12)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
