// Package cache keeps recently served image records in memory so hot
// capability URLs skip the metadata lookup.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notes-bin/imghost/internal/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imghost_record_cache_hits_total",
		Help: "Record cache hits on the serve path.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imghost_record_cache_misses_total",
		Help: "Record cache misses on the serve path.",
	})
)

// Records maps storage path to record. A nil *Records is a disabled cache.
type Records struct {
	lru *expirable.LRU[string, *model.Image]
}

// NewRecords returns nil when size is not positive.
func NewRecords(size int, ttl time.Duration) *Records {
	if size <= 0 {
		return nil
	}
	return &Records{lru: expirable.NewLRU[string, *model.Image](size, nil, ttl)}
}

func (c *Records) Get(path string) (*model.Image, bool) {
	if c == nil {
		return nil, false
	}
	img, ok := c.lru.Get(path)
	if ok {
		cacheHitsTotal.Inc()
		return img, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

func (c *Records) Set(img *model.Image) {
	if c == nil {
		return
	}
	c.lru.Add(img.StoragePath, img)
}

func (c *Records) Remove(path string) {
	if c == nil {
		return
	}
	c.lru.Remove(path)
}

func (c *Records) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
