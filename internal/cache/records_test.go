package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notes-bin/imghost/internal/model"
)

func TestRecords(t *testing.T) {
	c := NewRecords(2, time.Minute)

	a := &model.Image{ID: "a", StoragePath: "20240101/aaaaaaaa.jpg"}
	b := &model.Image{ID: "b", StoragePath: "20240101/bbbbbbbb.jpg"}
	d := &model.Image{ID: "d", StoragePath: "20240101/dddddddd.jpg"}

	c.Set(a)
	c.Set(b)
	got, ok := c.Get(a.StoragePath)
	assert.True(t, ok)
	assert.Equal(t, "a", got.ID)

	// b 最久未使用，被淘汰
	c.Set(d)
	_, ok = c.Get(b.StoragePath)
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Remove(a.StoragePath)
	_, ok = c.Get(a.StoragePath)
	assert.False(t, ok)
}

func TestRecordsDisabled(t *testing.T) {
	c := NewRecords(0, time.Minute)
	assert.Nil(t, c)

	c.Set(&model.Image{StoragePath: "x"})
	_, ok := c.Get("x")
	assert.False(t, ok)
	c.Remove("x")
	assert.Zero(t, c.Len())
}
