package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/notes-bin/imghost/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	createdSet  = "images:created"  // score: 创建时间（微秒）
	expiringSet = "images:expiring" // score: 过期时间（微秒），仅临时图片
	tokenSet    = "tokens"
)

func imageKey(id string) string { return fmt.Sprintf("image:%s", id) }
func hashKey(digest string) string { return fmt.Sprintf("image:hash:%s", digest) }
func pathKey(path string) string { return fmt.Sprintf("image:path:%s", path) }
func tokenKey(token string) string { return fmt.Sprintf("token:%s", token) }

// 摘要和路径的唯一性检查与写入在同一个脚本里完成
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then return 1 end
if redis.call('EXISTS', KEYS[3]) == 1 then return 2 end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
if ARGV[3] ~= '' then
	redis.call('ZADD', KEYS[5], ARGV[3], ARGV[1])
end
return 0
`)

var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

var touchTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'last_used_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'usage_count', 1)
`)

type Client struct {
	*redis.Client
}

func NewClient(addr, password string, db, poolSize int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to Redis", "addr", addr)
	return &Client{client}, nil
}

// Wrap uses an already configured go-redis client.
func Wrap(client *redis.Client) *Client {
	return &Client{client}
}

func (c *Client) InsertImage(ctx context.Context, img *model.Image) error {
	expires := ""
	if img.ExpiresAt != nil {
		expires = strconv.FormatInt(img.ExpiresAt.UnixMicro(), 10)
	}
	args := append([]any{img.ID, img.CreatedAt.UnixMicro(), expires}, imageFields(img)...)
	keys := []string{imageKey(img.ID), hashKey(img.ContentHash), pathKey(img.StoragePath), createdSet, expiringSet}

	code, err := createScript.Run(ctx, c, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	switch code {
	case 1:
		return model.ErrDuplicateHash
	case 2:
		return model.ErrPathConflict
	}
	return nil
}

func (c *Client) FindByID(ctx context.Context, id string) (*model.Image, error) {
	data, err := c.HGetAll(ctx, imageKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, model.ErrNotFound
	}
	return decodeImage(data)
}

func (c *Client) FindByHash(ctx context.Context, digest string) (*model.Image, error) {
	return c.findByIndex(ctx, hashKey(digest))
}

func (c *Client) FindByPath(ctx context.Context, path string) (*model.Image, error) {
	return c.findByIndex(ctx, pathKey(path))
}

func (c *Client) findByIndex(ctx context.Context, key string) (*model.Image, error) {
	id, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c.FindByID(ctx, id)
}

func (c *Client) RemoveImage(ctx context.Context, id string) error {
	img, err := c.FindByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, imageKey(id), hashKey(img.ContentHash), pathKey(img.StoragePath))
		pipe.ZRem(ctx, createdSet, id)
		pipe.ZRem(ctx, expiringSet, id)
		return nil
	})
	return err
}

func (c *Client) IncrementView(ctx context.Context, id string) error {
	n, err := incrementScript.Run(ctx, c, []string{imageKey(id)}, "view_count").Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListImages returns one page, newest first, plus the total count.
func (c *Client) ListImages(ctx context.Context, offset, limit int) ([]*model.Image, int, error) {
	total, err := c.ZCard(ctx, createdSet).Result()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 || int64(offset) >= total {
		return []*model.Image{}, int(total), nil
	}
	ids, err := c.ZRevRange(ctx, createdSet, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	images, err := c.loadImages(ctx, ids)
	return images, int(total), err
}

func (c *Client) ListExpired(ctx context.Context, now time.Time) ([]*model.Image, error) {
	ids, err := c.ZRangeByScore(ctx, expiringSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	images, err := c.loadImages(ctx, ids)
	if err != nil {
		return nil, err
	}
	expired := images[:0]
	for _, img := range images {
		if img.Expired(now) {
			expired = append(expired, img)
		}
	}
	return expired, nil
}

func (c *Client) loadImages(ctx context.Context, ids []string) ([]*model.Image, error) {
	if len(ids) == 0 {
		return []*model.Image{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, imageKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	images := make([]*model.Image, 0, len(ids))
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			// 并发删除时索引可能短暂残留
			continue
		}
		img, err := decodeImage(data)
		if err != nil {
			slog.Error("Failed to decode image", "image_id", ids[i], "error", err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}
