package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/notes-bin/imghost/internal/model"

	"github.com/redis/go-redis/v9"
)

func (c *Client) InsertToken(ctx context.Context, tok *model.AccessToken) error {
	key := tokenKey(tok.Token)
	// 先占位，避免覆盖已有令牌
	ok, err := c.HSetNX(ctx, key, "token", tok.Token).Result()
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrTokenExists
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeToken(tok)...)
		pipe.ZAdd(ctx, tokenSet, redis.Z{Score: float64(tok.CreatedAt.UnixMicro()), Member: tok.Token})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func (c *Client) FindToken(ctx context.Context, token string) (*model.AccessToken, error) {
	data, err := c.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, model.ErrNotFound
	}
	return decodeToken(data)
}

func (c *Client) TouchToken(ctx context.Context, token string, at time.Time) error {
	n, err := touchTokenScript.Run(ctx, c, []string{tokenKey(token)}, strconv.FormatInt(at.UnixNano(), 10)).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *Client) ListTokens(ctx context.Context) ([]*model.AccessToken, error) {
	values, err := c.ZRevRange(ctx, tokenSet, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	tokens := make([]*model.AccessToken, 0, len(values))
	for _, v := range values {
		tok, err := c.FindToken(ctx, v)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func (c *Client) SetTokenActive(ctx context.Context, token string, active bool) error {
	n, err := c.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return c.HSet(ctx, tokenKey(token), "is_active", boolString(active)).Err()
}
