package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/redis"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRegistry(redis.Wrap(rdb), model.RealClock{})
}

func TestSessions(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s := NewSessions("secret")
	s.now = func() time.Time { return now }

	user := &model.User{ID: "u1", Username: "alice", IsAdmin: true}
	tokenStr, err := s.Issue(user, time.Hour)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		got, err := s.Parse(tokenStr)
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.True(t, got.IsAdmin)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewSessions("secret")
		later.now = func() time.Time { return now.Add(2 * time.Hour) }
		_, err := later.Parse(tokenStr)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSessions("other")
		other.now = s.now
		_, err := other.Parse(tokenStr)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Parse("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		off := NewSessions("")
		assert.False(t, off.Enabled())
		_, err := off.Issue(user, time.Hour)
		assert.ErrorIs(t, err, ErrSessionsDisabled)
		_, err = off.Parse(tokenStr)
		assert.ErrorIs(t, err, ErrSessionsDisabled)
	})
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	tok, err := r.Issue(ctx, "ci")
	require.NoError(t, err)
	assert.Len(t, tok.Token, 64)
	assert.True(t, tok.IsActive)

	got, err := r.Authenticate(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Name)

	for name, value := range map[string]string{
		"empty":      "",
		"unknown":    "deadbeef",
		"wrong case": string(upper(tok.Token)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Authenticate(ctx, value)
			assert.ErrorIs(t, err, model.ErrInvalidToken)
		})
	}

	r.RecordUse(ctx, tok.Token)
	r.RecordUse(ctx, tok.Token)
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].UsageCount)
	assert.NotNil(t, list[0].LastUsedAt)

	require.NoError(t, r.Disable(ctx, tok.Token))
	_, err = r.Authenticate(ctx, tok.Token)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func upper(s string) []byte {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return b
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	tok, err := r.Issue(ctx, "ci")
	require.NoError(t, err)
	user := &model.User{ID: "u1"}

	t.Run("upload", func(t *testing.T) {
		tests := []struct {
			name       string
			require    bool
			allowGuest bool
			creds      Credentials
			wantErr    error
			wantGuest  bool
		}{
			{"session user", true, false, Credentials{User: user}, nil, false},
			{"valid token", true, false, Credentials{Token: tok.Token}, nil, false},
			{"invalid token", true, false, Credentials{Token: "bad"}, model.ErrInvalidToken, false},
			{"invalid token with guests on", false, true, Credentials{Token: "bad"}, model.ErrInvalidToken, false},
			{"guest allowed", false, true, Credentials{}, nil, true},
			{"guest but auth required", true, true, Credentials{}, model.ErrAuthRequired, false},
			{"guest uploads off", false, false, Credentials{}, model.ErrAuthRequired, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				g := NewGate(r, tt.require, tt.allowGuest)
				d, err := g.ForUpload(ctx, tt.creds)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantGuest, d.Guest)
				assert.Equal(t, !tt.wantGuest, d.Authenticated())
			})
		}
	})

	t.Run("listing", func(t *testing.T) {
		open := NewGate(r, false, false)
		_, err := open.ForListing(ctx, Credentials{})
		assert.NoError(t, err)

		closed := NewGate(r, true, false)
		_, err = closed.ForListing(ctx, Credentials{})
		assert.ErrorIs(t, err, model.ErrAuthRequired)
		_, err = closed.ForListing(ctx, Credentials{Token: "bad"})
		assert.ErrorIs(t, err, model.ErrInvalidToken)
		_, err = closed.ForListing(ctx, Credentials{Token: tok.Token})
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		g := NewGate(r, false, true)
		_, err := g.ForDelete(ctx, Credentials{})
		assert.ErrorIs(t, err, model.ErrAuthRequired)

		img := &model.Image{OwnerUser: "u1"}
		d, err := g.ForDelete(ctx, Credentials{User: user})
		require.NoError(t, err)
		assert.True(t, d.CanDelete(img))
		assert.False(t, d.CanDelete(&model.Image{OwnerUser: "u2"}))
		assert.False(t, d.CanDelete(&model.Image{}))

		admin, err := g.ForDelete(ctx, Credentials{User: &model.User{ID: "root", IsAdmin: true}})
		require.NoError(t, err)
		assert.True(t, admin.CanDelete(&model.Image{OwnerUser: "u2"}))

		byToken, err := g.ForDelete(ctx, Credentials{Token: tok.Token})
		require.NoError(t, err)
		assert.True(t, byToken.CanDelete(&model.Image{}))
	})
}
