package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/imghost/internal/model"
)

// TokenStore is implemented by the redis and sqlite stores.
type TokenStore interface {
	InsertToken(ctx context.Context, tok *model.AccessToken) error
	FindToken(ctx context.Context, token string) (*model.AccessToken, error)
	TouchToken(ctx context.Context, token string, at time.Time) error
	ListTokens(ctx context.Context) ([]*model.AccessToken, error)
	SetTokenActive(ctx context.Context, token string, active bool) error
}

type Registry struct {
	store TokenStore
	clock model.Clock
}

func NewRegistry(store TokenStore, clock model.Clock) *Registry {
	return &Registry{store: store, clock: clock}
}

// Authenticate accepts only an exact, active match. Disabled and unknown
// tokens are indistinguishable to the caller.
func (r *Registry) Authenticate(ctx context.Context, token string) (*model.AccessToken, error) {
	if token == "" {
		return nil, model.ErrInvalidToken
	}
	tok, err := r.store.FindToken(ctx, token)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}
	if !tok.IsActive || tok.Token != token {
		return nil, model.ErrInvalidToken
	}
	return tok, nil
}

// RecordUse bumps the usage counter. Failures are logged, never returned to uploaders.
func (r *Registry) RecordUse(ctx context.Context, token string) {
	if err := r.store.TouchToken(ctx, token, r.clock.Now()); err != nil {
		slog.Warn("Failed to record token use", "token", preview(token), "error", err)
	}
}

func (r *Registry) Issue(ctx context.Context, name string) (*model.AccessToken, error) {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	tok := &model.AccessToken{
		Token:     hex.EncodeToString(sum[:]),
		Name:      name,
		IsActive:  true,
		CreatedAt: r.clock.Now().UTC(),
	}
	if err := r.store.InsertToken(ctx, tok); err != nil {
		return nil, err
	}
	slog.Info("Access token created", "name", name, "token", tok.Preview())
	return tok, nil
}

func (r *Registry) List(ctx context.Context) ([]*model.AccessToken, error) {
	return r.store.ListTokens(ctx)
}

func (r *Registry) Disable(ctx context.Context, token string) error {
	return r.store.SetTokenActive(ctx, token, false)
}

func preview(token string) string {
	return (&model.AccessToken{Token: token}).Preview()
}
