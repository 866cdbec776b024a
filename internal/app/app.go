// Package app builds the service graph from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/notes-bin/imghost/internal/auth"
	"github.com/notes-bin/imghost/internal/cache"
	"github.com/notes-bin/imghost/internal/cleanup"
	"github.com/notes-bin/imghost/internal/config"
	"github.com/notes-bin/imghost/internal/ingest"
	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/redis"
	"github.com/notes-bin/imghost/internal/repository"
	"github.com/notes-bin/imghost/internal/retrieval"
	"github.com/notes-bin/imghost/internal/sqlite"
	"github.com/notes-bin/imghost/internal/storage"
)

// Backend is a metadata store that also keeps access tokens.
type Backend interface {
	repository.Metadata
	auth.TokenStore
	Close() error
}

type App struct {
	Config   *config.Config
	Repo     *repository.Repository
	Registry *auth.Registry
	Sessions *auth.Sessions
	Gate     *auth.Gate
	Ingest   *ingest.Pipeline
	Gateway  *retrieval.Gateway
	Sweeper  *cleanup.Sweeper

	backend Backend
}

// New connects the configured metadata backend and payload store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return Assemble(cfg, backend, files, model.RealClock{}), nil
}

func OpenBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Database.Driver {
	case "redis", "":
		client, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return client, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}

// Assemble wires already opened stores. Tests use it with temporary backends.
func Assemble(cfg *config.Config, backend Backend, files storage.Store, clock model.Clock) *App {
	repo := repository.New(backend, files)
	registry := auth.NewRegistry(backend, clock)
	records := cache.NewRecords(cfg.Cache.Size, time.Duration(cfg.Cache.TTL)*time.Second)
	gateway := retrieval.New(repo, records)

	return &App{
		Config:   cfg,
		Repo:     repo,
		Registry: registry,
		Sessions: auth.NewSessions(cfg.JWTSecret),
		Gate:     auth.NewGate(registry, cfg.RequireAuth, cfg.AllowGuestUpload),
		Ingest:   ingest.New(repo, registry, cfg, clock),
		Gateway:  gateway,
		Sweeper:  cleanup.NewSweeper(repo, clock, gateway.Forget),
		backend:  backend,
	}
}

// Delete removes an image through the repository and drops it from the serve cache.
func (a *App) Delete(ctx context.Context, id string) (*repository.DeleteResult, error) {
	res, err := a.Repo.Delete(ctx, id)
	if res != nil && res.Image != nil {
		a.Gateway.Forget(res.Image.StoragePath)
	}
	return res, err
}

func (a *App) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}
