package auth

import (
	"context"

	"github.com/notes-bin/imghost/internal/model"
)

// Credentials are whatever the caller presented: a verified session user
// and/or a raw access token.
type Credentials struct {
	User  *model.User
	Token string
}

// Decision is the outcome of a successful gate check.
type Decision struct {
	User  *model.User
	Token *model.AccessToken
	Guest bool
}

func (d Decision) Authenticated() bool {
	return d.User != nil || d.Token != nil
}

// Owner is the user id stamped on new records; token and guest uploads have none.
func (d Decision) Owner() string {
	if d.User != nil {
		return d.User.ID
	}
	return ""
}

// CanDelete allows token holders, admins and the record owner.
func (d Decision) CanDelete(img *model.Image) bool {
	switch {
	case d.Token != nil:
		return true
	case d.User == nil:
		return false
	case d.User.IsAdmin:
		return true
	default:
		return img.OwnerUser != "" && img.OwnerUser == d.User.ID
	}
}

type Gate struct {
	registry         *Registry
	requireAuth      bool
	allowGuestUpload bool
}

func NewGate(registry *Registry, requireAuth, allowGuestUpload bool) *Gate {
	return &Gate{registry: registry, requireAuth: requireAuth, allowGuestUpload: allowGuestUpload}
}

func (g *Gate) ForUpload(ctx context.Context, c Credentials) (Decision, error) {
	if c.User != nil {
		return Decision{User: c.User}, nil
	}
	if c.Token != "" {
		return g.withToken(ctx, c.Token)
	}
	if g.allowGuestUpload && !g.requireAuth {
		return Decision{Guest: true}, nil
	}
	return Decision{}, model.ErrAuthRequired
}

func (g *Gate) ForListing(ctx context.Context, c Credentials) (Decision, error) {
	if !g.requireAuth {
		return Decision{User: c.User, Guest: c.User == nil}, nil
	}
	return g.identify(ctx, c)
}

func (g *Gate) ForDelete(ctx context.Context, c Credentials) (Decision, error) {
	return g.identify(ctx, c)
}

func (g *Gate) identify(ctx context.Context, c Credentials) (Decision, error) {
	if c.User != nil {
		return Decision{User: c.User}, nil
	}
	if c.Token == "" {
		return Decision{}, model.ErrAuthRequired
	}
	return g.withToken(ctx, c.Token)
}

func (g *Gate) withToken(ctx context.Context, token string) (Decision, error) {
	tok, err := g.registry.Authenticate(ctx, token)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Token: tok}, nil
}
