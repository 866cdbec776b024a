package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/notes-bin/imghost/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrSessionsDisabled = errors.New("sessions disabled: no jwt secret configured")

// Sessions issues and verifies the bearer tokens of logged-in users. Accounts
// are managed elsewhere; only the signed identity is trusted here.
type Sessions struct {
	secret []byte
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), now: time.Now}
}

func (s *Sessions) Enabled() bool {
	return len(s.secret) > 0
}

func (s *Sessions) Issue(user *model.User, expiresIn time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrSessionsDisabled
	}
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
		"exp":      s.now().Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Sessions) Parse(tokenStr string) (*model.User, error) {
	if !s.Enabled() {
		return nil, ErrSessionsDisabled
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	// 类型断言失败视为伪造的令牌
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid session: missing user_id")
	}
	username, _ := claims["username"].(string)
	isAdmin, _ := claims["is_admin"].(bool)
	return &model.User{ID: userID, Username: username, IsAdmin: isAdmin}, nil
}
