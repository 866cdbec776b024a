package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notes-bin/imghost/internal/model"
)

const tokenColumns = `token, name, is_active, usage_count, last_used_at, created_at`

func (s *Store) InsertToken(ctx context.Context, tok *model.AccessToken) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO access_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		tok.Token, tok.Name, tok.IsActive, tok.UsageCount, nullableTime(tok.LastUsedAt), tok.CreatedAt.UnixNano())
	if err != nil {
		return classifyInsert(err)
	}
	return nil
}

func (s *Store) FindToken(ctx context.Context, token string) (*model.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE token = ?`, token)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding token: %w", err)
	}
	return tok, nil
}

func (s *Store) TouchToken(ctx context.Context, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE access_tokens
		SET usage_count = usage_count + 1, last_used_at = ? WHERE token = ?`, at.UnixNano(), token)
	if err != nil {
		return fmt.Errorf("recording token use: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) ListTokens(ctx context.Context) ([]*model.AccessToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	tokens := []*model.AccessToken{}
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

func (s *Store) SetTokenActive(ctx context.Context, token string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE access_tokens SET is_active = ? WHERE token = ?`, active, token)
	if err != nil {
		return fmt.Errorf("updating token: %w", err)
	}
	return requireAffected(res)
}

func scanToken(row scanner) (*model.AccessToken, error) {
	var (
		tok       model.AccessToken
		lastUsed  sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&tok.Token, &tok.Name, &tok.IsActive, &tok.UsageCount, &lastUsed, &createdAt); err != nil {
		return nil, err
	}
	tok.LastUsedAt = timeFromNull(lastUsed)
	tok.CreatedAt = time.Unix(0, createdAt).UTC()
	return &tok, nil
}
