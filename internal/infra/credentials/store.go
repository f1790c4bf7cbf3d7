package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

// ProviderVideo names the image-to-video provider row in integration_tokens.
const ProviderVideo = "video"

// Store reads and writes provider API keys kept in the database, used when
// the key is not supplied through the environment.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) VideoAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderVideo)
}

// Token returns the stored token for provider, or "" when none exists.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetVideoAPIKey(ctx context.Context, key, baseURL string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("video provider api key is required")
	}
	var props map[string]any
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		props = map[string]any{"base_url": baseURL}
	}
	return s.upsert(ctx, ProviderVideo, key, props)
}

func (s *Store) DeleteVideoAPIKey(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, ProviderVideo)
	return err
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
