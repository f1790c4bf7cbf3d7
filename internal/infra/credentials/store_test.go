package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vidgen/internal/sqlinline"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestVideoAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.VideoAPIKey(context.Background())
	if err != nil {
		t.Fatalf("VideoAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestVideoAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.VideoAPIKey(context.Background())
	if err != nil {
		t.Fatalf("VideoAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSetVideoAPIKeyStoresBaseURL(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetVideoAPIKey(context.Background(), "secret", "https://provider.example.com"); err != nil {
		t.Fatalf("SetVideoAPIKey error: %v", err)
	}
	if exec.exec.query != sqlinline.QUpsertIntegrationToken {
		t.Fatalf("unexpected query executed")
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	var props map[string]string
	if err := json.Unmarshal(exec.exec.args[2].([]byte), &props); err != nil {
		t.Fatalf("decode properties: %v", err)
	}
	if props["base_url"] != "https://provider.example.com" {
		t.Fatalf("base_url = %q", props["base_url"])
	}
}

func TestSetVideoAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetVideoAPIKey(context.Background(), " ", ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDeleteVideoAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.DeleteVideoAPIKey(context.Background()); err != nil {
		t.Fatalf("DeleteVideoAPIKey error: %v", err)
	}
	if exec.exec.query != sqlinline.QDeleteIntegrationToken {
		t.Fatalf("unexpected query executed")
	}
}
