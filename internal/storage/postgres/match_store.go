package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/aram-crawler/internal/storage"
)

// MatchStore persists match documents as jsonb, one table per collection.
// Tables share the shape (id text primary key, doc jsonb, updated_at timestamptz).
type MatchStore struct {
	db     querier
	tables map[string]string
}

// NewMatchStore binds the store to the default collection tables.
func NewMatchStore(db querier) (*MatchStore, error) {
	return NewMatchStoreWithTables(db, map[string]string{
		storage.CollectionMatch:       "match",
		storage.CollectionMatchDetail: "match_detail",
	})
}

// NewMatchStoreWithTables maps collections to custom table names.
func NewMatchStoreWithTables(db querier, tables map[string]string) (*MatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	copied := make(map[string]string, len(tables))
	for collection, table := range tables {
		if err := checkTable(table); err != nil {
			return nil, err
		}
		copied[collection] = table
	}
	return &MatchStore{db: db, tables: copied}, nil
}

func (s *MatchStore) table(collection string) (string, error) {
	table, ok := s.tables[collection]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return table, nil
}

// Save upserts the document under key.
func (s *MatchStore) Save(ctx context.Context, collection, key string, doc json.RawMessage) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("document key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, doc, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE
SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, table)
	if _, err := s.db.Exec(ctx, query, key, []byte(doc)); err != nil {
		return fmt.Errorf("upsert %s %s: %w", collection, key, err)
	}
	return nil
}

// Load returns one document or storage.ErrNotFound.
func (s *MatchStore) Load(ctx context.Context, collection, key string) (json.RawMessage, error) {
	table, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	var body []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, table)
	if err := s.db.QueryRow(ctx, query, key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load %s %s: %w", collection, key, err)
	}
	return json.RawMessage(body), nil
}

// Each streams every document in id order.
func (s *MatchStore) Each(ctx context.Context, collection string, fn func(storage.MatchDocument) error) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id, doc FROM %s ORDER BY id`, table))
	if err != nil {
		return fmt.Errorf("scan %s: %w", collection, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("read %s row: %w", collection, err)
		}
		if err := fn(storage.MatchDocument{MatchID: id, Body: json.RawMessage(body)}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", collection, err)
	}
	return nil
}
