package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/aram-crawler/internal/storage"
)

// DocumentStore keeps match documents in memory, keyed by collection.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]json.RawMessage
}

// NewDocumentStore constructs an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]map[string]json.RawMessage)}
}

// Save implements storage.DocumentStore.
func (s *DocumentStore) Save(_ context.Context, collection, key string, doc json.RawMessage) error {
	if collection == "" || key == "" {
		return fmt.Errorf("collection and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.docs[collection]
	if !ok {
		byKey = make(map[string]json.RawMessage)
		s.docs[collection] = byKey
	}
	byKey[key] = append(json.RawMessage(nil), doc...)
	return nil
}

// Load implements storage.MatchReader.
func (s *DocumentStore) Load(_ context.Context, collection, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append(json.RawMessage(nil), doc...), nil
}

// Each implements storage.MatchReader.
func (s *DocumentStore) Each(ctx context.Context, collection string, fn func(storage.MatchDocument) error) error {
	s.mu.RLock()
	byKey := s.docs[collection]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	snapshot := make(map[string]json.RawMessage, len(byKey))
	for _, k := range keys {
		snapshot[k] = byKey[k]
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("iterate %s: %w", collection, err)
		}
		if err := fn(storage.MatchDocument{MatchID: k, Body: snapshot[k]}); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *DocumentStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}
