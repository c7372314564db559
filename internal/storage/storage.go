// Package storage defines the document persistence contracts for match data
// and the blob archive that mirrors saved documents.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

// ErrNotFound signals that no document exists for the collection and key.
var ErrNotFound = errors.New("document not found")

// Collections written by the match cycle.
const (
	CollectionMatch       = "match"
	CollectionMatchDetail = "match_detail"
)

// MatchDocument pairs a stored key with its raw JSON body.
type MatchDocument struct {
	MatchID string
	Body    json.RawMessage
}

// DocumentStore persists JSON documents keyed by collection and id.
// Saving the same key twice overwrites the earlier document.
type DocumentStore interface {
	Save(ctx context.Context, collection, key string, doc json.RawMessage) error
}

// MatchReader reads documents back for dataset building and the API.
type MatchReader interface {
	Load(ctx context.Context, collection, key string) (json.RawMessage, error)
	// Each visits every document in the collection in key order until fn
	// returns an error.
	Each(ctx context.Context, collection string, fn func(MatchDocument) error) error
}

// BlobWriter uploads an object and returns its URI.
type BlobWriter interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
