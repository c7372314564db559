package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

const jsonContentType = "application/json"

// Archive decorates a DocumentStore by mirroring every saved document into a
// blob store under <prefix>/<collection>/<yyyy>/<mm>/<dd>/<key>.json.
type Archive struct {
	next   DocumentStore
	blobs  BlobWriter
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// NewArchive wires the decorator. now defaults to time.Now in UTC.
func NewArchive(next DocumentStore, blobs BlobWriter, prefix string, now func() time.Time, logger *zap.Logger) (*Archive, error) {
	if next == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob writer is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		next:   next,
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		now:    now,
		logger: logger,
	}, nil
}

// Save writes to the wrapped store first; the blob copy only happens once
// the primary write succeeded.
func (a *Archive) Save(ctx context.Context, collection, key string, doc json.RawMessage) error {
	if err := a.next.Save(ctx, collection, key, doc); err != nil {
		return err
	}
	objectPath := a.ObjectPath(collection, key)
	uri, err := a.blobs.PutObject(ctx, objectPath, jsonContentType, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("archive %s/%s: %w", collection, key, err)
	}
	a.logger.Debug("document archived", zap.String("collection", collection), zap.String("uri", uri))
	return nil
}

// ObjectPath returns the blob path for a document saved now.
func (a *Archive) ObjectPath(collection, key string) string {
	ts := a.now()
	return path.Join(
		a.prefix,
		collection,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		key+".json",
	)
}
