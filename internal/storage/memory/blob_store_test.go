package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	payload := []byte(`{"a":1}`)
	uri, err := s.PutObject(context.Background(), "match/2024/01/01/KR_1.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://match/2024/01/01/KR_1.json", uri)

	payload[0] = 'X'
	stored, ok := s.Object("match/2024/01/01/KR_1.json")
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, string(stored))
	require.Equal(t, []string{"match/2024/01/01/KR_1.json"}, s.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
	_, ok := NewBlobStore().Object("missing")
	require.False(t, ok)
}
