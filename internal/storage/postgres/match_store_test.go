package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/storage"
)

func TestMatchStoreSaveUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewMatchStore(mock)
	require.NoError(t, err)

	doc := json.RawMessage(`{"metadata":{"matchId":"KR_1"}}`)
	mock.ExpectExec("INSERT INTO match_detail").
		WithArgs("KR_1", []byte(doc)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), storage.CollectionMatchDetail, "KR_1", doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchStoreSaveWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewMatchStore(mock)
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO match").WithArgs("KR_1", []byte(`{}`)).WillReturnError(boom)

	err = s.Save(context.Background(), storage.CollectionMatch, "KR_1", json.RawMessage(`{}`))
	require.ErrorIs(t, err, boom)
	require.Error(t, s.Save(context.Background(), "unknown", "KR_1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchStoreLoad(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewMatchStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM match WHERE").
		WithArgs("KR_1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow([]byte(`{"a":1}`)))
	mock.ExpectQuery("SELECT doc FROM match WHERE").
		WithArgs("KR_9").
		WillReturnError(pgx.ErrNoRows)

	doc, err := s.Load(context.Background(), storage.CollectionMatch, "KR_1")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(doc))

	_, err = s.Load(context.Background(), storage.CollectionMatch, "KR_9")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchStoreEach(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewMatchStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, doc FROM match ORDER BY id").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doc"}).
			AddRow("KR_1", []byte(`{}`)).
			AddRow("KR_2", []byte(`{}`)))

	var ids []string
	require.NoError(t, s.Each(context.Background(), storage.CollectionMatch, func(doc storage.MatchDocument) error {
		ids = append(ids, doc.MatchID)
		return nil
	}))
	require.Equal(t, []string{"KR_1", "KR_2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMatchStoreRejectsBadTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewMatchStoreWithTables(mock, map[string]string{"match": "match; DROP TABLE x"})
	require.Error(t, err)
	_, err = NewMatchStore(nil)
	require.Error(t, err)
}
