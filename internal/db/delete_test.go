package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var esgKeyCols = [2]string{"entity_id", "observed_at"}

func TestDeleteByPairsSQL(t *testing.T) {
	assert.Equal(t,
		`DELETE FROM "esg_records" AS t USING unnest($1::text[], $2::text[]) AS k("entity_id", "observed_at") WHERE t."entity_id" = k."entity_id" AND t."observed_at" = k."observed_at"`,
		DeleteByPairsSQL("esg_records", esgKeyCols))
}

func TestDeleteByPairs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	firsts := []string{"aapl", "msft"}
	seconds := []string{"2019-01-01", "2019-06-30"}
	mock.ExpectExec(regexp.QuoteMeta(DeleteByPairsSQL("esg_records", esgKeyCols))).
		WithArgs(firsts, seconds).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := DeleteByPairs(context.Background(), mock, "esg_records", esgKeyCols, firsts, seconds)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByPairs_Empty(t *testing.T) {
	n, err := DeleteByPairs(context.Background(), nil, "esg_records", esgKeyCols, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteByPairs_Mismatch(t *testing.T) {
	_, err := DeleteByPairs(context.Background(), nil, "esg_records", esgKeyCols, []string{"a"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestDeleteByPairs_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM`).WillReturnError(errors.New("conn closed"))

	_, err = DeleteByPairs(context.Background(), mock, "esg_records", esgKeyCols, []string{"a"}, []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete from esg_records")
	assert.NoError(t, mock.ExpectationsWereMet())
}
