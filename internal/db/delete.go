package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// DeleteByPairs deletes rows whose (keyCols[0], keyCols[1]) matches one of the
// given pairs, in a single statement. firsts and seconds must be the same length.
func DeleteByPairs(ctx context.Context, pool Pool, table string, keyCols [2]string, firsts, seconds []string) (int64, error) {
	if len(firsts) != len(seconds) {
		return 0, eris.Errorf("db: delete: key length mismatch (%d != %d)", len(firsts), len(seconds))
	}
	if len(firsts) == 0 {
		return 0, nil
	}

	tag, err := pool.Exec(ctx, DeleteByPairsSQL(table, keyCols), firsts, seconds)
	if err != nil {
		return 0, eris.Wrapf(err, "db: delete from %s", table)
	}
	return tag.RowsAffected(), nil
}

// DeleteByPairsSQL builds the unnest-join DELETE used by DeleteByPairs.
func DeleteByPairsSQL(table string, keyCols [2]string) string {
	a, b := quoteAndJoin(keyCols[:1]), quoteAndJoin(keyCols[1:])
	return fmt.Sprintf(
		"DELETE FROM %s AS t USING unnest($1::text[], $2::text[]) AS k(%s, %s) WHERE t.%s = k.%s AND t.%s = k.%s",
		SanitizeTable(table), a, b, a, a, b, b,
	)
}
