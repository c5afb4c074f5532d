package postgres

import (
	"fmt"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// listQuery appends the time window, ordering and pagination of opts to a
// base query that already ends in a WHERE clause.
func listQuery(base, timeCol string, opts domain.ListOpts) (string, []any) {
	query := base
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		query += " AND " + timeCol + " >= " + next(*opts.Since)
	}
	if opts.Until != nil {
		query += " AND " + timeCol + " <= " + next(*opts.Until)
	}
	query += " ORDER BY " + timeCol + " DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
