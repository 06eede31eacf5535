package postgres

import (
	"context"
	"fmt"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// QueryStatusCounts counts program stage instances per status. programStage
// is optional (empty string means "no filter").
func (db *DB) QueryStatusCounts(ctx context.Context, programStage string) ([]StatusCount, error) {
	cond := ""
	args := []any{}
	if programStage != "" {
		cond = "WHERE programstage_uid = $1"
		args = append(args, programStage)
	}

	sql := fmt.Sprintf(`
SELECT status, COUNT(*)::bigint AS cnt
FROM programstageinstance
%s
GROUP BY 1
ORDER BY 1 ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}
