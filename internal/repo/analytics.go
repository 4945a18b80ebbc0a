package repo

import (
	"context"
	"fmt"
)

// GetRedirectAnalytics returns the headline numbers for one redirect.
func (r *repository) GetRedirectAnalytics(ctx context.Context, redirectID int64) (*RedirectAnalytics, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days') AS last_7_days,
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days') AS last_30_days,
			COUNT(*) AS all_time,
			COUNT(DISTINCT ip) AS unique_ips
		FROM clicks
		WHERE redirect_id = $1
	`, redirectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}
	defer rows.Close()

	analytics := RedirectAnalytics{RedirectID: redirectID}
	if rows.Next() {
		err := rows.Scan(
			&analytics.Period.Last7Days,
			&analytics.Period.Last30Days,
			&analytics.Period.AllTime,
			&analytics.UniqueIPs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics summary: %w", err)
		}
	}
	analytics.TotalClicks = analytics.Period.AllTime

	return &analytics, nil
}

// GetClicksByDate returns the per-day click series for timeline charts.
func (r *repository) GetClicksByDate(ctx context.Context, redirectID int64) ([]DateStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(created_at::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM clicks
		WHERE redirect_id = $1
		GROUP BY day
		ORDER BY day
	`, redirectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks by date: %w", err)
	}
	defer rows.Close()

	var stats []DateStat
	for rows.Next() {
		var s DateStat
		if err := rows.Scan(&s.Date, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan date stat: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetFieldBreakdown aggregates clicks over a single derived field. The field
// name is interpolated into the query, so it is whitelisted first.
func (r *repository) GetFieldBreakdown(ctx context.Context, redirectID int64, field string) ([]FieldStat, error) {
	switch field {
	case "browser", "os", "device", "country", "city":
	default:
		return nil, fmt.Errorf("unsupported field for aggregation: %s", field)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(%s, 'Unknown'), COUNT(*) FROM clicks WHERE redirect_id = $1 GROUP BY %s ORDER BY COUNT(*) DESC`, field, field),
		redirectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s breakdown: %w", field, err)
	}
	defer rows.Close()

	var stats []FieldStat
	for rows.Next() {
		var s FieldStat
		if err := rows.Scan(&s.Value, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s stat: %w", field, err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
