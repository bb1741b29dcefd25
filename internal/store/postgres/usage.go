package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/x402hub/paygate/internal/domain"
)

// InsertUsageLog appends one usage record. Records are never updated or deleted.
func (s *Store) InsertUsageLog(ctx context.Context, l *domain.UsageLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_logs (id, tenant_id, route_id, path, method, status_code,
			payment_verified, client_ip, user_agent, response_time_ms, ts)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		l.ID, l.TenantID, l.RouteID, l.Path, l.Method, l.StatusCode,
		l.PaymentVerified, l.ClientIP, l.UserAgent, l.ResponseTimeMS, l.Timestamp)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

// TenantStats is the all-time aggregate for one tenant.
type TenantStats struct {
	TotalRequests      int64   `json:"total_requests"`
	PaidRequests       int64   `json:"paid_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	PaymentRequired    int64   `json:"payment_required"`
	AvgResponseTimeMS  float64 `json:"avg_response_time"`
	MaxResponseTimeMS  int64   `json:"max_response_time"`
}

// GetTenantStats aggregates all usage logs for a tenant.
func (s *Store) GetTenantStats(ctx context.Context, tenantID string) (*TenantStats, error) {
	var st TenantStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE payment_verified),
			COUNT(*) FILTER (WHERE status_code = 200),
			COUNT(*) FILTER (WHERE status_code = 402),
			COALESCE(ROUND(AVG(response_time_ms), 2), 0),
			COALESCE(MAX(response_time_ms), 0)
		 FROM usage_logs WHERE tenant_id = $1`, tenantID,
	).Scan(&st.TotalRequests, &st.PaidRequests, &st.SuccessfulRequests,
		&st.PaymentRequired, &st.AvgResponseTimeMS, &st.MaxResponseTimeMS)
	if err != nil {
		return nil, fmt.Errorf("tenant stats for %s: %w", tenantID, err)
	}
	return &st, nil
}

// DailyStat is one day's request counts for a tenant.
type DailyStat struct {
	Date          string `json:"date"`
	Requests      int64  `json:"requests"`
	PaidRequests  int64  `json:"paid_requests"`
	UniqueClients int64  `json:"unique_clients"`
}

// GetDailyStats returns per-day counts for the last `days` days, newest first.
func (s *Store) GetDailyStats(ctx context.Context, tenantID string, days int) ([]DailyStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(DATE(ts), 'YYYY-MM-DD'),
			COUNT(*),
			COUNT(*) FILTER (WHERE payment_verified),
			COUNT(DISTINCT client_ip)
		 FROM usage_logs
		 WHERE tenant_id = $1 AND ts > now() - ($2 || ' days')::interval
		 GROUP BY DATE(ts) ORDER BY DATE(ts) DESC`, tenantID, days)
	if err != nil {
		return nil, fmt.Errorf("daily stats for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Date, &d.Requests, &d.PaidRequests, &d.UniqueClients); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

// PathStat is the aggregate for one request path.
type PathStat struct {
	Path          string `json:"path"`
	Requests      int64  `json:"requests"`
	PaidRequests  int64  `json:"paid_requests"`
	UniqueClients int64  `json:"unique_clients"`
}

// GetTopPaths returns the most-requested paths for a tenant.
func (s *Store) GetTopPaths(ctx context.Context, tenantID string, limit int) ([]PathStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, COUNT(*),
			COUNT(*) FILTER (WHERE payment_verified),
			COUNT(DISTINCT client_ip)
		 FROM usage_logs WHERE tenant_id = $1
		 GROUP BY path ORDER BY COUNT(*) DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("top paths for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var stats []PathStat
	for rows.Next() {
		var p PathStat
		if err := rows.Scan(&p.Path, &p.Requests, &p.PaidRequests, &p.UniqueClients); err != nil {
			return nil, fmt.Errorf("scan path stat: %w", err)
		}
		stats = append(stats, p)
	}
	return stats, rows.Err()
}

// StatusCodeCount is how often one status code was returned.
type StatusCodeCount struct {
	StatusCode int   `json:"status_code"`
	Count      int64 `json:"count"`
}

// GetStatusCodeCounts returns the status-code distribution for a tenant.
func (s *Store) GetStatusCodeCounts(ctx context.Context, tenantID string) ([]StatusCodeCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status_code, COUNT(*)
		 FROM usage_logs WHERE tenant_id = $1
		 GROUP BY status_code ORDER BY COUNT(*) DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("status codes for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var counts []StatusCodeCount
	for rows.Next() {
		var c StatusCodeCount
		if err := rows.Scan(&c.StatusCode, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status code count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RouteRevenue is the paid-request revenue attributed to one route pattern.
type RouteRevenue struct {
	Pattern      string `json:"pattern"`
	PriceUSD     string `json:"price_usd"`
	PaidRequests int64  `json:"paid_requests"`
}

// GetRouteRevenue counts freshly-paid requests per enabled route. Revenue in
// currency units is PaidRequests * PriceUSD, computed by the caller since
// prices are decimal strings.
func (s *Store) GetRouteRevenue(ctx context.Context, tenantID string) ([]RouteRevenue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.pattern, r.price_usd, COUNT(u.id)
		 FROM protected_routes r
		 LEFT JOIN usage_logs u ON u.route_id = r.id AND u.payment_verified
		 WHERE r.tenant_id = $1 AND r.enabled
		 GROUP BY r.id, r.pattern, r.price_usd
		 ORDER BY COUNT(u.id) DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("route revenue for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var revs []RouteRevenue
	for rows.Next() {
		var rr RouteRevenue
		if err := rows.Scan(&rr.Pattern, &rr.PriceUSD, &rr.PaidRequests); err != nil {
			return nil, fmt.Errorf("scan route revenue: %w", err)
		}
		revs = append(revs, rr)
	}
	return revs, rows.Err()
}

// PruneUsageLogs deletes records older than the retention window. Retention is
// an operational concern, not a mutation of live records.
func (s *Store) PruneUsageLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM usage_logs WHERE ts < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune usage logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
