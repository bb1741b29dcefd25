package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/store/postgres"
)

type statsResponse struct {
	Total       *postgres.TenantStats      `json:"total"`
	Daily       []postgres.DailyStat       `json:"daily"`
	TopPaths    []postgres.PathStat        `json:"topPaths"`
	StatusCodes []postgres.StatusCodeCount `json:"statusCodes"`
}

// GetStats handles GET /api/stats?tenant_id=...
func GetStats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeAPIError(w, http.StatusBadRequest, "Missing tenant_id query parameter")
			return
		}
		ctx := r.Context()

		total, err := d.PG.GetTenantStats(ctx, tenantID)
		if err != nil {
			d.Logger.Error("failed to fetch stats", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}
		daily, err := d.PG.GetDailyStats(ctx, tenantID, 7)
		if err != nil {
			d.Logger.Error("failed to fetch daily stats", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}
		topPaths, err := d.PG.GetTopPaths(ctx, tenantID, 10)
		if err != nil {
			d.Logger.Error("failed to fetch top paths", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}
		statusCodes, err := d.PG.GetStatusCodeCounts(ctx, tenantID)
		if err != nil {
			d.Logger.Error("failed to fetch status codes", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}

		if daily == nil {
			daily = []postgres.DailyStat{}
		}
		if topPaths == nil {
			topPaths = []postgres.PathStat{}
		}
		if statusCodes == nil {
			statusCodes = []postgres.StatusCodeCount{}
		}

		writeData(w, http.StatusOK, statsResponse{
			Total:       total,
			Daily:       daily,
			TopPaths:    topPaths,
			StatusCodes: statusCodes,
		})
	}
}

type routeRevenueView struct {
	Pattern      string  `json:"pattern"`
	PriceUSD     string  `json:"price_usd"`
	PaidRequests int64   `json:"paid_requests"`
	Revenue      float64 `json:"revenue"`
}

type revenueResponse struct {
	Routes       []routeRevenueView `json:"routes"`
	TotalRevenue float64            `json:"total_revenue"`
}

// GetRevenue handles GET /api/stats/revenue?tenant_id=...
// Revenue is paid requests times route price, per enabled route.
func GetRevenue(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeAPIError(w, http.StatusBadRequest, "Missing tenant_id query parameter")
			return
		}

		revs, err := d.PG.GetRouteRevenue(r.Context(), tenantID)
		if err != nil {
			d.Logger.Error("failed to fetch revenue", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch revenue")
			return
		}

		views := make([]routeRevenueView, 0, len(revs))
		var total float64
		for _, rr := range revs {
			price, err := strconv.ParseFloat(strings.TrimPrefix(rr.PriceUSD, "$"), 64)
			if err != nil {
				price = 0
			}
			revenue := round2(float64(rr.PaidRequests) * price)
			total += revenue
			views = append(views, routeRevenueView{
				Pattern:      rr.Pattern,
				PriceUSD:     rr.PriceUSD,
				PaidRequests: rr.PaidRequests,
				Revenue:      revenue,
			})
		}

		writeData(w, http.StatusOK, revenueResponse{
			Routes:       views,
			TotalRevenue: round2(total),
		})
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
