package http

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

type storeBreakdown struct {
	StoreID          int64     `json:"store_id"`
	StoreName        string    `json:"store_name"`
	StoreCode        string    `json:"store_code"`
	SnapshotDate     core.Date `json:"snapshot_date"`
	TotalAssets      string    `json:"total_assets"`
	TotalLiabilities string    `json:"total_liabilities"`
	NetPosition      string    `json:"net_position"`
	YTDSales         string    `json:"ytd_sales"`
	YTDProfit        string    `json:"ytd_profit"`
}

type dashboardSummary struct {
	TotalAssets      string           `json:"total_assets"`
	TotalLiabilities string           `json:"total_liabilities"`
	NetPosition      string           `json:"net_position"`
	YTDSales         string           `json:"ytd_sales"`
	YTDProfit        string           `json:"ytd_profit"`
	ProfitMargin     string           `json:"profit_margin"`
	StoreCount       int              `json:"store_count"`
	LastUpdated      *string          `json:"last_updated"`
	Stores           []storeBreakdown `json:"stores"`
}

// buildDashboardSummary consolidates the latest published snapshot of each
// store (or one store when filtered) into a single view.
func (s *Server) buildDashboardSummary(r *http.Request, storeID int64) (dashboardSummary, error) {
	ctx := r.Context()

	var snaps []core.Snapshot
	if storeID > 0 {
		snap, err := s.snapshots.LatestCompleted(ctx, storeID)
		switch {
		case core.IsNotFound(err):
			// No published snapshot yet, the summary is empty.
		case err != nil:
			return dashboardSummary{}, err
		default:
			snaps = append(snaps, snap)
		}
	} else {
		latest, err := s.snapshots.LatestPerStore(ctx)
		if err != nil {
			return dashboardSummary{}, err
		}
		snaps = latest
	}

	stores, err := s.catalog.ListStores(ctx, false)
	if err != nil {
		return dashboardSummary{}, err
	}
	storesByID := make(map[int64]core.Store, len(stores))
	for _, st := range stores {
		storesByID[st.ID] = st
	}

	var (
		assets, liabilities decimal.Decimal
		net, sales, profit  decimal.Decimal
		lastUpdated         time.Time
	)
	breakdown := make([]storeBreakdown, 0, len(snaps))
	for _, snap := range snaps {
		assets = assets.Add(snap.TotalAssets)
		liabilities = liabilities.Add(snap.TotalLiabilities)
		net = net.Add(snap.NetPosition)
		sales = sales.Add(snap.YTDSales)
		profit = profit.Add(snap.YTDProfit)
		if snap.CreatedAt.After(lastUpdated) {
			lastUpdated = snap.CreatedAt
		}
		st := storesByID[snap.StoreID]
		breakdown = append(breakdown, storeBreakdown{
			StoreID:          snap.StoreID,
			StoreName:        st.Name,
			StoreCode:        st.Code,
			SnapshotDate:     snap.Date,
			TotalAssets:      snap.TotalAssets.StringFixed(2),
			TotalLiabilities: snap.TotalLiabilities.StringFixed(2),
			NetPosition:      snap.NetPosition.StringFixed(2),
			YTDSales:         snap.YTDSales.StringFixed(2),
			YTDProfit:        snap.YTDProfit.StringFixed(2),
		})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].StoreName < breakdown[j].StoreName })

	margin := decimal.Zero
	if sales.IsPositive() {
		margin = profit.Div(sales).Mul(decimal.NewFromInt(100)).Round(2)
	}

	summary := dashboardSummary{
		TotalAssets:      assets.StringFixed(2),
		TotalLiabilities: liabilities.StringFixed(2),
		NetPosition:      net.StringFixed(2),
		YTDSales:         sales.StringFixed(2),
		YTDProfit:        profit.StringFixed(2),
		ProfitMargin:     margin.StringFixed(2),
		StoreCount:       len(snaps),
		Stores:           breakdown,
	}
	if !lastUpdated.IsZero() {
		formatted := lastUpdated.UTC().Format(timeLayout)
		summary.LastUpdated = &formatted
	}
	return summary, nil
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id", 0)
	key := fmt.Sprintf("summary:%d", storeID)

	if cached, ok := s.summaryCache.Get(key); ok {
		writeData(w, http.StatusOK, map[string]any{"summary": cached})
		return
	}

	// Concurrent identical requests share one database pass.
	v, err, _ := s.sf.Do(key, func() (any, error) {
		summary, err := s.buildDashboardSummary(r, storeID)
		if err != nil {
			return nil, err
		}
		s.summaryCache.Set(key, summary)
		return summary, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"summary": v.(dashboardSummary)})
}

type timelinePoint struct {
	Date             core.Date `json:"date"`
	StoreName        string    `json:"store_name"`
	TotalAssets      string    `json:"total_assets"`
	TotalLiabilities string    `json:"total_liabilities"`
	NetPosition      string    `json:"net_position"`
	YTDSales         string    `json:"ytd_sales"`
	YTDProfit        string    `json:"ytd_profit"`
}

func (s *Server) handleDashboardTimeline(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id", 0)
	limit := int(queryInt(r, "days", 30))
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	key := fmt.Sprintf("timeline:%d:%d", storeID, limit)

	if cached, ok := s.timelineCache.Get(key); ok {
		writeData(w, http.StatusOK, map[string]any{"timeline": cached})
		return
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		snaps, err := s.snapshots.List(r.Context(), storage.SnapshotFilter{
			StoreID: storeID,
			Status:  core.StatusCompleted,
			Limit:   limit,
		})
		if err != nil {
			return nil, err
		}

		stores, err := s.catalog.ListStores(r.Context(), false)
		if err != nil {
			return nil, err
		}
		names := make(map[int64]string, len(stores))
		for _, st := range stores {
			names[st.ID] = st.Name
		}

		// Snapshots arrive newest first; the chart wants chronological order.
		points := make([]timelinePoint, 0, len(snaps))
		for i := len(snaps) - 1; i >= 0; i-- {
			snap := snaps[i]
			points = append(points, timelinePoint{
				Date:             snap.Date,
				StoreName:        names[snap.StoreID],
				TotalAssets:      snap.TotalAssets.StringFixed(2),
				TotalLiabilities: snap.TotalLiabilities.StringFixed(2),
				NetPosition:      snap.NetPosition.StringFixed(2),
				YTDSales:         snap.YTDSales.StringFixed(2),
				YTDProfit:        snap.YTDProfit.StringFixed(2),
			})
		}
		s.timelineCache.Set(key, points)
		return points, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"timeline": v.([]timelinePoint)})
}
