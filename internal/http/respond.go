package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

type errorBody struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError maps domain errors onto HTTP statuses. Persistence failures are
// logged and surfaced as a generic 500 without the wrapped detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *core.ValidationError
		nf *core.NotFoundError
		ce *core.ConflictError
		pe *core.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: &errorBody{Field: ve.Field, Message: ve.Message}})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: &errorBody{Message: nf.Error()}})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, envelope{Success: false, Error: &errorBody{Message: ce.Message}})
	case errors.As(err, &pe):
		slog.ErrorContext(r.Context(), "Storage failure", "op", pe.Op, "error", pe.Err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: &errorBody{Message: "internal error"}})
	default:
		slog.ErrorContext(r.Context(), "Unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: &errorBody{Message: "internal error"}})
	}
}

type snapshotPayload struct {
	ID               int64               `json:"id"`
	StoreID          int64               `json:"store_id"`
	SnapshotDate     core.Date           `json:"snapshot_date"`
	Status           core.SnapshotStatus `json:"status"`
	TotalAssets      string              `json:"total_assets"`
	TotalLiabilities string              `json:"total_liabilities"`
	NetPosition      string              `json:"net_position"`
	YTDSales         string              `json:"ytd_sales"`
	YTDProfit        string              `json:"ytd_profit"`
	ProfitMargin     string              `json:"profit_margin"`
	CreatedBy        string              `json:"created_by"`
	Notes            string              `json:"notes,omitempty"`
	CreatedAt        string              `json:"created_at"`
	UpdatedAt        string              `json:"updated_at"`
}

func toSnapshotPayload(s core.Snapshot) snapshotPayload {
	return snapshotPayload{
		ID:               s.ID,
		StoreID:          s.StoreID,
		SnapshotDate:     s.Date,
		Status:           s.Status,
		TotalAssets:      s.TotalAssets.StringFixed(2),
		TotalLiabilities: s.TotalLiabilities.StringFixed(2),
		NetPosition:      s.NetPosition.StringFixed(2),
		YTDSales:         s.YTDSales.StringFixed(2),
		YTDProfit:        s.YTDProfit.StringFixed(2),
		ProfitMargin:     s.ProfitMargin.StringFixed(2),
		CreatedBy:        s.CreatedBy,
		Notes:            s.Notes,
		CreatedAt:        s.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:        s.UpdatedAt.UTC().Format(timeLayout),
	}
}

func toSnapshotPayloads(snaps []core.Snapshot) []snapshotPayload {
	out := make([]snapshotPayload, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSnapshotPayload(s))
	}
	return out
}

type draftPayload struct {
	snapshotPayload
	StoreName    string `json:"store_name"`
	BalanceCount int64  `json:"balance_count"`
}

func toDraftPayload(d storage.DraftSummary) draftPayload {
	return draftPayload{
		snapshotPayload: toSnapshotPayload(d.Snapshot),
		StoreName:       d.StoreName,
		BalanceCount:    d.BalanceCount,
	}
}

type balancePayload struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
	Points    int64  `json:"points,omitempty"`
	Sales     string `json:"sales,omitempty"`
	Orders    *int64 `json:"orders,omitempty"`
	Spend     string `json:"spend,omitempty"`
	CPA       string `json:"cpa,omitempty"`
	Profit    string `json:"profit,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func toBalancePayload(b core.AccountBalance) balancePayload {
	p := balancePayload{
		ID:        b.ID,
		AccountID: b.AccountID,
		Balance:   b.Balance.StringFixed(2),
		Points:    b.Points,
		Orders:    b.Orders,
		Notes:     b.Notes,
	}
	if b.Sales != nil {
		p.Sales = b.Sales.StringFixed(2)
	}
	if b.Spend != nil {
		p.Spend = b.Spend.StringFixed(2)
	}
	if b.CPA != nil {
		p.CPA = b.CPA.StringFixed(2)
	}
	if b.Profit != nil {
		p.Profit = b.Profit.StringFixed(2)
	}
	return p
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
