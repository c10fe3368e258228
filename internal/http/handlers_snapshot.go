package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
	"storeledger/internal/services"
	"storeledger/internal/storage"
)

type balanceInput struct {
	AccountID int64            `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal  `json:"amount"`
	Points    int64            `json:"points"`
	Sales     *decimal.Decimal `json:"sales"`
	Orders    *int64           `json:"orders"`
	Spend     *decimal.Decimal `json:"spend"`
	CPA       *decimal.Decimal `json:"cpa"`
	Profit    *decimal.Decimal `json:"profit"`
	Notes     string           `json:"notes"`
}

type snapshotSubmission struct {
	DraftID      *int64           `json:"draft_id"`
	StoreID      int64            `json:"store_id" validate:"required,gt=0"`
	SnapshotDate string           `json:"snapshot_date" validate:"required"`
	Balances     []balanceInput   `json:"balances" validate:"dive"`
	YTDSales     *decimal.Decimal `json:"ytd_sales"`
	YTDProfit    *decimal.Decimal `json:"ytd_profit"`
	CreatedBy    string           `json:"created_by"`
	Notes        string           `json:"notes"`
}

func (req snapshotSubmission) toInput() (services.SnapshotInput, error) {
	date, err := core.ParseDate(req.SnapshotDate)
	if err != nil {
		return services.SnapshotInput{}, err
	}
	in := services.SnapshotInput{
		DraftID:   req.DraftID,
		StoreID:   req.StoreID,
		Date:      date,
		CreatedBy: req.CreatedBy,
		Notes:     req.Notes,
	}
	if req.YTDSales != nil {
		in.YTDSales = *req.YTDSales
	}
	if req.YTDProfit != nil {
		in.YTDProfit = *req.YTDProfit
	}
	for _, b := range req.Balances {
		in.Balances = append(in.Balances, core.BalanceInput{
			AccountID: b.AccountID,
			Amount:    b.Amount,
			Points:    b.Points,
			Sales:     b.Sales,
			Orders:    b.Orders,
			Spend:     b.Spend,
			CPA:       b.CPA,
			Profit:    b.Profit,
			Notes:     b.Notes,
		})
	}
	return in, nil
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := storage.SnapshotFilter{
		StoreID: queryInt(r, "store_id", 0),
		Status:  core.SnapshotStatus(r.URL.Query().Get("status")),
		From:    from,
		To:      to,
		Limit:   int(queryInt(r, "limit", 0)),
	}
	snaps, err := s.snapshots.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"snapshots": toSnapshotPayloads(snaps)})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshots.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balances, err := s.snapshots.GetBalances(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]balancePayload, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalancePayload(b))
	}
	writeData(w, http.StatusOK, map[string]any{
		"snapshot": toSnapshotPayload(snap),
		"balances": out,
	})
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req snapshotSubmission
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshots.SaveDraft(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateDashboards()
	writeData(w, http.StatusOK, map[string]any{
		"draft_id":      snap.ID,
		"balance_count": len(in.Balances),
		"snapshot":      toSnapshotPayload(snap),
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req snapshotSubmission
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(in.Balances) == 0 {
		writeError(w, r, core.NewValidationError("balances", "at least one balance is required"))
		return
	}
	snap, err := s.snapshots.Publish(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateDashboards()
	writeData(w, http.StatusCreated, map[string]any{
		"snapshot_id": snap.ID,
		"summary":     toSnapshotPayload(snap),
	})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.snapshots.ListDrafts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]draftPayload, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, toDraftPayload(d))
	}
	writeData(w, http.StatusOK, map[string]any{"drafts": out})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshots.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if snap.Status != core.StatusDraft {
		writeError(w, r, core.NewNotFoundError("draft", id))
		return
	}
	balances, err := s.snapshots.GetBalances(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]balancePayload, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalancePayload(b))
	}
	writeData(w, http.StatusOK, map[string]any{
		"draft":    toSnapshotPayload(snap),
		"balances": out,
	})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.snapshots.DeleteDraft(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateDashboards()
	writeData(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "store_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshots.LatestCompleted(r.Context(), storeID)
	if err != nil {
		if core.IsNotFound(err) {
			writeData(w, http.StatusOK, map[string]any{"snapshot": nil})
			return
		}
		writeError(w, r, err)
		return
	}
	balances, err := s.snapshots.GetBalances(r.Context(), snap.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]balancePayload, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalancePayload(b))
	}
	writeData(w, http.StatusOK, map[string]any{
		"snapshot": toSnapshotPayload(snap),
		"balances": out,
	})
}
