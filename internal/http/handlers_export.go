package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"storeledger/internal/export"
)

func (s *Server) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sheet, err := s.loadBalanceSheet(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"balance_sheet": sheet})
}

func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sheet, err := s.loadBalanceSheet(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("balance-sheet-%d-%s.csv", id, sheet.SnapshotDate)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteBalanceSheetCSV(w, sheet); err != nil {
		// Headers are gone at this point, only log the failure.
		slog.ErrorContext(r.Context(), "Balance sheet export failed", "snapshot_id", id, "error", err)
	}
}

func (s *Server) loadBalanceSheet(r *http.Request, id int64) (export.BalanceSheet, error) {
	snap, items, err := s.snapshots.LineItems(r.Context(), id)
	if err != nil {
		return export.BalanceSheet{}, err
	}
	store, err := s.catalog.GetStore(r.Context(), snap.StoreID)
	if err != nil {
		return export.BalanceSheet{}, err
	}
	return export.BuildBalanceSheet(store.Name, snap, items), nil
}
