package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
	"storeledger/internal/services"
)

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	stats, err := s.imports.Seed(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"message": "Seed data created successfully",
		"stats":   stats,
	})
}

type bulkImportRow struct {
	StoreName   string          `json:"store_name" validate:"required"`
	AccountName string          `json:"account_name" validate:"required"`
	TypeName    string          `json:"type_name"`
	BankName    string          `json:"bank_name"`
	Balance     decimal.Decimal `json:"balance"`
	Notes       string          `json:"notes"`
}

type bulkImportRequest struct {
	Filename     string          `json:"filename"`
	SnapshotDate string          `json:"snapshot_date" validate:"required"`
	Rows         []bulkImportRow `json:"rows" validate:"required,min=1,dive"`
}

func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var req bulkImportRequest
	if err := decodeJSON(r, &req, maxImportBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := core.ParseDate(req.SnapshotDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := req.Filename
	if filename == "" {
		filename = "upload-" + time.Now().UTC().Format("20060102-150405")
	}
	rows := make([]services.BulkRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, services.BulkRow{
			StoreName:   row.StoreName,
			AccountName: row.AccountName,
			TypeName:    row.TypeName,
			BankName:    row.BankName,
			Balance:     row.Balance,
			Notes:       row.Notes,
		})
	}

	result, err := s.imports.BulkImport(r.Context(), filename, date, rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateDashboards()
	writeData(w, http.StatusOK, map[string]any{"result": result})
}

type importPayload struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	ImportDate string `json:"import_date"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
}

func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	imports, err := s.imports.ListImports(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]importPayload, 0, len(imports))
	for _, imp := range imports {
		out = append(out, importPayload{
			ID:         imp.ID,
			Filename:   imp.Filename,
			ImportDate: imp.ImportDate.UTC().Format(timeLayout),
			Status:     imp.Status,
			Notes:      imp.Notes,
		})
	}
	writeData(w, http.StatusOK, map[string]any{"imports": out})
}
