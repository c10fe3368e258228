package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"storeledger/internal/core"
	"storeledger/internal/export"
	"storeledger/internal/storage"
)

type wizardSessionPayload struct {
	Token        string                     `json:"session_token"`
	StoreID      int64                      `json:"store_id"`
	SnapshotDate *core.Date                 `json:"snapshot_date,omitempty"`
	CurrentStep  int                        `json:"current_step"`
	TotalSteps   int                        `json:"total_steps"`
	Completed    bool                       `json:"completed"`
	Steps        map[string]json.RawMessage `json:"steps,omitempty"`
}

func toWizardSessionPayload(ws core.WizardSession) wizardSessionPayload {
	p := wizardSessionPayload{
		Token:        ws.Token,
		StoreID:      ws.StoreID,
		SnapshotDate: ws.SnapshotDate,
		CurrentStep:  ws.CurrentStep,
		TotalSteps:   core.WizardStepCount,
		Completed:    ws.Completed(),
	}
	if len(ws.Steps) > 0 {
		p.Steps = make(map[string]json.RawMessage, len(ws.Steps))
		for n, payload := range ws.Steps {
			p.Steps[strconv.Itoa(n)] = payload
		}
	}
	return p
}

type startWizardRequest struct {
	StoreID      int64  `json:"store_id" validate:"required,gt=0"`
	SnapshotDate string `json:"snapshot_date"`
}

func (s *Server) handleStartWizardSession(w http.ResponseWriter, r *http.Request) {
	var req startWizardRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	var date *core.Date
	if req.SnapshotDate != "" {
		d, err := core.ParseDate(req.SnapshotDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		date = &d
	}
	session, err := s.wizard.Start(r.Context(), req.StoreID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"session": toWizardSessionPayload(session)})
}

func (s *Server) handleGetWizardSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	session, err := s.wizard.Get(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"session": toWizardSessionPayload(session)})
}

type saveStepRequest struct {
	Payload      json.RawMessage `json:"payload"`
	SnapshotDate string          `json:"snapshot_date"`
}

func (s *Server) handleSaveWizardStep(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	step, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		writeError(w, r, core.NewValidationError("step", "must be an integer"))
		return
	}
	var req saveStepRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	var date *core.Date
	if req.SnapshotDate != "" {
		d, err := core.ParseDate(req.SnapshotDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		date = &d
	}
	session, err := s.wizard.SaveStep(r.Context(), token, step, req.Payload, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"session": toWizardSessionPayload(session)})
}

func (s *Server) handleCompleteWizardSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
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
	snap, err := s.wizard.Complete(r.Context(), token, in)
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

// wizardBucket assigns an account to the capture step that collects it.
func wizardBucket(a core.Account) string {
	if a.Type == nil {
		return ""
	}
	return export.BucketForType(a.Type.Name, a.Type.Category)
}

func (s *Server) handleWizardAccounts(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "store_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	store, err := s.catalog.GetStore(r.Context(), storeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.catalog.ListAccounts(r.Context(), storage.AccountFilter{StoreID: storeID, ActiveOnly: true})
	if err != nil {
		writeError(w, r, err)
		return
	}

	buckets := map[string][]accountPayload{
		export.BucketBank:       {},
		export.BucketMerchant:   {},
		export.BucketInventory:  {},
		export.BucketReceivable: {},
		export.BucketLiability:  {},
	}
	for _, a := range accounts {
		if bucket := wizardBucket(a); bucket != "" {
			buckets[bucket] = append(buckets[bucket], toAccountPayload(a))
		}
	}

	writeData(w, http.StatusOK, map[string]any{
		"store":    toStorePayload(store),
		"accounts": buckets,
	})
}
