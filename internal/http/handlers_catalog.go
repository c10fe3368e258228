package http

import (
	"net/http"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

type storePayload struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Active bool   `json:"is_active"`
}

func toStorePayload(s core.Store) storePayload {
	return storePayload{ID: s.ID, Name: s.Name, Code: s.Code, Active: s.Active}
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	activeOnly := !queryBool(r, "include_inactive")
	stores, err := s.catalog.ListStores(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]storePayload, 0, len(stores))
	for _, st := range stores {
		out = append(out, toStorePayload(st))
	}
	writeData(w, http.StatusOK, map[string]any{"stores": out})
}

type createStoreRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required,max=20"`
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	store, err := s.catalog.CreateStore(r.Context(), req.Name, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"store": toStorePayload(store)})
}

type accountTypePayload struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Category  core.Category `json:"category"`
	SortOrder int           `json:"sort_order"`
}

func toAccountTypePayload(t core.AccountType) accountTypePayload {
	return accountTypePayload{ID: t.ID, Name: t.Name, Category: t.Category, SortOrder: t.SortOrder}
}

func (s *Server) handleListAccountTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.ListAccountTypes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountTypePayload, 0, len(types))
	for _, t := range types {
		out = append(out, toAccountTypePayload(t))
	}
	writeData(w, http.StatusOK, map[string]any{"account_types": out})
}

type createAccountTypeRequest struct {
	Name      string `json:"name" validate:"required"`
	Category  string `json:"category" validate:"required,oneof=Asset Liability"`
	SortOrder int    `json:"sort_order" validate:"min=0"`
}

func (s *Server) handleCreateAccountType(w http.ResponseWriter, r *http.Request) {
	var req createAccountTypeRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.catalog.CreateAccountType(r.Context(), req.Name, core.Category(req.Category), req.SortOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"account_type": toAccountTypePayload(t)})
}

func (s *Server) handleDeleteAccountType(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.catalog.DeleteAccountType(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": id})
}

type bankPayload struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"is_active"`
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	activeOnly := !queryBool(r, "include_inactive")
	banks, err := s.catalog.ListBanks(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bankPayload, 0, len(banks))
	for _, b := range banks {
		out = append(out, bankPayload{ID: b.ID, Name: b.Name, Active: b.Active})
	}
	writeData(w, http.StatusOK, map[string]any{"banks": out})
}

type createBankRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	var req createBankRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	bank, err := s.catalog.CreateBank(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"bank": bankPayload{ID: bank.ID, Name: bank.Name, Active: bank.Active}})
}

type accountPayload struct {
	ID       int64  `json:"id"`
	StoreID  int64  `json:"store_id"`
	Name     string `json:"account_name"`
	Number   string `json:"account_number,omitempty"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Bank     string `json:"bank,omitempty"`
	Active   bool   `json:"is_active"`
}

func toAccountPayload(a core.Account) accountPayload {
	p := accountPayload{
		ID:      a.ID,
		StoreID: a.StoreID,
		Name:    a.Name,
		Number:  a.Number,
		Active:  a.Active,
	}
	if a.Type != nil {
		p.Type = a.Type.Name
		p.Category = string(a.Type.Category)
	}
	if a.Bank != nil {
		p.Bank = a.Bank.Name
	}
	return p
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	filter := storage.AccountFilter{
		StoreID:    queryInt(r, "store_id", 0),
		TypeID:     queryInt(r, "account_type_id", 0),
		ActiveOnly: !queryBool(r, "include_inactive"),
	}
	accounts, err := s.catalog.ListAccounts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountPayload(a))
	}
	writeData(w, http.StatusOK, map[string]any{"accounts": out})
}

type createAccountRequest struct {
	StoreID  int64  `json:"store_id" validate:"required,gt=0"`
	TypeID   int64  `json:"account_type_id" validate:"required,gt=0"`
	Name     string `json:"account_name" validate:"required,max=200"`
	Number   string `json:"account_number"`
	BankName string `json:"bank_name"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req, maxBodySize); err != nil {
		writeError(w, r, err)
		return
	}
	account := core.Account{
		StoreID: req.StoreID,
		TypeID:  req.TypeID,
		Name:    req.Name,
		Number:  req.Number,
	}
	if req.BankName != "" {
		bank, err := s.catalog.EnsureBank(r.Context(), req.BankName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		account.BankID = &bank.ID
	}
	created, err := s.catalog.CreateAccount(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"account": toAccountPayload(created)})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	deactivated, err := s.catalog.DeleteAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": id, "deactivated": deactivated})
}
