package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core"
)

type wizardSessionBody struct {
	Token        string                     `json:"session_token"`
	StoreID      int64                      `json:"store_id"`
	SnapshotDate string                     `json:"snapshot_date"`
	CurrentStep  int                        `json:"current_step"`
	TotalSteps   int                        `json:"total_steps"`
	Completed    bool                       `json:"completed"`
	Steps        map[string]json.RawMessage `json:"steps"`
}

func TestWizardSessionEndpoints(t *testing.T) {
	h := newHarness(t)
	f := h.seedCatalog(t)

	rr := h.do(t, http.MethodPost, "/api/wizard/sessions", map[string]any{
		"store_id":      f.store.ID,
		"snapshot_date": "2024-06-30",
	})
	require.Equal(t, http.StatusCreated, rr.Code, "body: %s", rr.Body.String())

	var started struct {
		Session wizardSessionBody `json:"session"`
	}
	dataField(t, rr, &started)
	require.NotEmpty(t, started.Session.Token)
	assert.Equal(t, 1, started.Session.CurrentStep)
	assert.Equal(t, core.WizardStepCount, started.Session.TotalSteps)
	assert.Equal(t, "2024-06-30", started.Session.SnapshotDate)

	token := started.Session.Token

	rr = h.do(t, http.MethodPut, "/api/wizard/sessions/"+token+"/steps/2", map[string]any{
		"payload": map[string]any{"bank_accounts": []int64{f.checking.ID}},
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	var stepped struct {
		Session wizardSessionBody `json:"session"`
	}
	dataField(t, rr, &stepped)
	assert.Equal(t, 2, stepped.Session.CurrentStep)
	assert.Contains(t, stepped.Session.Steps, "2")

	rr = h.do(t, http.MethodPut, "/api/wizard/sessions/"+token+"/steps/9", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "step outside range")

	rr = h.do(t, http.MethodPut, "/api/wizard/sessions/"+token+"/steps/two", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/wizard/sessions/"+token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	dataField(t, rr, &stepped)
	assert.False(t, stepped.Session.Completed)

	rr = h.do(t, http.MethodGet, "/api/wizard/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/wizard/sessions/"+token+"/complete", f.submission())
	require.Equal(t, http.StatusCreated, rr.Code, "body: %s", rr.Body.String())
	var completed struct {
		SnapshotID int64        `json:"snapshot_id"`
		Summary    snapshotBody `json:"summary"`
	}
	dataField(t, rr, &completed)
	assert.Equal(t, "completed", completed.Summary.Status)

	rr = h.do(t, http.MethodGet, "/api/wizard/sessions/"+token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	dataField(t, rr, &stepped)
	assert.True(t, stepped.Session.Completed)

	rr = h.do(t, http.MethodPost, "/api/wizard/sessions/"+token+"/complete", f.submission())
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestWizardAccountsBuckets(t *testing.T) {
	h := newHarness(t)
	f := h.seedCatalog(t)
	ctx := context.Background()

	// Round out the taxonomy beyond the base fixture.
	inventoryType, err := h.catalog.CreateAccountType(ctx, "Inventory", core.CategoryAsset, 6)
	require.NoError(t, err)
	orderType, err := h.catalog.CreateAccountType(ctx, "Order Receivable", core.CategoryAsset, 7)
	require.NoError(t, err)
	pointsType, err := h.catalog.CreateAccountType(ctx, "Points", core.CategoryAsset, 5)
	require.NoError(t, err)

	for _, a := range []core.Account{
		{StoreID: f.store.ID, TypeID: inventoryType.ID, Name: "Seal Skin - Live Inventory"},
		{StoreID: f.store.ID, TypeID: orderType.ID, Name: "Seal Skin - Order Q3 2025"},
		{StoreID: f.store.ID, TypeID: pointsType.ID, Name: "Seal Skin - Points"},
	} {
		_, err := h.catalog.CreateAccount(ctx, a)
		require.NoError(t, err)
	}

	rr := h.do(t, http.MethodGet, "/api/wizard/accounts/"+jsonInt(f.store.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var out struct {
		Store struct {
			ID int64 `json:"id"`
		} `json:"store"`
		Accounts map[string][]struct {
			Name string `json:"account_name"`
		} `json:"accounts"`
	}
	dataField(t, rr, &out)
	assert.Equal(t, f.store.ID, out.Store.ID)

	require.Len(t, out.Accounts, 5, "all buckets present even when empty")
	assert.Len(t, out.Accounts["bank_accounts"], 1)
	assert.Len(t, out.Accounts["merchant_accounts"], 2, "merchant plus points")
	assert.Len(t, out.Accounts["inventory"], 1)
	assert.Len(t, out.Accounts["receivables"], 1)
	require.Len(t, out.Accounts["liabilities"], 1)
	assert.Equal(t, "Seal Skin - Credit Card", out.Accounts["liabilities"][0].Name)

	rr = h.do(t, http.MethodGet, "/api/wizard/accounts/9999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
