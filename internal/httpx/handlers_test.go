package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/directory"
	"github.com/ariefcatur/go-bloodbank/internal/donation"
	"github.com/ariefcatur/go-bloodbank/internal/httpx"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/memstore"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
	"github.com/ariefcatur/go-bloodbank/internal/sweep"
)

var now = time.Date(2025, 5, 20, 11, 0, 0, 0, time.UTC)

type api struct {
	t      *testing.T
	router *chi.Mux
	store  *memstore.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFixed(now)
	dir := directory.New(store, nil, nil)
	ledger := inventory.NewLedger(store, clk, nil, inventory.WithOrgNamer(dir))

	r := httpx.NewRouter(nil)
	(&httpx.InventoryHandler{Ledger: ledger}).Register(r)
	(&httpx.RequestsHandler{Service: requests.NewService(store, ledger, nil, clk, nil)}).Register(r)
	(&httpx.DonationHandler{Service: donation.NewService(store, ledger, nil, clk, nil)}).Register(r)
	(&httpx.RegistryHandler{Registry: store, Cache: dir}).Register(r)
	(&httpx.AdminHandler{Sweeper: sweep.New(store, nil, clk, nil)}).Register(r)
	return &api{t: t, router: r, store: store}
}

func (a *api) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func TestHealthz(t *testing.T) {
	rec := newAPI(t).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInventory_AddAndQuery(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPut, "/organizations/org-1", `{"name":"Red Drop"}`)

	rec := a.do(http.MethodPost, "/organizations/org-1/inventory/",
		`{"blood_group":"o pos","quantity":3,"collection_date":"2025-05-18","expiry_date":"2025-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decodeBody[bloodbank.InventoryBatch](t, rec)
	assert.Equal(t, bloodbank.OPos, b.BloodGroup)
	assert.Equal(t, bloodbank.BatchAvailable, b.Status)

	// a raw '+' arrives as a space
	rec = a.do(http.MethodGet, "/organizations/org-1/inventory/available?blood_group=O+", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]bloodbank.InventoryBatch](t, rec), 1)

	rec = a.do(http.MethodGet, "/inventory/search?blood_group=O%2B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeBody[[]bloodbank.AvailableStock](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "Red Drop", found[0].OrganizationName)

	rec = a.do(http.MethodGet, "/inventory/"+b.ID+"/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInventory_BadInput(t *testing.T) {
	a := newAPI(t)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{"blood_group":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"blood_group":"A+","quantity":1,"colour":"red"}`, http.StatusBadRequest, "invalid_json"},
		{"unknown group", `{"blood_group":"C+","quantity":1}`, http.StatusBadRequest, "invalid_input"},
		{"zero quantity", `{"blood_group":"A+","quantity":0}`, http.StatusBadRequest, "invalid_input"},
		{"bad date", `{"blood_group":"A+","quantity":1,"expiry_date":"01/06/2025"}`, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/organizations/org-1/inventory/", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[errBody](t, rec).Code)
		})
	}
}

func TestInventory_ReservePickupAndDeduct(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/organizations/org-1/inventory/", `{"blood_group":"B-","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[bloodbank.InventoryBatch](t, rec).ID

	rec = a.do(http.MethodPost, "/organizations/org-1/inventory/deduct", `{"blood_group":"B-","units":5}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	e := decodeBody[errBody](t, rec)
	assert.Equal(t, "insufficient_stock", e.Code)
	assert.JSONEq(t, `{"required":5,"available":2}`, string(e.Details))

	rec = a.do(http.MethodPost, "/inventory/"+id+"/pickup", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/inventory/"+id+"/reserve", `{"reserved_by":"hosp-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bloodbank.BatchReserved, decodeBody[bloodbank.InventoryBatch](t, rec).Status)

	rec = a.do(http.MethodPost, "/inventory/"+id+"/pickup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bloodbank.BatchUtilized, decodeBody[bloodbank.InventoryBatch](t, rec).Status)

	rec = a.do(http.MethodDelete, "/inventory/"+id+"/", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodGet, "/inventory/"+id+"/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequests_ClaimAndFulfill(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/organizations/org-1/inventory/", `{"blood_group":"AB+","quantity":4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(http.MethodPost, "/requests",
		`{"requester":{"kind":"hospital","id":"hosp-1"},"blood_group":"ab+","units":3,"urgency":"critical"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decodeBody[bloodbank.BloodRequest](t, rec)
	assert.Equal(t, bloodbank.UrgencyCritical, r.Urgency)

	rec = a.do(http.MethodGet, "/requests/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]bloodbank.BloodRequest](t, rec), 1)

	rec = a.do(http.MethodPatch, "/requests/"+r.ID+"/status", `{"status":"approved","org_id":"org-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPatch, "/requests/"+r.ID+"/status", `{"status":"REJECTED","org_id":"org-2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_claimed", decodeBody[errBody](t, rec).Code)

	rec = a.do(http.MethodPatch, "/requests/"+r.ID+"/status", `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/requests/"+r.ID+"/fulfill", `{"org_id":"org-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f := decodeBody[requests.Fulfillment](t, rec)
	assert.Equal(t, bloodbank.RequestUtilized, f.Request.Status)
	require.Len(t, f.Allocations, 1)
	assert.Equal(t, 1, f.Allocations[0].Remaining)

	rec = a.do(http.MethodGet, "/hospitals/hosp-1/requests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]bloodbank.BloodRequest](t, rec), 1)

	rec = a.do(http.MethodGet, "/organizations/org-1/requests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]bloodbank.BloodRequest](t, rec), 1)
}

func TestRequests_Cancel(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/requests", `{"requester":{"kind":"user","id":"u-1"},"blood_group":"A-","units":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[bloodbank.BloodRequest](t, rec).ID

	rec = a.do(http.MethodPost, "/requests/"+id+"/cancel", `{"requester":{"kind":"user","id":"u-2"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[errBody](t, rec).Code)

	rec = a.do(http.MethodPost, "/requests/"+id+"/cancel", `{"requester":{"kind":"user","id":"u-1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bloodbank.RequestCancelled, decodeBody[bloodbank.BloodRequest](t, rec).Status)

	rec = a.do(http.MethodGet, "/requests/missing/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDonation_Flow(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPut, "/donors/d-1", `{"name":"Asha","blood_group":"B+"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/appointments", `{"donor_id":"d-1","organization_id":"org-1","questionnaire":{"feeling_well":false}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeBody[errBody](t, rec)
	assert.Equal(t, "ineligible", e.Code)
	assert.Contains(t, string(e.Details), `"days_remaining":-1`)

	rec = a.do(http.MethodPost, "/appointments", `{"donor_id":"d-1","organization_id":"org-1","questionnaire":{"feeling_well":true}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decodeBody[bloodbank.DonationAppointment](t, rec)
	assert.Equal(t, bloodbank.BPos, appt.BloodGroup)

	rec = a.do(http.MethodPost, "/appointments/"+appt.ID+"/complete", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPatch, "/appointments/"+appt.ID+"/status", `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/appointments/"+appt.ID+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[bloodbank.DonationAppointment](t, rec)
	assert.Equal(t, bloodbank.AppointmentCompleted, done.Status)
	assert.NotEmpty(t, done.BatchID)

	rec = a.do(http.MethodGet, "/donors/d-1/eligibility/interval", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Eligible      bool `json:"eligible"`
		DaysRemaining int  `json:"days_remaining"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Eligible)
	assert.Equal(t, 56, res.DaysRemaining)

	rec = a.do(http.MethodPost, "/donors/d-1/eligibility", `{"feeling_well":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/donors/d-1/appointments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]bloodbank.DonationAppointment](t, rec), 1)

	rec = a.do(http.MethodGet, "/organizations/org-1/inventory/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]bloodbank.InventoryBatch](t, rec), 1)
}

func TestAdmin_Sweep(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/organizations/org-1/inventory/",
		`{"blood_group":"O-","quantity":1,"collection_date":"2025-04-01","expiry_date":"2025-05-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(http.MethodPost, "/admin/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total     int                 `json:"total"`
		Discarded map[string][]string `json:"discarded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Len(t, body.Discarded["org-1"], 1)
}
