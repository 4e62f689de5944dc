package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
)

type InventoryHandler struct {
	Ledger *inventory.Ledger
	Log    *zap.Logger
}

type addBatchReq struct {
	BloodGroup     string `json:"blood_group"`
	Quantity       int    `json:"quantity"`
	CollectionDate string `json:"collection_date"`
	ExpiryDate     string `json:"expiry_date"`
	SourceDonorID  string `json:"source_donor_id"`
	Label          string `json:"label"`
}

type deductReq struct {
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
}

type deductResp struct {
	Allocations []bloodbank.Allocation `json:"allocations"`
}

type reserveReq struct {
	ReservedBy string `json:"reserved_by"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/organizations/{orgID}/inventory", func(r chi.Router) {
		r.Post("/", h.addBatch)
		r.Get("/", h.listByOrg)
		r.Get("/available", h.queryAvailable)
		r.Post("/deduct", h.deduct)
	})
	r.Get("/inventory/search", h.search)
	r.Route("/inventory/{batchID}", func(r chi.Router) {
		r.Get("/", h.getBatch)
		r.Delete("/", h.removeBatch)
		r.Post("/reserve", h.reserve)
		r.Post("/pickup", h.pickup)
	})
}

func (h *InventoryHandler) addBatch(w http.ResponseWriter, r *http.Request) {
	var req addBatchReq
	if !decode(w, r, &req) {
		return
	}
	in := inventory.NewBatch{
		OrgID:         orgParam(r),
		Quantity:      req.Quantity,
		SourceDonorID: req.SourceDonorID,
		Label:         req.Label,
	}
	var err error
	if in.BloodGroup, err = parseGroup(req.BloodGroup); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	if in.CollectionDate, err = parseDay("collection_date", req.CollectionDate); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	if in.ExpiryDate, err = parseDay("expiry_date", req.ExpiryDate); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}

	b, err := h.Ledger.AddBatch(r.Context(), in)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *InventoryHandler) listByOrg(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Ledger.ListByOrg(r.Context(), orgParam(r))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *InventoryHandler) queryAvailable(w http.ResponseWriter, r *http.Request) {
	g, err := parseGroup(r.URL.Query().Get("blood_group"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	batches, err := h.Ledger.QueryAvailable(r.Context(), g, orgParam(r))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *InventoryHandler) search(w http.ResponseWriter, r *http.Request) {
	g, err := parseGroup(r.URL.Query().Get("blood_group"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	stock, err := h.Ledger.SearchAvailable(r.Context(), g)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *InventoryHandler) deduct(w http.ResponseWriter, r *http.Request) {
	var req deductReq
	if !decode(w, r, &req) {
		return
	}
	g, err := parseGroup(req.BloodGroup)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	allocs, err := h.Ledger.DeductFEFO(r.Context(), orgParam(r), g, req.Units)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, deductResp{Allocations: allocs})
}

func (h *InventoryHandler) getBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *InventoryHandler) removeBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.RemoveBatch(r.Context(), chi.URLParam(r, "batchID")); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if !decode(w, r, &req) {
		return
	}
	b, err := h.Ledger.Reserve(r.Context(), chi.URLParam(r, "batchID"), req.ReservedBy)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *InventoryHandler) pickup(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.ConfirmPickup(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
