package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/sweep"
)

// Registry stores the parties the workflows refer to.
type Registry interface {
	UpsertContact(ctx context.Context, kind bloodbank.PartyKind, c bloodbank.Contact) error
	UpsertDonor(ctx context.Context, d bloodbank.Donor) error
}

// CacheInvalidator drops cached contacts after a registry write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, kind bloodbank.PartyKind, id string)
}

type RegistryHandler struct {
	Registry Registry
	Cache    CacheInvalidator // optional
	Log      *zap.Logger
}

type contactReq struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type donorReq struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	BloodGroup  string `json:"blood_group"`
}

func (h *RegistryHandler) Register(r chi.Router) {
	r.Put("/organizations/{orgID}", h.putContact(bloodbank.PartyOrganization, "orgID"))
	r.Put("/hospitals/{id}", h.putContact(bloodbank.PartyHospital, "id"))
	r.Put("/donors/{id}", h.putDonor)
}

func (h *RegistryHandler) putContact(kind bloodbank.PartyKind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactReq
		if !decode(w, r, &req) {
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, codeInvalidInput, "name is required")
			return
		}
		c := bloodbank.Contact{ID: chi.URLParam(r, param), Name: req.Name, PhoneNumber: req.PhoneNumber}
		if err := h.Registry.UpsertContact(r.Context(), kind, c); err != nil {
			writeDomainError(w, h.Log, err)
			return
		}
		h.invalidate(r.Context(), kind, c.ID)
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *RegistryHandler) putDonor(w http.ResponseWriter, r *http.Request) {
	var req donorReq
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "name is required")
		return
	}
	g, err := parseGroup(req.BloodGroup)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	d := bloodbank.Donor{ID: chi.URLParam(r, "id"), Name: req.Name, PhoneNumber: req.PhoneNumber, BloodGroup: g}
	if err := h.Registry.UpsertDonor(r.Context(), d); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), bloodbank.PartyUser, d.ID)
	writeJSON(w, http.StatusOK, d)
}

func (h *RegistryHandler) invalidate(ctx context.Context, kind bloodbank.PartyKind, id string) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, kind, id)
	}
}

type AdminHandler struct {
	Sweeper *sweep.Sweeper
	Log     *zap.Logger
}

type sweepResp struct {
	sweep.Report
	Total int `json:"total"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/sweep", h.runSweep)
}

func (h *AdminHandler) runSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResp{Report: rep, Total: rep.Total()})
}
