package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
)

type RequestsHandler struct {
	Service *requests.Service
	Log     *zap.Logger
}

type updateRequestStatusReq struct {
	Status string `json:"status"`
	OrgID  string `json:"org_id"`
}

type fulfillReq struct {
	OrgID string `json:"org_id"`
}

type cancelReq struct {
	Requester bloodbank.RequesterRef `json:"requester"`
}

func (h *RequestsHandler) Register(r chi.Router) {
	r.Post("/requests", h.create)
	r.Get("/requests/pending", h.pending)
	r.Route("/requests/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/status", h.updateStatus)
		r.Post("/fulfill", h.fulfill)
		r.Post("/cancel", h.cancel)
	})
	r.Get("/organizations/{orgID}/requests", h.forOrg)
	r.Get("/hospitals/{id}/requests", h.forRequester(bloodbank.RequesterHospital))
	r.Get("/users/{id}/requests", h.forRequester(bloodbank.RequesterUser))
}

func (h *RequestsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in requests.CreateInput
	if !decode(w, r, &in) {
		return
	}
	if g, err := parseGroup(string(in.BloodGroup)); err == nil {
		in.BloodGroup = g
	}
	in.Urgency = bloodbank.Urgency(strings.ToUpper(string(in.Urgency)))

	req, err := h.Service.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *RequestsHandler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateRequestStatusReq
	if !decode(w, r, &body) {
		return
	}
	if body.OrgID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "org_id is required")
		return
	}
	next := bloodbank.RequestStatus(strings.ToUpper(body.Status))
	req, err := h.Service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next, body.OrgID)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestsHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	var body fulfillReq
	if !decode(w, r, &body) {
		return
	}
	out, err := h.Service.Fulfill(r.Context(), chi.URLParam(r, "id"), body.OrgID)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RequestsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelReq
	if !decode(w, r, &body) {
		return
	}
	req, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "id"), body.Requester)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestsHandler) forOrg(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ForOrg(r.Context(), orgParam(r))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RequestsHandler) pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Pending(r.Context())
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RequestsHandler) forRequester(kind bloodbank.RequesterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := bloodbank.RequesterRef{Kind: kind, ID: chi.URLParam(r, "id")}
		list, err := h.Service.ForRequester(r.Context(), ref)
		if err != nil {
			writeDomainError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
