package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/donation"
)

type DonationHandler struct {
	Service *donation.Service
	Log     *zap.Logger
}

type bookReq struct {
	DonorID         string                  `json:"donor_id"`
	OrgID           string                  `json:"organization_id"`
	BloodGroup      string                  `json:"blood_group"`
	AppointmentDate string                  `json:"appointment_date"`
	Questionnaire   bloodbank.Questionnaire `json:"questionnaire"`
}

type appointmentStatusReq struct {
	Status string `json:"status"`
}

func (h *DonationHandler) Register(r chi.Router) {
	r.Post("/appointments", h.book)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/status", h.updateStatus)
		r.Post("/complete", h.complete)
	})
	r.Get("/organizations/{orgID}/appointments", h.forOrg)
	r.Get("/donors/{id}/appointments", h.forDonor)
	r.Post("/donors/{id}/eligibility", h.checkEligibility)
	r.Get("/donors/{id}/eligibility/interval", h.checkInterval)
}

func (h *DonationHandler) book(w http.ResponseWriter, r *http.Request) {
	var req bookReq
	if !decode(w, r, &req) {
		return
	}
	in := donation.BookInput{DonorID: req.DonorID, OrgID: req.OrgID, Questionnaire: req.Questionnaire}
	var err error
	if req.BloodGroup != "" {
		if in.BloodGroup, err = parseGroup(req.BloodGroup); err != nil {
			writeDomainError(w, h.Log, err)
			return
		}
	}
	if in.AppointmentDate, err = parseDay("appointment_date", req.AppointmentDate); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}

	a, err := h.Service.Book(r.Context(), in)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *DonationHandler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *DonationHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body appointmentStatusReq
	if !decode(w, r, &body) {
		return
	}
	next := bloodbank.AppointmentStatus(strings.ToUpper(body.Status))
	a, err := h.Service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *DonationHandler) complete(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *DonationHandler) forOrg(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ForOrg(r.Context(), orgParam(r))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DonationHandler) forDonor(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ForDonor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DonationHandler) checkEligibility(w http.ResponseWriter, r *http.Request) {
	var q bloodbank.Questionnaire
	if !decode(w, r, &q) {
		return
	}
	res, err := h.Service.CheckEligibility(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DonationHandler) checkInterval(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.CheckDonationInterval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
