// Package records exposes hospitals, blood inventory and delivery requests.
package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/model"
	corerecords "github.com/kilianp07/bloodlift/core/records"
)

// Store is the record access needed by the handlers.
type Store interface {
	corerecords.Store
	corerecords.Editor
}

// Triggerer requests a scheduling pass after a change that may create a
// mission.
type Triggerer interface {
	Trigger(reason string)
}

// Handler serves the record endpoints.
type Handler struct {
	store Store
	trig  Triggerer
	log   logger.Logger
}

// NewHandler creates a Handler. trig may be nil.
func NewHandler(store Store, trig Triggerer, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop{}
	}
	return &Handler{store: store, trig: trig, log: log}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/requests", h.listRequests)
	r.Post("/api/requests", h.createRequest)
	r.Get("/api/inventory", h.listInventory)
	r.Put("/api/inventory", h.updateInventory)
	r.Get("/api/hospitals", h.listHospitals)
	r.Post("/api/hospitals", h.addHospital)
	r.Put("/api/hospitals/{id}", h.editHospital)
	r.Delete("/api/hospitals/{id}", h.deleteHospital)
}

type requestBody struct {
	HospitalID int64  `json:"hospital_id"`
	BloodType  string `json:"blood_type"`
	Units      int    `json:"units"`
	Urgency    string `json:"urgency"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	urgency, err := model.ParseUrgency(body.Urgency)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.store.CreateRequest(r.Context(), model.DeliveryRequest{
		HospitalID: body.HospitalID,
		BloodType:  strings.ToUpper(strings.TrimSpace(body.BloodType)),
		Units:      body.Units,
		Urgency:    urgency,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Infof("request %d: %d units %s for hospital %d (%s)", req.ID, req.Units, req.BloodType, req.HospitalID, req.Urgency)
	h.trigger("request_created")
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.store.ListRequests(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.store.ListInventory(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(inv))
}

func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) {
	var rec model.InventoryRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	rec.BloodType = strings.ToUpper(strings.TrimSpace(rec.BloodType))
	if rec.BloodType == "" {
		http.Error(w, "blood type is required", http.StatusBadRequest)
		return
	}
	rec.LastUpdated = rec.LastUpdated.UTC()
	if err := h.store.UpsertInventory(r.Context(), rec); err != nil {
		h.fail(w, err)
		return
	}
	h.trigger("inventory_updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listHospitals(w http.ResponseWriter, r *http.Request) {
	hs, err := h.store.ListHospitals(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(hs))
}

func (h *Handler) addHospital(w http.ResponseWriter, r *http.Request) {
	var hosp model.Hospital
	if err := json.NewDecoder(r.Body).Decode(&hosp); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	hosp.ID = 0
	created, err := h.store.AddHospital(r.Context(), hosp)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) editHospital(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var hosp model.Hospital
	if err := json.NewDecoder(r.Body).Decode(&hosp); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	hosp.ID = id
	if err := h.store.UpdateHospital(r.Context(), hosp); err != nil {
		h.fail(w, err)
		return
	}
	h.trigger("hospital_updated")
	writeJSON(w, http.StatusOK, hosp)
}

func (h *Handler) deleteHospital(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteHospital(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) trigger(reason string) {
	if h.trig != nil {
		h.trig.Trigger(reason)
	}
}

// fail maps store errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, corerecords.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, corerecords.ErrInUse), errors.Is(err, corerecords.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, corerecords.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Errorf("record store: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
