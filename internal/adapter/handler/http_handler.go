package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/medilink/pharmacy/internal/core/domain"
	"github.com/medilink/pharmacy/internal/core/service"
	"github.com/medilink/pharmacy/internal/port"
)

type HTTPHandler struct {
	pharmacy *service.PharmacyService
}

func NewHTTPHandler(pharmacy *service.PharmacyService) *HTTPHandler {
	return &HTTPHandler{pharmacy: pharmacy}
}

type RegisterMedicineHTTPRequest struct {
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	UnitPrice float64 `json:"unit_price"`
	Unit      string  `json:"unit"`
	Stock     int     `json:"stock"`
}

type AdjustStockHTTPRequest struct {
	Delta    *int `json:"delta"`
	Absolute *int `json:"absolute"`
}

type PrescriptionItemHTTP struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

type CreatePrescriptionHTTPRequest struct {
	RequestID string                 `json:"request_id"`
	PatientID string                 `json:"patient_id"`
	DoctorID  string                 `json:"doctor_id"`
	Items     []PrescriptionItemHTTP `json:"items"`
	Notes     string                 `json:"notes"`
}

type MedicineHTTPResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku,omitempty"`
	UnitPrice float64   `json:"unit_price"`
	Unit      string    `json:"unit"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PrescriptionHTTPResponse struct {
	ID        string                 `json:"id"`
	Seq       int64                  `json:"seq"`
	PatientID string                 `json:"patient_id"`
	DoctorID  string                 `json:"doctor_id"`
	Items     []PrescriptionItemHTTP `json:"items"`
	Notes     string                 `json:"notes,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) RegisterMedicine(w http.ResponseWriter, r *http.Request) {
	var req RegisterMedicineHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}

	med, err := h.pharmacy.RegisterMedicine(r.Context(), service.RegisterMedicineRequest{
		Name:      req.Name,
		SKU:       req.SKU,
		UnitPrice: req.UnitPrice,
		Unit:      req.Unit,
		Stock:     req.Stock,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMedicineResponse(*med))
}

func (h *HTTPHandler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.pharmacy.ListMedicines(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]MedicineHTTPResponse, 0, len(medicines))
	for _, med := range medicines {
		resp = append(resp, toMedicineResponse(med))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetMedicine(w http.ResponseWriter, r *http.Request) {
	med, err := h.pharmacy.GetMedicine(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMedicineResponse(*med))
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}

	med, err := h.pharmacy.AdjustStock(r.Context(), r.PathValue("id"), service.StockAdjustment{
		Delta:    req.Delta,
		Absolute: req.Absolute,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMedicineResponse(*med))
}

func (h *HTTPHandler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}

	items := make([]service.PrescriptionItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.PrescriptionItemRequest{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
		})
	}

	p, err := h.pharmacy.CreatePrescription(r.Context(), service.CreatePrescriptionRequest{
		RequestID: req.RequestID,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Items:     items,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPrescriptionResponse(*p))
}

func (h *HTTPHandler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := h.pharmacy.ListPrescriptions(r.Context(), port.PrescriptionFilter{
		PatientID: r.URL.Query().Get("patient_id"),
		DoctorID:  r.URL.Query().Get("doctor_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]PrescriptionHTTPResponse, 0, len(prescriptions))
	for _, p := range prescriptions {
		resp = append(resp, toPrescriptionResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toMedicineResponse(med domain.Medicine) MedicineHTTPResponse {
	return MedicineHTTPResponse{
		ID:        med.ID,
		Seq:       med.Seq,
		Name:      med.Name,
		SKU:       med.SKU,
		UnitPrice: med.UnitPrice,
		Unit:      med.Unit,
		Stock:     med.Stock,
		CreatedAt: med.CreatedAt,
		UpdatedAt: med.UpdatedAt,
	}
}

func toPrescriptionResponse(p domain.Prescription) PrescriptionHTTPResponse {
	items := make([]PrescriptionItemHTTP, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, PrescriptionItemHTTP{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
		})
	}
	return PrescriptionHTTPResponse{
		ID:        p.ID,
		Seq:       p.Seq,
		PatientID: p.PatientID,
		DoctorID:  p.DoctorID,
		Items:     items,
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUnknownMedicine):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, ErrorHTTPResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
