// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package ehrstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Blaqmann/ehr-system/internal/auth"
)

// Store is the storage surface the HTTP handlers require. *Service
// implements it; tests substitute a fake.
type Store interface {
	CreateRecord(ctx context.Context, patientID, recordType string, payload json.RawMessage) (string, error)
	ListByPatient(ctx context.Context, patientID, recordType string) ([]Record, error)
	UpdatePatientField(ctx context.Context, patientID, field string, value any) error
}

// HTTPHandlers exposes the record store over HTTP.
type HTTPHandlers struct {
	store   Store
	jwt     *JWTAuth
	logger  *slog.Logger
	metrics *Metrics
}

// NewHTTPHandlers creates the handler set. metrics may be nil.
func NewHTTPHandlers(store Store, jwtAuth *JWTAuth, logger *slog.Logger, metrics *Metrics) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{store: store, jwt: jwtAuth, logger: logger, metrics: metrics}
}

// Routes mounts the API on a chi router.
func (h *HTTPHandlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Post("/patients/{patientID}/records/{recordType}", h.handleCreateRecord)
		r.Get("/patients/{patientID}/records/{recordType}", h.handleListRecords)
		r.Patch("/patients/{patientID}", h.handleUpdatePatient)
	})
	return r
}

func (h *HTTPHandlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.jwt.FromRequest(r)
		if err != nil {
			h.writeError(w, "auth", http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		ctx := auth.SetUserID(r.Context(), claims.Subject)
		ctx = auth.SetRole(ctx, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HTTPHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type createRecordResponse struct {
	ID string `json:"id"`
}

func (h *HTTPHandlers) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	patientID := chi.URLParam(r, "patientID")
	recordType := chi.URLParam(r, "recordType")

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, "create_record", http.StatusBadRequest, "invalid_request", "failed to parse record payload")
		return
	}

	id, err := h.store.CreateRecord(r.Context(), patientID, recordType, payload)
	if err != nil {
		h.logger.Error("failed to create record",
			"patient_id", patientID, "record_type", recordType, "error", err)
		h.writeError(w, "create_record", http.StatusUnprocessableEntity, "create_failed", err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCreates.WithLabelValues(recordType).Inc()
		h.metrics.RequestDuration.WithLabelValues("create_record").Observe(time.Since(start).Seconds())
	}

	userID, _ := auth.GetUserID(r.Context())
	role, _ := auth.GetRole(r.Context())
	h.logger.Info("record created",
		"id", id, "patient_id", patientID, "record_type", recordType,
		"user_id", userID, "role", role)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRecordResponse{ID: id})
}

type listRecordsResponse struct {
	Records []Record `json:"records"`
}

func (h *HTTPHandlers) handleListRecords(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	patientID := chi.URLParam(r, "patientID")
	recordType := chi.URLParam(r, "recordType")

	records, err := h.store.ListByPatient(r.Context(), patientID, recordType)
	if err != nil {
		h.logger.Error("failed to list records",
			"patient_id", patientID, "record_type", recordType, "error", err)
		h.writeError(w, "list_records", http.StatusUnprocessableEntity, "list_failed", err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLists.WithLabelValues(recordType).Inc()
		h.metrics.RequestDuration.WithLabelValues("list_records").Observe(time.Since(start).Seconds())
	}

	if records == nil {
		records = []Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listRecordsResponse{Records: records})
}

type updatePatientRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (h *HTTPHandlers) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	var req updatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		h.writeError(w, "update_patient", http.StatusBadRequest, "invalid_request", "field and value are required")
		return
	}

	if err := h.store.UpdatePatientField(r.Context(), patientID, req.Field, req.Value); err != nil {
		h.logger.Error("failed to update patient field",
			"patient_id", patientID, "field", req.Field, "error", err)
		h.writeError(w, "update_patient", http.StatusUnprocessableEntity, "update_failed", err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.PatientUpdates.Inc()
	}

	userID, _ := auth.GetUserID(r.Context())
	role, _ := auth.GetRole(r.Context())
	h.logger.Info("patient field updated",
		"patient_id", patientID, "field", req.Field, "user_id", userID, "role", role)

	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, handler string, status int, code, message string) {
	if h.metrics != nil {
		h.metrics.RequestErrors.WithLabelValues(handler, code).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
}
