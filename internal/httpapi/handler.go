package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// MaxBatchBytes caps the request body of a submitted batch.
const MaxBatchBytes = 10 << 20

// ProcessFunc runs one batch. Engine.Process and Engine.Submit both fit.
type ProcessFunc func(ctx context.Context, b *enrollment.Batch) (*engine.Report, error)

// MarkerReader lists the idempotency markers of an enrollment.
type MarkerReader interface {
	ReadMarkers(ctx context.Context, hbx string) ([]enrollment.Marker, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	process ProcessFunc
	markers MarkerReader
	pingers []Pinger
}

// NewHandler creates a Handler. Every pinger must succeed for /healthz to
// report ok.
func NewHandler(process ProcessFunc, markers MarkerReader, pingers ...Pinger) *Handler {
	return &Handler{process: process, markers: markers, pingers: pingers}
}

func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBatchBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "read body: "+err.Error())
		return
	}
	batch, err := enrollment.DecodeBatchJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(engine.ErrCodeInvalidBatch), err.Error())
		return
	}

	rep, err := h.process(r.Context(), batch)
	if err != nil {
		status, code := mapEngineError(err)
		writeJSON(w, status, ErrorResponse{Status: "error", Code: code, Message: err.Error(), Report: rep})
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

func (h *Handler) listMarkers(w http.ResponseWriter, r *http.Request) {
	hbx := strings.TrimSpace(chi.URLParam(r, "hbx_enrollment_id"))
	if hbx == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "hbx_enrollment_id is required")
		return
	}
	markers, err := h.markers.ReadMarkers(r.Context(), hbx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, string(engine.ErrCodeCollaboratorFailure), err.Error())
		return
	}
	resp := MarkersResponse{HbxEnrollmentID: hbx, Markers: make([]MarkerResponse, 0, len(markers))}
	for _, m := range markers {
		resp.Markers = append(resp.Markers, MarkerResponse{ActionURI: m.ActionURI, ContentHash: m.ContentHash})
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mapEngineError(err error) (int, string) {
	var re *engine.RuntimeError
	switch {
	case errors.As(err, &re):
		switch re.Code {
		case engine.ErrCodeInvalidBatch:
			return http.StatusBadRequest, string(re.Code)
		case engine.ErrCodeCycleDetected:
			return http.StatusConflict, string(re.Code)
		case engine.ErrCodeCollaboratorFailure:
			return http.StatusServiceUnavailable, string(re.Code)
		}
		return http.StatusInternalServerError, string(re.Code)
	case errors.Is(err, engine.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
