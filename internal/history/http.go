package history

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler serves the read-only history API.
type Handler struct {
	svc Service
}

// NewHandler creates a new history HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the deployment routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{chainId}/{address}", h.handleGet)
}

// ListResponse is the response for listing deployments.
type ListResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	var verified *bool
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "verified must be true or false")
			return
		}
		verified = &b
	}

	result, err := h.svc.List(r.Context(), ListFilter{
		Network:  q.Get("network"),
		ChainID:  q.Get("chain_id"),
		Contract: q.Get("contract"),
		Verified: verified,
	}, PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidChainID) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}

	data := result.Deployments
	if data == nil {
		data = []Deployment{}
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainId")
	address := chi.URLParam(r, "address")

	deployment, err := h.svc.Get(r.Context(), chainID, address)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
		case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidChainID):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		}
		return
	}

	writeJSON(w, http.StatusOK, deployment)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
