package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/flowgraph"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before any header is written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, crm.ErrFieldIndex),
		errors.Is(err, flowgraph.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crm.ErrDefaultPipelineDelete),
		errors.Is(err, crm.ErrPipelineHasLeads),
		errors.Is(err, crm.ErrStageHasLeads):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err in the error envelope. Internal errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("Server."+op+": internal error", "error", err)
		writeJSONResponse(w, code, models.Error("Internal server error"))
		return
	}
	slog.Warn("Server."+op+": request failed", "status", code, "error", err)
	writeJSONResponse(w, code, models.Error(err.Error()))
}

// decodeJSON reads the request body into v and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if r.Body == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing request body"))
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Server."+op+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}
