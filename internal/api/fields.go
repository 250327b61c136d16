package api

import (
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// listFieldsHandler handles GET /custom-fields
func (s *Server) listFieldsHandler(w http.ResponseWriter, r *http.Request) {
	fields, err := s.crm.ListCustomFields(r.Context())
	if err != nil {
		writeError(w, "listFieldsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(fields))
}

// createFieldHandler handles POST /custom-fields
func (s *Server) createFieldHandler(w http.ResponseWriter, r *http.Request) {
	var f models.CustomField
	if !decodeJSON(w, r, "createFieldHandler", &f) {
		return
	}
	f.ID = ""
	saved, err := s.crm.SaveCustomField(r.Context(), f)
	if err != nil {
		writeError(w, "createFieldHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(saved))
}

// updateFieldHandler handles PUT /custom-fields/{id}
func (s *Server) updateFieldHandler(w http.ResponseWriter, r *http.Request) {
	var f models.CustomField
	if !decodeJSON(w, r, "updateFieldHandler", &f) {
		return
	}
	f.ID = r.PathValue("id")
	if _, err := s.crm.Store().CustomFields().Get(r.Context(), f.ID); err != nil {
		writeError(w, "updateFieldHandler", err)
		return
	}
	saved, err := s.crm.SaveCustomField(r.Context(), f)
	if err != nil {
		writeError(w, "updateFieldHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(saved))
}

// deleteFieldHandler handles DELETE /custom-fields/{id}
func (s *Server) deleteFieldHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.crm.DeleteCustomField(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "deleteFieldHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Custom field deleted", nil))
}

type moveFieldRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// moveFieldHandler handles POST /custom-fields/move with 0-based positions.
func (s *Server) moveFieldHandler(w http.ResponseWriter, r *http.Request) {
	var req moveFieldRequest
	if !decodeJSON(w, r, "moveFieldHandler", &req) {
		return
	}
	fields, err := s.crm.MoveCustomField(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "moveFieldHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(fields))
}
