package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// listLeadsHandler handles GET /leads?pipelineId=&stageId=&q=
func (s *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := s.crm.ListLeads(r.Context(), crm.LeadFilter{
		PipelineID: q.Get("pipelineId"),
		StageID:    q.Get("stageId"),
		Query:      q.Get("q"),
	})
	if err != nil {
		writeError(w, "listLeadsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// createLeadHandler handles POST /leads
func (s *Server) createLeadHandler(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if !decodeJSON(w, r, "createLeadHandler", &lead) {
		return
	}
	lead.ID = ""
	created, err := s.crm.CreateLead(r.Context(), lead)
	if err != nil {
		writeError(w, "createLeadHandler", err)
		return
	}
	slog.Info("Server.createLeadHandler: lead created", "leadID", created.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

// getLeadHandler handles GET /leads/{id}
func (s *Server) getLeadHandler(w http.ResponseWriter, r *http.Request) {
	lead, err := s.crm.GetLead(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getLeadHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(lead))
}

// updateLeadHandler handles PUT /leads/{id}
func (s *Server) updateLeadHandler(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if !decodeJSON(w, r, "updateLeadHandler", &lead) {
		return
	}
	lead.ID = r.PathValue("id")
	updated, err := s.crm.UpdateLead(r.Context(), lead)
	if err != nil {
		writeError(w, "updateLeadHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

// deleteLeadHandler handles DELETE /leads/{id}
func (s *Server) deleteLeadHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.crm.DeleteLead(r.Context(), id); err != nil {
		writeError(w, "deleteLeadHandler", err)
		return
	}
	slog.Info("Server.deleteLeadHandler: lead deleted", "leadID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Lead deleted", nil))
}

type moveRequest struct {
	StageID string `json:"stageId"`
}

// moveLeadHandler handles POST /leads/{id}/move
func (s *Server) moveLeadHandler(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeJSON(w, r, "moveLeadHandler", &req) {
		return
	}
	lead, err := s.crm.MoveLead(r.Context(), r.PathValue("id"), req.StageID)
	if err != nil {
		writeError(w, "moveLeadHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(lead))
}

// leadContextHandler handles GET /leads/{id}/context
func (s *Server) leadContextHandler(w http.ResponseWriter, r *http.Request) {
	lc, err := s.crm.LeadContext(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "leadContextHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(lc))
}

// updateLeadContextHandler handles PATCH /leads/{id}/context
func (s *Server) updateLeadContextHandler(w http.ResponseWriter, r *http.Request) {
	var flags crm.LeadFlags
	if !decodeJSON(w, r, "updateLeadContextHandler", &flags) {
		return
	}
	if flags.IsQualified == nil && flags.IsInterested == nil && flags.NeedsHumanIntervention == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("at least one of isQualified, isInterested or needsHumanIntervention is required"))
		return
	}
	lc, err := s.crm.UpdateLeadFlags(r.Context(), r.PathValue("id"), flags)
	if err != nil {
		writeError(w, "updateLeadContextHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(lc))
}

// leadMessagesHandler handles GET /leads/{id}/messages
func (s *Server) leadMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.crm.GetLead(r.Context(), id); err != nil {
		writeError(w, "leadMessagesHandler", err)
		return
	}
	msgs, err := s.crm.ListMessages(r.Context(), crm.MessageFilter{LeadID: id})
	if err != nil {
		writeError(w, "leadMessagesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}
