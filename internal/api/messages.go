package api

import (
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/trigger"
)

// listMessagesHandler handles GET /messages?leadId=&agentId=&status=
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := s.crm.ListMessages(r.Context(), crm.MessageFilter{
		LeadID:  q.Get("leadId"),
		AgentID: q.Get("agentId"),
		Status:  models.MessageStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, "listMessagesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// getMessageHandler handles GET /messages/{id}
func (s *Server) getMessageHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := s.crm.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getMessageHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msg))
}

// sentimentHandler handles POST /messages/{id}/sentiment
func (s *Server) sentimentHandler(w http.ResponseWriter, r *http.Request) {
	var sentiment models.Sentiment
	if !decodeJSON(w, r, "sentimentHandler", &sentiment) {
		return
	}
	msg, err := s.crm.AnnotateSentiment(r.Context(), r.PathValue("id"), sentiment)
	if err != nil {
		writeError(w, "sentimentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msg))
}

// messageStatsHandler handles GET /messages/stats
func (s *Server) messageStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.crm.MessageStats(r.Context())
	if err != nil {
		writeError(w, "messageStatsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

type customEventRequest struct {
	LeadID  string         `json:"leadId"`
	Payload map[string]any `json:"payload"`
}

// customEventHandler handles POST /events/custom, raising a custom_signal
// event for one lead.
func (s *Server) customEventHandler(w http.ResponseWriter, r *http.Request) {
	var req customEventRequest
	if !decodeJSON(w, r, "customEventHandler", &req) {
		return
	}
	if req.LeadID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: leadId"))
		return
	}
	if _, err := s.crm.GetLead(r.Context(), req.LeadID); err != nil {
		writeError(w, "customEventHandler", err)
		return
	}
	err := s.crm.Emit(r.Context(), trigger.Event{
		Kind:    trigger.EventCustomSignal,
		LeadID:  req.LeadID,
		Payload: req.Payload,
	})
	if err != nil {
		writeError(w, "customEventHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, models.Accepted("Event accepted"))
}
