package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/flowgraph"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// listAgentsHandler handles GET /agents
func (s *Server) listAgentsHandler(w http.ResponseWriter, r *http.Request) {
	agents, err := s.crm.ListAgents(r.Context())
	if err != nil {
		writeError(w, "listAgentsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(agents))
}

// createAgentHandler handles POST /agents
func (s *Server) createAgentHandler(w http.ResponseWriter, r *http.Request) {
	var a models.AIAgent
	if !decodeJSON(w, r, "createAgentHandler", &a) {
		return
	}
	a.ID = ""
	saved, err := s.crm.SaveAgent(r.Context(), a)
	if err != nil {
		writeError(w, "createAgentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(saved))
}

// getAgentHandler handles GET /agents/{id}
func (s *Server) getAgentHandler(w http.ResponseWriter, r *http.Request) {
	a, err := s.crm.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getAgentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(a))
}

// updateAgentHandler handles PUT /agents/{id}
func (s *Server) updateAgentHandler(w http.ResponseWriter, r *http.Request) {
	var a models.AIAgent
	if !decodeJSON(w, r, "updateAgentHandler", &a) {
		return
	}
	a.ID = r.PathValue("id")
	if _, err := s.crm.GetAgent(r.Context(), a.ID); err != nil {
		writeError(w, "updateAgentHandler", err)
		return
	}
	saved, err := s.crm.SaveAgent(r.Context(), a)
	if err != nil {
		writeError(w, "updateAgentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(saved))
}

// deleteAgentHandler handles DELETE /agents/{id}
func (s *Server) deleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.crm.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "deleteAgentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Agent deleted", nil))
}

type activeRequest struct {
	Active *bool `json:"active"`
}

// agentActiveHandler handles POST /agents/{id}/active
func (s *Server) agentActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !decodeJSON(w, r, "agentActiveHandler", &req) {
		return
	}
	if req.Active == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: active"))
		return
	}
	a, err := s.crm.SetAgentActive(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		writeError(w, "agentActiveHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(a))
}

// agentFlowHandler handles POST /agents/flow
func (s *Server) agentFlowHandler(w http.ResponseWriter, r *http.Request) {
	var flow crm.AgentFlow
	if !decodeJSON(w, r, "agentFlowHandler", &flow) {
		return
	}
	agents, err := s.crm.ApplyAgentFlow(r.Context(), flow)
	if err != nil {
		writeError(w, "agentFlowHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(agents))
}

type graphView struct {
	Nodes       []flowgraph.Node    `json:"nodes"`
	Edges       []flowgraph.Edge    `json:"edges"`
	EntryPoints []string            `json:"entryPoints"`
	Warnings    []flowgraph.Warning `json:"warnings"`
}

// agentGraphHandler handles GET /agents/graph?format=json|dot|svg
func (s *Server) agentGraphHandler(w http.ResponseWriter, r *http.Request) {
	agents, err := s.crm.ListAgents(r.Context())
	if err != nil {
		writeError(w, "agentGraphHandler", err)
		return
	}
	g := flowgraph.Build(agents)

	name := r.URL.Query().Get("format")
	if name == "" || name == "json" {
		writeJSONResponse(w, http.StatusOK, models.Success(graphView{
			Nodes:       g.Nodes(),
			Edges:       g.Edges(),
			EntryPoints: g.EntryPoints(),
			Warnings:    g.Warnings(),
		}))
		return
	}

	format, err := flowgraph.ParseFormat(name)
	if err != nil {
		writeError(w, "agentGraphHandler", err)
		return
	}
	out, err := flowgraph.Render(r.Context(), g, format)
	if err != nil {
		writeError(w, "agentGraphHandler", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		slog.Error("Server.agentGraphHandler: failed to write graph", "error", err)
	}
}
