package api

import (
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// listPipelinesHandler handles GET /pipelines
func (s *Server) listPipelinesHandler(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.crm.ListPipelines(r.Context())
	if err != nil {
		writeError(w, "listPipelinesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pipelines))
}

// createPipelineHandler handles POST /pipelines
func (s *Server) createPipelineHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Pipeline
	if !decodeJSON(w, r, "createPipelineHandler", &p) {
		return
	}
	p.ID = ""
	saved, err := s.crm.SavePipeline(r.Context(), p)
	if err != nil {
		writeError(w, "createPipelineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(saved))
}

// getPipelineHandler handles GET /pipelines/{id}
func (s *Server) getPipelineHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.crm.GetPipeline(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getPipelineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// updatePipelineHandler handles PUT /pipelines/{id}
func (s *Server) updatePipelineHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Pipeline
	if !decodeJSON(w, r, "updatePipelineHandler", &p) {
		return
	}
	p.ID = r.PathValue("id")
	if _, err := s.crm.GetPipeline(r.Context(), p.ID); err != nil {
		writeError(w, "updatePipelineHandler", err)
		return
	}
	saved, err := s.crm.SavePipeline(r.Context(), p)
	if err != nil {
		writeError(w, "updatePipelineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(saved))
}

// deletePipelineHandler handles DELETE /pipelines/{id}
func (s *Server) deletePipelineHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.crm.DeletePipeline(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "deletePipelineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Pipeline deleted", nil))
}

// defaultPipelineHandler handles POST /pipelines/{id}/default
func (s *Server) defaultPipelineHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.crm.SetDefaultPipeline(r.Context(), id); err != nil {
		writeError(w, "defaultPipelineHandler", err)
		return
	}
	p, err := s.crm.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, "defaultPipelineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// pipelineStatsHandler handles GET /pipelines/{id}/stats
func (s *Server) pipelineStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.crm.PipelineStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "pipelineStatsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
