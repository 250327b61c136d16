package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/providercfg"
)

func (s *Server) providersEnabled(w http.ResponseWriter) bool {
	if s.providers == nil || s.router == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Provider configuration is not available"))
		return false
	}
	return true
}

// getProviderHandler handles GET /provider-config. Secrets are masked.
func (s *Server) getProviderHandler(w http.ResponseWriter, r *http.Request) {
	if !s.providersEnabled(w) {
		return
	}
	cfg, err := s.providers.Load(r.Context())
	if err != nil {
		writeError(w, "getProviderHandler", err)
		return
	}
	if cfg == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No provider configured; messages use the simulated transport"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cfg.Redacted()))
}

// putProviderHandler handles PUT /provider-config. HTTP providers take
// effect immediately; a whatsmeow device is linked on the next start.
func (s *Server) putProviderHandler(w http.ResponseWriter, r *http.Request) {
	if !s.providersEnabled(w) {
		return
	}
	var cfg providercfg.Config
	if !decodeJSON(w, r, "putProviderHandler", &cfg) {
		return
	}
	cfg.Version = providercfg.CurrentVersion
	if err := cfg.Validate(); err != nil {
		slog.Warn("Server.putProviderHandler: invalid provider config", "provider", cfg.Provider, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	message := "Provider configured"
	if cfg.Provider == providercfg.ProviderWhatsmeow {
		message = "Provider saved; restart LeadPipe to link the WhatsApp device"
	} else {
		routes, err := messaging.RoutesFromConfig(cfg, s.factory)
		if err != nil {
			slog.Warn("Server.putProviderHandler: failed to build provider", "provider", cfg.Provider, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		s.router.Reset()
		if err := s.router.Apply(routes); err != nil {
			slog.Error("Server.putProviderHandler: failed to start provider", "provider", cfg.Provider, "error", err)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to start provider"))
			return
		}
	}

	if err := s.providers.Save(r.Context(), cfg); err != nil {
		writeError(w, "putProviderHandler", err)
		return
	}
	slog.Info("Server.putProviderHandler: provider saved", "provider", cfg.Provider)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(message, cfg.Redacted()))
}

// deleteProviderHandler handles DELETE /provider-config. Every channel falls
// back to the simulated transport.
func (s *Server) deleteProviderHandler(w http.ResponseWriter, r *http.Request) {
	if !s.providersEnabled(w) {
		return
	}
	if err := s.providers.Clear(r.Context()); err != nil {
		writeError(w, "deleteProviderHandler", err)
		return
	}
	s.router.Reset()
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider cleared", nil))
}

// twilioWebhookHandler handles POST /webhooks/twilio
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Twilio is not configured"))
		return
	}
	tw := s.router.Twilio()
	if tw == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Twilio is not configured"))
		return
	}
	tw.TwilioWebhookHandler(w, r)
}

type testSendRequest struct {
	Channel models.ChannelType `json:"channel"`
	To      string             `json:"to"`
	Body    string             `json:"body"`
}

// testProviderHandler handles POST /provider-config/test. It sends one
// message through the routed provider and reports the delivery outcome.
func (s *Server) testProviderHandler(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Provider configuration is not available"))
		return
	}
	var req testSendRequest
	if !decodeJSON(w, r, "testProviderHandler", &req) {
		return
	}
	if req.Channel == "" {
		req.Channel = models.ChannelWhatsApp
	}
	if !models.IsValidChannel(req.Channel) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidChannel.Error()))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("body is required"))
		return
	}

	res := s.router.Deliver(r.Context(), req.Channel, req.To, req.Body)
	slog.Info("Server.testProviderHandler: test message attempted", "channel", req.Channel, "to", res.Recipient, "outcome", res.Outcome)
	switch res.Outcome {
	case messaging.OutcomeSent:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Test message sent", res))
	case messaging.OutcomeRejected:
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage("Test message rejected").
			WithResult(res).
			Build())
	default:
		writeJSONResponse(w, http.StatusBadGateway, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage("Provider transport error").
			WithResult(res).
			Build())
	}
}
