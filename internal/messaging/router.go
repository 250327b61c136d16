package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ResponseSource is anything that yields inbound replies.
type ResponseSource interface {
	Responses() <-chan models.Response
}

// Router picks the Service for a message channel. Channels without a route
// use the fallback. Replies from every routed service are merged into the
// router's own Responses channel.
type Router struct {
	*inbox
	mu       sync.RWMutex
	routes   map[models.ChannelType]Service
	fallback Service
	ctx      context.Context
	started  map[Service]bool
	forwards sync.WaitGroup
}

// NewRouter creates a Router. fallback handles unmapped channels.
func NewRouter(fallback Service) *Router {
	return &Router{
		inbox:    newInbox("Router"),
		routes:   make(map[models.ChannelType]Service),
		fallback: fallback,
		ctx:      context.Background(),
		started:  make(map[Service]bool),
	}
}

// Start starts the fallback and every routed service.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	services := r.servicesLocked()
	r.mu.Unlock()

	for _, svc := range services {
		if err := r.startService(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// startService starts svc once and forwards its replies.
func (r *Router) startService(ctx context.Context, svc Service) error {
	r.mu.Lock()
	if r.started[svc] {
		r.mu.Unlock()
		return nil
	}
	r.started[svc] = true
	r.mu.Unlock()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	r.forwards.Add(1)
	go func() {
		defer r.forwards.Done()
		for resp := range svc.Responses() {
			r.emit(resp)
		}
	}()
	return nil
}

// Apply installs routes, replacing the services of the given channels. Each
// new service is started and each replaced one is stopped.
func (r *Router) Apply(routes map[models.ChannelType]Service) error {
	r.mu.Lock()
	ctx := r.ctx
	var replaced []Service
	for ch, svc := range routes {
		if old, ok := r.routes[ch]; ok && old != svc {
			replaced = append(replaced, old)
		}
		r.routes[ch] = svc
	}
	r.mu.Unlock()

	for ch, svc := range routes {
		if err := r.startService(ctx, svc); err != nil {
			return err
		}
		slog.Info("Router.Apply: route installed", "channel", ch)
	}
	stopped := map[Service]bool{}
	for _, old := range replaced {
		if stopped[old] || r.inUse(old) {
			continue
		}
		stopped[old] = true
		if err := old.Stop(); err != nil {
			slog.Warn("Router.Apply: failed to stop replaced service", "error", err)
		}
	}
	return nil
}

// Reset drops every route, stopping the routed services.
func (r *Router) Reset() {
	r.mu.Lock()
	routes := r.routes
	r.routes = make(map[models.ChannelType]Service)
	r.mu.Unlock()

	stopped := map[Service]bool{}
	for _, svc := range routes {
		if !stopped[svc] {
			stopped[svc] = true
			svc.Stop()
		}
	}
	slog.Info("Router.Reset: all channels use the fallback service")
}

func (r *Router) inUse(svc Service) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.routes {
		if s == svc {
			return true
		}
	}
	return svc == r.fallback
}

// ServiceFor returns the service for a channel.
func (r *Router) ServiceFor(ch models.ChannelType) Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if svc, ok := r.routes[ch]; ok {
		return svc
	}
	return r.fallback
}

// Deliver sends body to the recipient over the channel's service.
func (r *Router) Deliver(ctx context.Context, ch models.ChannelType, to, body string) Result {
	return Deliver(ctx, r.ServiceFor(ch), to, body)
}

// Twilio returns the routed Twilio service, if any.
func (r *Router) Twilio() *TwilioService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range []models.ChannelType{models.ChannelWhatsApp, models.ChannelSMS} {
		if ts, ok := r.routes[ch].(*TwilioService); ok {
			return ts
		}
	}
	return nil
}

func (r *Router) servicesLocked() []Service {
	seen := map[Service]bool{r.fallback: true}
	out := []Service{r.fallback}
	for _, svc := range r.routes {
		if !seen[svc] {
			seen[svc] = true
			out = append(out, svc)
		}
	}
	return out
}

// Stop stops every service, waits for the reply forwarders and closes Responses.
func (r *Router) Stop() error {
	r.mu.Lock()
	services := r.servicesLocked()
	r.mu.Unlock()

	for _, svc := range services {
		if err := svc.Stop(); err != nil {
			slog.Warn("Router.Stop: service stop failed", "error", err)
		}
	}
	r.forwards.Wait()
	r.close()
	return nil
}
