package webhook

import (
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// Adapter translates one provider's raw webhook payload into an
// InboundMessage. Adapt returns ok=false when the payload should be
// ignored (wrong event type, self-sent, empty body, unusable sender id).
type Adapter interface {
	Name() string
	CanHandle(payload []byte) bool
	Adapt(payload []byte) (*InboundMessage, bool)
}

// Registry dispatches a raw payload to the first adapter whose CanHandle
// matches, in registration order.
type Registry struct {
	log      *logger.Logger
	adapters []Adapter
}

func NewRegistry(log *logger.Logger, adapters ...Adapter) *Registry {
	return &Registry{
		log:      log.With("service", "WebhookRegistry"),
		adapters: adapters,
	}
}

// Adapt normalizes payload, or returns ok=false when no adapter claims it
// or the claiming adapter decides it should be ignored.
func (r *Registry) Adapt(payload []byte) (*InboundMessage, bool) {
	for _, a := range r.adapters {
		if !a.CanHandle(payload) {
			continue
		}
		msg, ok := a.Adapt(payload)
		if !ok {
			r.log.Debug("Webhook payload ignored", "adapter", a.Name())
			return nil, false
		}
		return msg, true
	}
	r.log.Debug("Webhook payload matched no adapter")
	return nil, false
}
