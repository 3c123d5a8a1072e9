package chat

import (
	"log/slog"

	"github.com/omochice/realtime-chat/pkg/protocol"
	"github.com/samber/lo"
)

// Router fans typed events out to live clients. Delivery is fire-and-forget:
// each client is handed the frame independently and a failing client never
// stops delivery to the others.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

// NewRouter creates a Router resolving recipients through registry.
func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Resolve maps identities to their live clients.
func (r *Router) Resolve(identities []Identity) []*Client {
	return r.registry.Resolve(identities)
}

// EmitToIdentities delivers payload under event to the live clients of identities.
func (r *Router) EmitToIdentities(identities []Identity, event protocol.Event, payload any) int {
	return r.EmitTo(r.Resolve(identities), event, payload)
}

// EmitExcept delivers to the live clients of identities other than exclude.
func (r *Router) EmitExcept(identities []Identity, exclude *Client, event protocol.Event, payload any) int {
	targets := lo.Filter(r.Resolve(identities), func(c *Client, _ int) bool {
		return c != exclude
	})
	return r.EmitTo(targets, event, payload)
}

// Broadcast delivers to every live client.
func (r *Router) Broadcast(event protocol.Event, payload any) int {
	return r.EmitTo(r.registry.All(), event, payload)
}

// EmitTo delivers payload to already resolved targets and returns how many
// clients accepted the frame.
func (r *Router) EmitTo(targets []*Client, event protocol.Event, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := protocol.NewFrame(event, payload)
	if err != nil {
		r.log.Error("Dropping event", "event", event.String(), "error", err)
		return 0
	}

	delivered := 0
	for _, client := range targets {
		if err := client.Send(frame); err != nil {
			r.log.Warn("Delivery skipped",
				"event", event.String(),
				"client_id", client.ID,
				"user_id", string(client.Identity),
				"error", err)
			continue
		}
		delivered++
	}
	r.log.Debug("Event dispatched", "event", event.String(), "targets", len(targets), "delivered", delivered)
	return delivered
}

// Identities converts raw member ids from a payload.
func Identities(members []string) []Identity {
	return lo.Map(members, func(m string, _ int) Identity {
		return Identity(m)
	})
}
