package realtime

import "context"

// Dispatcher turns an identity-addressed event into an attempted delivery
// over presence. Delivery is fire-and-forget, at most once: every miss
// (unresolvable identity, no live connection, slow consumer) is swallowed.
type Dispatcher struct {
	registry *Registry
	resolver *Resolver
}

func NewDispatcher(registry *Registry, resolver *Resolver) *Dispatcher {
	return &Dispatcher{registry: registry, resolver: resolver}
}

func (d *Dispatcher) Notify(ctx context.Context, identity string, ev Event) {
	key, ok := d.resolver.Resolve(ctx, identity)
	if !ok {
		return
	}
	conn, ok := d.registry.Lookup(key)
	if !ok {
		return
	}
	conn.deliver(ev)
}
