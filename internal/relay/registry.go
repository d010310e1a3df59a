package relay

import (
	"sync"
	"time"

	"fleetrelay/internal/audit"
	"fleetrelay/internal/metrics"
)

// Registry maps channel names to the set of currently subscribed connections.
// It is the only state shared across connections; every access goes through
// the mutex. A connection belongs to at most one channel at a time.
type Registry struct {
	mu    sync.Mutex
	subs  map[string]map[*Conn]struct{}
	audit *audit.Logger
}

func NewRegistry(a *audit.Logger) *Registry {
	if a == nil {
		a = audit.Nop()
	}
	return &Registry{subs: map[string]map[*Conn]struct{}{}, audit: a}
}

func (r *Registry) Subscribe(channel string, c *Conn) {
	r.mu.Lock()
	if r.subs[channel] == nil {
		r.subs[channel] = map[*Conn]struct{}{}
	}
	r.subs[channel][c] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) Unsubscribe(channel string, c *Conn) {
	r.mu.Lock()
	if m := r.subs[channel]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(r.subs, channel)
		}
	}
	r.mu.Unlock()
}

// Count returns the number of subscribers on a channel.
func (r *Registry) Count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[channel])
}

// Broadcast fans an envelope out to every connection currently subscribed to
// the channel. Delivery is at-most-once per subscriber per call: a full or
// closed send queue drops the message for that subscriber only.
func (r *Registry) Broadcast(channel string, env Envelope) (delivered, dropped int) {
	data := env.encode()
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.subs[channel]))
	for c := range r.subs[channel] {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		if c.enqueue(data) {
			delivered++
		} else {
			dropped++
		}
	}
	metrics.Broadcasts.WithLabelValues("delivered").Add(float64(delivered))
	if dropped > 0 {
		metrics.Broadcasts.WithLabelValues("dropped").Add(float64(dropped))
	}
	r.audit.Broadcast(channel, env.Type, delivered, dropped)
	return delivered, dropped
}

// Dispatch relays an application broadcast to a channel, stamping the sender
// identity and a send timestamp before fan-out.
func (r *Registry) Dispatch(channel, senderID string, payload map[string]any) {
	stamped := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped["senderId"] = senderID
	stamped["ts"] = time.Now().UTC().Format(time.RFC3339)
	r.Broadcast(channel, Envelope{Type: "broadcast", Channel: channel, Payload: stamped})
}
