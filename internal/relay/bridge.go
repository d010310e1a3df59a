package relay

import (
	"context"

	"fleetrelay/internal/audit"
	"fleetrelay/internal/auth"
	"fleetrelay/internal/metrics"
)

// ChangeEvent is one row-level change from the backing store's
// change-notification feed.
type ChangeEvent struct {
	Table     string         `json:"table"`
	EventType string         `json:"eventType"` // INSERT, UPDATE, DELETE
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
}

// EventSource is a change-notification feed scoped to one organization. The
// returned channel closes when the subscription ends. The feed has no
// backpressure signal back to the originator: sources drop independently
// when the relay cannot keep up.
type EventSource interface {
	Subscribe(ctx context.Context, orgID string) (<-chan ChangeEvent, error)
}

// Bridge forwards change events from an EventSource into the registry as
// db_change messages on the owning organization's channel.
type Bridge struct {
	src      EventSource
	registry *Registry
	audit    *audit.Logger
}

func NewBridge(src EventSource, reg *Registry, log *audit.Logger) *Bridge {
	if log == nil {
		log = audit.Nop()
	}
	return &Bridge{src: src, registry: reg, audit: log}
}

// Watch subscribes to one organization's feed and relays until the context
// is canceled or the source closes the channel.
func (b *Bridge) Watch(ctx context.Context, orgID string) error {
	events, err := b.src.Subscribe(ctx, orgID)
	if err != nil {
		return err
	}
	channel := auth.ChannelForOrg(orgID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.forward(channel, orgID, evt)
		}
	}
}

// Run starts one watcher per organization and blocks until the context is
// canceled. Watcher errors are logged, never fatal.
func (b *Bridge) Run(ctx context.Context, orgIDs []string) {
	for _, org := range orgIDs {
		go func(org string) {
			if err := b.Watch(ctx, org); err != nil && ctx.Err() == nil {
				b.audit.Error("bridge.watch", err)
			}
		}(org)
	}
	<-ctx.Done()
}

func (b *Bridge) forward(channel, orgID string, evt ChangeEvent) {
	payload := map[string]any{
		"table":     evt.Table,
		"eventType": evt.EventType,
	}
	if evt.New != nil {
		payload["new"] = evt.New
	}
	if evt.Old != nil {
		payload["old"] = evt.Old
	}
	b.registry.Broadcast(channel, Envelope{Type: "db_change", Channel: channel, Payload: payload})
	metrics.ChangeEvents.WithLabelValues(evt.Table).Inc()
	b.audit.ChangeRelayed(orgID, evt.Table, evt.EventType)
}
