package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/metrics/exporters"
)

// eventTypes maps SSE event names to payloads on /api/events.
func eventTypes() map[string]any {
	types := map[string]any{
		"device-collection-changed": events.DeviceCollectionChangedEvent{},
		"default-device-changed":    events.DefaultDeviceChangedEvent{},
		"stream-created":            events.StreamCreatedEvent{},
		"stream-destroyed":          events.StreamDestroyedEvent{},
		"stream-state-changed":      events.StreamStateChangedEvent{},
		"stream-device-changed":     events.StreamDeviceChangedEvent{},
		"stream-reinit":             events.StreamReinitEvent{},
	}
	maps.Copy(types, exporters.GetEventTypesForEndpoint("events"))
	return types
}

// registerSSERoutes registers the device and stream event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time device and stream events: collection and default changes, stream lifecycle and device switches",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.DeviceCollectionChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DefaultDeviceChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamCreatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamDestroyedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamDeviceChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamReinitEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		forward(ctx, eventCh, send)
	})
}

// forward sends events until the client goes away or a write fails.
func forward(ctx context.Context, ch <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := send.Data(ev); err != nil {
				return
			}
		}
	}
}
