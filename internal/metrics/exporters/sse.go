package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes per-stream counters on the event bus. A stream is
// published on the first tick that sees it and again whenever one of its
// counters moves.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   map[string]metrics.StreamMetrics
}

// NewSSEExporter creates an exporter that ticks once per second.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: time.Second,
		last:     make(map[string]metrics.StreamMetrics),
	}
}

// Start begins the export loop. Starting a running exporter does nothing.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the export loop and waits for it to exit.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishChanged()
		}
	}
}

// publishChanged runs on the export goroutine only.
func (s *SSEExporter) publishChanged() {
	current := metrics.GetAllStreamMetrics()
	for id := range s.last {
		if _, ok := current[id]; !ok {
			delete(s.last, id)
		}
	}
	for streamID, m := range current {
		if prev, ok := s.last[streamID]; ok && prev == *m {
			continue
		}
		s.last[streamID] = *m
		s.eventBus.Publish(NewStreamMetricsEvent(streamID, *m))
	}
}

// NewStreamMetricsEvent converts cached counters into the event sent to
// SSE clients.
func NewStreamMetricsEvent(streamID string, m metrics.StreamMetrics) events.StreamMetricsEvent {
	return events.StreamMetricsEvent{
		EventType:      "stream_metrics",
		StreamID:       streamID,
		FramesRendered: strconv.FormatUint(m.FramesRendered, 10),
		Reinits:        strconv.FormatUint(m.Reinits, 10),
		Coalesced:      strconv.FormatUint(m.Coalesced, 10),
	}
}

// GetEventTypes returns the event types of the metrics SSE endpoint.
func GetEventTypes() map[string]any {
	return map[string]any{
		"stream-metrics": events.StreamMetricsEvent{},
	}
}

// GetEventTypesForEndpoint returns the metrics event types an SSE endpoint
// carries besides its own.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	if endpoint == "events" {
		return GetEventTypes()
	}
	return map[string]any{}
}
