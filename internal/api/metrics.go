package api

import (
	"context"
	"maps"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/metrics/exporters"
)

func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Get Metrics",
		Description: "Context counters and per-stream frame, reinit and coalesced notification counters",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.MetricsResponse, error) {
		return &models.MetricsResponse{Body: s.metricsSnapshot()}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics/stream",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Sends the current counters of every stream, then each change as the exporter sees it",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeToChannel[events.StreamMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		current := metrics.GetAllStreamMetrics()
		for _, id := range slices.Sorted(maps.Keys(current)) {
			if err := send.Data(exporters.NewStreamMetricsEvent(id, *current[id])); err != nil {
				return
			}
		}
		forward(ctx, eventCh, send)
	})
}

func (s *Server) metricsSnapshot() models.MetricsData {
	state := s.backend.State()
	data := models.MetricsData{
		ActiveStreams: state.ActiveStreams(),
		Streams:       []models.StreamMetricsData{},
	}
	if frames, ok := state.GlobalLatency(); ok {
		data.GlobalLatency = &frames
	}

	current := metrics.GetAllStreamMetrics()
	for _, id := range slices.Sorted(maps.Keys(current)) {
		m := current[id]
		data.Streams = append(data.Streams, models.StreamMetricsData{
			StreamID:       id,
			FramesRendered: m.FramesRendered,
			Reinits:        m.Reinits,
			Coalesced:      m.Coalesced,
		})
	}
	return data
}
