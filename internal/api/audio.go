package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/layout"
)

// registerAudioRoutes registers the backend context and channel layout
// endpoints.
func (s *Server) registerAudioRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-context",
		Method:      http.MethodGet,
		Path:        "/api/context",
		Summary:     "Backend Context",
		Description: "Get backend limits of the default output device and the process-wide stream counters",
		Tags:        []string{"audio"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ContextResponse, error) {
		data := models.ContextData{
			BackendID:     s.backend.BackendID(),
			ActiveStreams: s.backend.State().ActiveStreams(),
		}
		if lat, ok := s.backend.State().GlobalLatency(); ok {
			data.GlobalLatency = lat
		}

		var errs []error
		var err error
		if data.MaxChannels, err = s.backend.MaxChannelCount(); err != nil {
			errs = append(errs, err)
		}
		if data.MinLatency, err = s.backend.MinLatency(); err != nil {
			errs = append(errs, err)
		}
		if data.PreferredSampleRate, err = s.backend.PreferredSampleRate(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			data.Error = err.Error()
		}
		return &models.ContextResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-layouts",
		Method:      http.MethodGet,
		Path:        "/api/layouts",
		Summary:     "List Layouts",
		Description: "List every named channel layout with its canonical hardware labels",
		Tags:        []string{"audio"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LayoutListResponse, error) {
		names := layout.Names()
		list := make([]models.LayoutData, 0, len(names))
		for _, name := range names {
			l, err := layout.Parse(name)
			if err != nil {
				continue
			}
			list = append(list, layoutData(l))
		}
		return &models.LayoutListResponse{Body: models.LayoutListData{Layouts: list}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "convert-layout",
		Method:      http.MethodPost,
		Path:        "/api/layout/convert",
		Summary:     "Convert Channel Labels",
		Description: "Map a hardware channel-label sequence to its canonical layout and back",
		Tags:        []string{"audio"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LayoutConvertRequest) (*models.LayoutResponse, error) {
		labels, err := parseLabels(input.Body.Labels)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return &models.LayoutResponse{Body: layoutData(layout.FromLabels(labels))}, nil
	})
}

// parseLabels resolves label names.
func parseLabels(names []string) ([]hal.ChannelLabel, error) {
	labels := make([]hal.ChannelLabel, 0, len(names))
	for _, name := range names {
		label, ok := hal.ParseChannelLabel(name)
		if !ok {
			return nil, fmt.Errorf("unknown channel label %q", name)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func layoutData(l layout.Layout) models.LayoutData {
	data := models.LayoutData{
		Layout:   l.String(),
		Channels: l.Channels(),
	}
	if layout.HasLabels(l) {
		for _, label := range layout.Labels(l) {
			data.Labels = append(data.Labels, label.String())
		}
	}
	return data
}
