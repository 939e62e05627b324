package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/streams"
)

// registerStreamRoutes registers all stream-related endpoints.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List every stream definition with its runtime state",
		Tags:        []string{"streams"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.StreamListResponse, error) {
		list := s.streams.List()
		return &models.StreamListResponse{
			Body: models.StreamListData{
				Streams: list,
				Count:   len(list),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-stream",
		Method:        http.MethodPost,
		Path:          "/api/streams",
		Summary:       "Create Stream",
		Description:   "Open a stream on the requested devices and save its definition",
		Tags:          []string{"streams"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 409, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.StreamRequest) (*models.StreamResponse, error) {
		st, err := s.streams.Create(ctx, input.Body.Spec())
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		return &models.StreamResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Get Stream",
		Description: "Get the definition and runtime state of a stream",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.StreamIDInput) (*models.StreamResponse, error) {
		st, err := s.streams.Get(input.StreamID)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		return &models.StreamResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-stream",
		Method:        http.MethodDelete,
		Path:          "/api/streams/{stream_id}",
		Summary:       "Delete Stream",
		Description:   "Destroy a stream and remove its definition",
		Tags:          []string{"streams"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.StreamIDInput) (*struct{}, error) {
		if err := s.streams.Delete(input.StreamID); err != nil {
			return nil, s.mapStreamError(err)
		}
		return nil, nil
	})

	s.registerStreamAction("start-stream", "start", "Start Stream", "Start rendering a stream", s.streams.Start)
	s.registerStreamAction("stop-stream", "stop", "Stop Stream", "Stop rendering a stream", s.streams.Stop)
	s.registerStreamAction("reset-stream-device", "reset-device", "Reset Stream Device",
		"Rebind every side of a stream to the default device", s.streams.ResetDevice)

	huma.Register(s.api, huma.Operation{
		OperationID: "set-stream-volume",
		Method:      http.MethodPut,
		Path:        "/api/streams/{stream_id}/volume",
		Summary:     "Set Stream Volume",
		Description: "Change and persist the output gain of a stream",
		Tags:        []string{"streams"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.VolumeRequest) (*models.StreamResponse, error) {
		st, err := s.streams.SetVolume(input.StreamID, input.Body.Volume)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		return &models.StreamResponse{Body: st}, nil
	})
}

func (s *Server) registerStreamAction(id, action, summary, desc string, fn func(string) (streams.Status, error)) {
	huma.Register(s.api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/" + action,
		Summary:     summary,
		Description: desc,
		Tags:        []string{"streams"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.StreamIDInput) (*models.StreamResponse, error) {
		st, err := fn(input.StreamID)
		if err != nil {
			return nil, s.mapStreamError(err)
		}
		return &models.StreamResponse{Body: st}, nil
	})
}

// mapStreamError maps service and backend errors to HTTP errors.
func (s *Server) mapStreamError(err error) error {
	var streamErr *streams.StreamError
	if errors.As(err, &streamErr) {
		switch streamErr.Code {
		case streams.ErrCodeStreamNotFound, streams.ErrCodeDeviceNotFound:
			return huma.Error404NotFound(streamErr.Message, err)
		case streams.ErrCodeStreamExists:
			return huma.Error409Conflict(streamErr.Message, err)
		case streams.ErrCodeInvalidParams:
			return huma.Error400BadRequest(streamErr.Message, err)
		default:
			return huma.Error500InternalServerError(streamErr.Message, err)
		}
	}

	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		switch backendErr.Code {
		case backend.ErrCodeReinitInProgress, backend.ErrCodeInvalidState, backend.ErrCodeStreamExists:
			return huma.Error409Conflict(backendErr.Message, err)
		case backend.ErrCodeInvalidParams:
			return huma.Error400BadRequest(backendErr.Message, err)
		case backend.ErrCodeNoDevice, backend.ErrCodeDeviceDisconnected:
			return huma.Error404NotFound(backendErr.Message, err)
		}
	}

	s.logger.Error("Stream operation failed", "error", err)
	return huma.Error500InternalServerError("internal server error", err)
}
