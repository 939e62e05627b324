package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/device"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Enumerate audio devices. Output devices come first, then input devices.",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *models.DeviceListInput) (*models.DeviceListResponse, error) {
		coll, err := s.backend.EnumerateDevices(ctx, input.Type.Type())
		if err != nil {
			s.logger.Warn("Device enumeration failed", "type", input.Type, "error", err)
			return nil, huma.Error500InternalServerError("Failed to enumerate devices", err)
		}
		defer s.backend.DestroyDeviceCollection(coll)

		list := make([]models.DeviceInfo, 0, coll.Count)
		for _, info := range coll.Devices {
			list = append(list, models.NewDeviceInfo(info))
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{
				Devices: list,
				Count:   len(list),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-default-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices/default",
		Summary:     "Default Devices",
		Description: "Get the current default input and output device handles",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.DefaultDevicesResponse, error) {
		reg := s.backend.Registry()
		return &models.DefaultDevicesResponse{
			Body: models.DefaultDevicesData{
				Output: uint32(reg.DefaultDeviceID(device.TypeOutput)),
				Input:  uint32(reg.DefaultDeviceID(device.TypeInput)),
			},
		}, nil
	})
}
