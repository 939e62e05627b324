package streams

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/hal"
)

// ResolveDevice maps a device reference to a handle for one direction.
// Empty and "default" follow the default device, "system" follows it as
// the system default. Numbers are handles; other strings match a device
// UID or name, case-insensitively.
func ResolveDevice(ctx context.Context, bc *backend.Context, ref string, typ device.Type) (hal.ObjectID, error) {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "", "default":
		return hal.ObjectUnknown, nil
	case "system":
		return hal.SystemObject, nil
	}

	if n, err := strconv.ParseUint(ref, 0, 32); err == nil {
		id := hal.ObjectID(n)
		ids, err := bc.Registry().DevicesOfType(ctx, typ)
		if err != nil {
			return hal.ObjectUnknown, err
		}
		if !slices.Contains(ids, id) {
			return hal.ObjectUnknown, NewStreamError(ErrCodeDeviceNotFound, fmt.Sprintf("no %s device %s", typ, id), nil)
		}
		return id, nil
	}

	coll, err := bc.EnumerateDevices(ctx, typ)
	if err != nil {
		return hal.ObjectUnknown, err
	}
	defer bc.DestroyDeviceCollection(coll)

	for _, info := range coll.Devices {
		if strings.EqualFold(info.DeviceID, ref) {
			return info.ID, nil
		}
	}
	for _, info := range coll.Devices {
		if strings.EqualFold(info.FriendlyName, ref) {
			return info.ID, nil
		}
	}
	return hal.ObjectUnknown, NewStreamError(ErrCodeDeviceNotFound, fmt.Sprintf("no %s device matches %q", typ, ref), nil)
}
