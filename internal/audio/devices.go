package audio

import (
	"encoding/hex"

	"github.com/gen2brain/malgo"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// Devices returns the available audio capture devices. Enumeration failures
// yield an empty list rather than an error; device selection is advisory and
// the capture source performs its own resolution at start.
func Devices() []types.Device {
	ctx, err := malgo.InitContext(defaultBackend(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil
	}
	defer uninitContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil
	}

	devices := make([]types.Device, 0, len(infos))
	for i := range infos {
		devices = append(devices, types.Device{
			ID:      decodeDeviceID(infos[i].ID.String()),
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault != 0,
		})
	}

	return devices
}

// decodeDeviceID converts miniaudio's hex-encoded device ID to a readable
// string, falling back to the raw form if it is not valid hex.
func decodeDeviceID(hexID string) string {
	decoded, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	return string(decoded)
}
