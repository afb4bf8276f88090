package registry

import (
	"testing"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	reg := FromConfig(fleetConfig())

	tests := []struct {
		name         string
		deviceID     string
		isController bool
		want         Decision
	}{
		{
			name:         "controller forwards to a device daemon",
			deviceID:     "gateway",
			isController: true,
			want:         Decision{Forward: true, BaseURL: "http://10.0.0.1:8443"},
		},
		{
			name:         "device daemon executes its own requests",
			deviceID:     "gateway",
			isController: false,
			want:         Decision{},
		},
		{
			name:         "plain ssh device always executes locally",
			deviceID:     "pi4",
			isController: true,
			want:         Decision{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Route(reg, tt.deviceID, tt.isController)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouteUnknownDevice(t *testing.T) {
	reg := FromConfig(fleetConfig())

	_, err := Route(reg, "ghost", true)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}
