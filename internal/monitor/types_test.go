package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceStatusString(t *testing.T) {
	tests := []struct {
		status DeviceStatus
		want   string
	}{
		{StatusWaiting, "waiting"},
		{StatusOnline, "online"},
		{StatusDegraded, "degraded"},
		{StatusOffline, "offline"},
		{DeviceStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestSortOrderString(t *testing.T) {
	tests := []struct {
		order SortOrder
		want  string
	}{
		{SortByDefault, "status"},
		{SortByName, "name"},
		{SortByCPU, "CPU"},
		{SortByMemory, "memory"},
		{SortByTemp, "temp"},
		{SortOrder(99), "status"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.order.String())
	}
}

func TestSortOrderNext(t *testing.T) {
	assert.Equal(t, SortByName, SortByDefault.Next())
	assert.Equal(t, SortByCPU, SortByName.Next())
	assert.Equal(t, SortByMemory, SortByCPU.Next())
	assert.Equal(t, SortByTemp, SortByMemory.Next())
	assert.Equal(t, SortByDefault, SortByTemp.Next(), "cycle wraps around")
}
