package telemetry

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// MetricsSnapshot is one normalized reading of a host's vitals. Field names
// mirror the JSON the server emits, so a dashboard can consume a snapshot
// without a translation layer. Percentages are clamped to [0,100]; rate
// fields are zero on the first sample for a host (no baseline yet).
type MetricsSnapshot struct {
	CPUPercent float64   `json:"cpu_percent"`
	CPUCores   int       `json:"cpu_cores"`
	CPUPerCore []float64 `json:"cpu_per_core,omitempty"`

	MemTotalMB     int64   `json:"mem_total_mb"`
	MemUsedMB      int64   `json:"mem_used_mb"`
	MemAvailableMB int64   `json:"mem_available_mb"`
	MemFreeMB      int64   `json:"mem_free_mb"`
	MemCachedMB    int64   `json:"mem_cached_mb"`
	MemBuffersMB   int64   `json:"mem_buffers_mb"`
	MemPercent     float64 `json:"mem_percent"`

	SwapTotalMB int64 `json:"swap_total_mb"`
	SwapUsedMB  int64 `json:"swap_used_mb"`
	SwapFreeMB  int64 `json:"swap_free_mb"`

	DiskTotalGB    float64      `json:"disk_total_gb"`
	DiskUsedGB     float64      `json:"disk_used_gb"`
	DiskFreeGB     float64      `json:"disk_free_gb"`
	DiskPercent    float64      `json:"disk_percent"`
	DiskPartitions []MountUsage `json:"disk_partitions,omitempty"`

	NetRxKBps float64 `json:"net_rx_kbps"`
	NetTxKBps float64 `json:"net_tx_kbps"`

	ProcessCount int           `json:"process_count"`
	TopCPU       []ProcessStat `json:"top_cpu,omitempty"`
	TopMem       []ProcessStat `json:"top_mem,omitempty"`

	TempC *float64 `json:"temp_c,omitempty"`

	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`

	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`

	// Degraded lists the metric groups whose probe output could not be
	// parsed on this pass. The rest of the snapshot is still valid.
	Degraded []string `json:"degraded,omitempty"`
}

// DegradedErr explains which metric groups are missing from the snapshot.
// Returns nil when the snapshot is complete.
func (m *MetricsSnapshot) DegradedErr() error {
	if len(m.Degraded) == 0 {
		return nil
	}
	return errors.New(errors.ErrParse,
		fmt.Sprintf("Some metrics couldn't be read: %s", strings.Join(m.Degraded, ", ")),
		"The host may be missing /proc entries or the ps/df utilities.")
}

// MountUsage describes one mounted filesystem from the df table.
type MountUsage struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Fstype     string  `json:"fstype"`
	TotalGB    float64 `json:"total_gb"`
	UsedGB     float64 `json:"used_gb"`
	Percent    float64 `json:"percent"`
}

// ProcessStat is one row of a top-N process ranking.
type ProcessStat struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// HostInfo is the static identity of a host, collected once rather than
// sampled. Fields the host doesn't expose are left empty.
type HostInfo struct {
	Hostname      string `json:"hostname"`
	Address       string `json:"ip"`
	Arch          string `json:"arch"`
	Kernel        string `json:"kernel"`
	OS            string `json:"os"`
	Model         string `json:"model,omitempty"`
	RaspberryPi   bool   `json:"is_raspberry_pi"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ServiceStatus is the parsed state of one systemd unit.
type ServiceStatus struct {
	Name        string `json:"name"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
	Result      string `json:"result,omitempty"`
	Description string `json:"description,omitempty"`
}

// Running reports whether the unit is actively running.
func (s ServiceStatus) Running() bool {
	return s.ActiveState == "active"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func bytesToMB(v int64) int64 {
	return v / (1024 * 1024)
}

func bytesToGB(v int64) float64 {
	return round2(float64(v) / (1024 * 1024 * 1024))
}
