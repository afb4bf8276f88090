package monitor

import (
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// DefaultHistorySize is the default number of snapshots retained per device.
const DefaultHistorySize = 60

// History keeps per-device ring buffers of the series the cards graph.
// It is only touched from the Update loop, so it carries no lock.
type History struct {
	size    int
	devices map[string]*deviceHistory
}

// deviceHistory holds the ring buffers for a single device.
type deviceHistory struct {
	cpu  *ringBuffer
	mem  *ringBuffer
	rx   *ringBuffer
	tx   *ringBuffer
	temp *ringBuffer // nil until the device reports a temperature
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates a history tracker with the given buffer size.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		devices: make(map[string]*deviceHistory),
	}
}

// Push records one snapshot's graphable series for a device. The sampler
// already turned network counters into rates, so values go in as-is.
func (h *History) Push(id string, snap *telemetry.MetricsSnapshot) {
	if snap == nil {
		return
	}

	hist, ok := h.devices[id]
	if !ok {
		hist = &deviceHistory{
			cpu: newRingBuffer(h.size),
			mem: newRingBuffer(h.size),
			rx:  newRingBuffer(h.size),
			tx:  newRingBuffer(h.size),
		}
		h.devices[id] = hist
	}

	hist.cpu.push(snap.CPUPercent)
	hist.mem.push(snap.MemPercent)
	hist.rx.push(snap.NetRxKBps)
	hist.tx.push(snap.NetTxKBps)

	if snap.TempC != nil {
		if hist.temp == nil {
			hist.temp = newRingBuffer(h.size)
		}
		hist.temp.push(*snap.TempC)
	}
}

// CPU returns up to count CPU percentage values, oldest first.
func (h *History) CPU(id string, count int) []float64 {
	if hist, ok := h.devices[id]; ok {
		return hist.cpu.last(count)
	}
	return nil
}

// Mem returns up to count memory percentage values, oldest first.
func (h *History) Mem(id string, count int) []float64 {
	if hist, ok := h.devices[id]; ok {
		return hist.mem.last(count)
	}
	return nil
}

// Net returns up to count receive and transmit rates in KB/s, oldest first.
func (h *History) Net(id string, count int) (rx, tx []float64) {
	if hist, ok := h.devices[id]; ok {
		return hist.rx.last(count), hist.tx.last(count)
	}
	return nil, nil
}

// Temp returns up to count temperature values, or nil if the device has
// never reported one.
func (h *History) Temp(id string, count int) []float64 {
	if hist, ok := h.devices[id]; ok && hist.temp != nil {
		return hist.temp.last(count)
	}
	return nil
}

// Count returns how many snapshots have been recorded for a device.
func (h *History) Count(id string) int {
	if hist, ok := h.devices[id]; ok {
		return hist.cpu.count
	}
	return 0
}

// Clear drops all history for a device. Used when a stream ends so a
// reconnected device doesn't graph a flatline gap as data.
func (h *History) Clear(id string) {
	delete(h.devices, id)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// last returns the most recent count values in chronological order.
func (r *ringBuffer) last(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]float64, count)
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
