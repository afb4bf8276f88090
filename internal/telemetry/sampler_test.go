package telemetry

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// scriptRunner plays back queued probe results and records the commands it
// was asked to run.
type scriptRunner struct {
	addr     string
	results  []sshx.Result
	errs     []error
	commands []string
}

func newScriptRunner(addr string) *scriptRunner {
	return &scriptRunner{addr: addr}
}

func (r *scriptRunner) queue(stdout string) {
	r.results = append(r.results, sshx.Result{Stdout: stdout})
	r.errs = append(r.errs, nil)
}

func (r *scriptRunner) queueErr(err error) {
	r.results = append(r.results, sshx.Result{})
	r.errs = append(r.errs, err)
}

func (r *scriptRunner) queueResult(result sshx.Result) {
	r.results = append(r.results, result)
	r.errs = append(r.errs, nil)
}

func (r *scriptRunner) Address() string {
	return r.addr
}

func (r *scriptRunner) Execute(_ context.Context, command string) (sshx.Result, error) {
	r.commands = append(r.commands, command)
	if len(r.results) == 0 {
		return sshx.Result{}, fmt.Errorf("no scripted result for %q", command)
	}
	result, err := r.results[0], r.errs[0]
	r.results, r.errs = r.results[1:], r.errs[1:]
	return result, err
}

// batchOutput joins sections the way the remote shell does.
func batchOutput(sections ...string) string {
	return strings.Join(sections, "\n"+outputSeparator+"\n") + "\n"
}

const psMemFixture = `    PID COMMAND         %CPU %MEM
   1234 chromium        45.3  8.1
    999 influxd          1.2  6.5`

// Second-pass counters: 1000 total jiffies on the aggregate with 200 idle,
// 250 per core with 50 idle, so every CPU figure lands on 80%.
const statFixtureNext = `cpu  1400 0 1400 8200 0 0 0 0 0 0
cpu0 350 0 350 2050 0 0 0 0 0 0
cpu1 350 0 350 2050 0 0 0 0 0 0
cpu2 350 0 350 2050 0 0 0 0 0 0
cpu3 350 0 350 2050 0 0 0 0 0 0`

// Second-pass byte counters: +1024000 rx and +512000 tx over the baseline,
// so a 2s gap reads as 500 and 250 KB/s.
const netDevFixtureNext = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 1000000    1000    0    0    0     0          0         0  1000000    1000    0    0    0     0       0          0
  eth0: 11264000   9500    0    0    0     0          0         0  5632000    4500    0    0    0     0       0          0
 wlan0: 2048000    2000    0    0    0     0          0         0  1024000    1000    0    0    0     0       0          0`

func fullProbeOutput(stat, netdev string) string {
	return batchOutput(
		stat,
		"0.52 0.58 0.59 1/189 12345",
		meminfoFixture,
		netdev,
		"86400.25 123456.78",
		"4",
		psCPUFixture,
		psMemFixture,
		"189",
		dfFixture,
		"temp=48.3'C",
	)
}

func newTestSampler(clk *testclock.Clock) *Sampler {
	return NewSampler(Config{Interval: 2 * time.Second, Clock: clk})
}

func TestSampleFirstPass(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(fullProbeOutput(statFixture, netDevFixture))

	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)
	require.NoError(t, snap.DegradedErr())

	assert.Equal(t, 4, snap.CPUCores)
	assert.Zero(t, snap.CPUPercent)
	assert.Equal(t, []float64{0, 0, 0, 0}, snap.CPUPerCore)

	assert.InDelta(t, 0.52, snap.Load1, 0.001)
	assert.InDelta(t, 0.58, snap.Load5, 0.001)
	assert.InDelta(t, 0.59, snap.Load15, 0.001)

	assert.Equal(t, int64(4000), snap.MemTotalMB)
	assert.Equal(t, int64(2000), snap.MemUsedMB)
	assert.Equal(t, int64(2000), snap.MemAvailableMB)
	assert.Equal(t, int64(1000), snap.MemFreeMB)
	assert.Equal(t, int64(500), snap.MemCachedMB)
	assert.Equal(t, int64(200), snap.MemBuffersMB)
	assert.InDelta(t, 50.0, snap.MemPercent, 0.001)
	assert.Equal(t, int64(1000), snap.SwapTotalMB)
	assert.Equal(t, int64(250), snap.SwapUsedMB)
	assert.Equal(t, int64(750), snap.SwapFreeMB)

	// No baseline yet: rates are zero, not an error.
	assert.Zero(t, snap.NetRxKBps)
	assert.Zero(t, snap.NetTxKBps)

	assert.Equal(t, int64(86400), snap.UptimeSeconds)
	assert.Equal(t, 189, snap.ProcessCount)

	require.Len(t, snap.TopCPU, 3)
	assert.Equal(t, "chromium", snap.TopCPU[0].Name)
	require.Len(t, snap.TopMem, 2)
	assert.Equal(t, "influxd", snap.TopMem[1].Name)

	assert.InDelta(t, 29.05, snap.DiskTotalGB, 0.001)
	assert.InDelta(t, 8.49, snap.DiskUsedGB, 0.001)
	assert.InDelta(t, 20.56, snap.DiskFreeGB, 0.001)
	assert.InDelta(t, 31.0, snap.DiskPercent, 0.001)
	assert.Len(t, snap.DiskPartitions, 3)

	require.NotNil(t, snap.TempC)
	assert.InDelta(t, 48.3, *snap.TempC, 0.001)

	assert.Equal(t, clk.Now(), snap.Timestamp)
}

func TestSampleComputesDeltas(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(fullProbeOutput(statFixture, netDevFixture))
	runner.queue(fullProbeOutput(statFixtureNext, netDevFixtureNext))

	_, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	assert.InDelta(t, 80.0, snap.CPUPercent, 0.001)
	require.Len(t, snap.CPUPerCore, 4)
	for _, core := range snap.CPUPerCore {
		assert.InDelta(t, 80.0, core, 0.001)
	}
	assert.InDelta(t, 500.0, snap.NetRxKBps, 0.001)
	assert.InDelta(t, 250.0, snap.NetTxKBps, 0.001)
}

func TestSampleStaleBaselineResets(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(fullProbeOutput(statFixture, netDevFixture))
	runner.queue(fullProbeOutput(statFixtureNext, netDevFixtureNext))

	_, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	// More than twice the interval without a sample: the old counters
	// would turn the gap into a fake spike, so they are discarded.
	clk.Advance(5 * time.Second)
	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	assert.Zero(t, snap.CPUPercent)
	assert.Zero(t, snap.NetRxKBps)
	assert.Zero(t, snap.NetTxKBps)
}

func TestSampleBaselinesArePerHost(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)

	first := newScriptRunner("192.168.4.20")
	first.queue(fullProbeOutput(statFixture, netDevFixture))
	_, err := sampler.Sample(context.Background(), first)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	other := newScriptRunner("192.168.4.21")
	other.queue(fullProbeOutput(statFixtureNext, netDevFixtureNext))
	snap, err := sampler.Sample(context.Background(), other)
	require.NoError(t, err)

	// A different host must not inherit the first host's counters.
	assert.Zero(t, snap.CPUPercent)
	assert.Zero(t, snap.NetRxKBps)
}

func TestSampleForgetDropsBaseline(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(fullProbeOutput(statFixture, netDevFixture))
	runner.queue(fullProbeOutput(statFixtureNext, netDevFixtureNext))

	_, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	sampler.Forget("192.168.4.20")

	clk.Advance(2 * time.Second)
	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)
	assert.Zero(t, snap.CPUPercent)
}

func TestSampleDegradedSections(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(batchOutput(
		"", // no /proc/stat
		"0.52 0.58 0.59 1/189 12345",
		"garbage", // unusable meminfo
		netDevFixture,
		"86400.25 123456.78",
		"4",
		psCPUFixture,
		psMemFixture,
		"189",
		dfFixture,
		"vchi error", // sensor present but talking nonsense
	))

	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	assert.Equal(t, []string{"cpu", "memory", "temperature"}, snap.Degraded)

	// The rest of the snapshot still came through.
	assert.Equal(t, 4, snap.CPUCores)
	assert.InDelta(t, 0.52, snap.Load1, 0.001)
	assert.Equal(t, int64(86400), snap.UptimeSeconds)
	assert.Len(t, snap.TopCPU, 3)

	derr := snap.DegradedErr()
	require.Error(t, derr)
	assert.True(t, errors.IsCode(derr, errors.ErrParse))
	assert.Contains(t, derr.Error(), "cpu, memory, temperature")
}

func TestSampleCoreCountFallsBackToNproc(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(batchOutput(
		"", "", "", "", "", "4", "", "", "", "", "",
	))

	snap, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.CPUCores)
	assert.Contains(t, snap.Degraded, "cpu")
	assert.NotContains(t, snap.Degraded, "cores")
}

func TestSampleEmptyOutput(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("pi4.local")
	runner.queue("   \n")

	_, err := sampler.Sample(context.Background(), runner)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrParse))
	assert.Contains(t, err.Error(), "pi4.local")
}

func TestSampleTransportErrorPassesThrough(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queueErr(errors.New(errors.ErrConnLost, "Connection to 192.168.4.20 was lost", ""))

	_, err := sampler.Sample(context.Background(), runner)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnLost))
}

func TestSampleIssuesOneBatchedCommand(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	sampler := newTestSampler(clk)
	runner := newScriptRunner("192.168.4.20")
	runner.queue(fullProbeOutput(statFixture, netDevFixture))

	_, err := sampler.Sample(context.Background(), runner)
	require.NoError(t, err)

	require.Len(t, runner.commands, 1)
	command := runner.commands[0]
	assert.Contains(t, command, "/proc/stat")
	assert.Contains(t, command, "head -n 6")
	assert.Contains(t, command, "--sort=-%mem")
	assert.Equal(t, sectionCount-1, strings.Count(command, `echo "`+outputSeparator+`"`))
}
