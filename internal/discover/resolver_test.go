package discover

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
)

// drain pulls every candidate address out of a sequence.
func drain(seq *CandidateSeq) []string {
	var addrs []string
	for {
		c, ok := seq.Next()
		if !ok {
			return addrs
		}
		addrs = append(addrs, c.Address)
	}
}

func newTestResolver() *Resolver {
	r := NewResolver()
	r.SetLogger(logger.Noop())
	return r
}

func TestResolveFixed(t *testing.T) {
	r := newTestResolver()

	seq, err := r.Resolve(context.Background(), TargetSpec{Fixed: "192.168.4.20"})
	require.NoError(t, err)

	c, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, "192.168.4.20", c.Address)
	assert.Equal(t, SourceFixed, c.Source)

	_, ok = seq.Next()
	assert.False(t, ok)
}

func TestResolveHints(t *testing.T) {
	r := newTestResolver()

	var looked []string
	r.SetLookup(func(ctx context.Context, host string) ([]net.IP, error) {
		looked = append(looked, host)
		switch host {
		case "pi-garage.local":
			return []net.IP{net.ParseIP("192.168.4.20")}, nil
		case "pi-attic.local":
			return nil, fmt.Errorf("no such host")
		case "pi-shed.local":
			return []net.IP{net.ParseIP("192.168.4.22")}, nil
		}
		return nil, fmt.Errorf("unexpected lookup %q", host)
	})

	spec := TargetSpec{Hints: []string{"pi-garage.local", "pi-attic.local", "10.0.0.9", "pi-shed.local"}}
	seq, err := r.Resolve(context.Background(), spec)
	require.NoError(t, err)

	// The dead hint is skipped, the literal address never hits DNS, and
	// hint order is preserved.
	assert.Equal(t, []string{"192.168.4.20", "10.0.0.9", "192.168.4.22"}, drain(seq))
	assert.Equal(t, []string{"pi-garage.local", "pi-attic.local", "pi-shed.local"}, looked)
}

func TestResolveDefaultHints(t *testing.T) {
	r := newTestResolver()
	r.SetLookup(func(ctx context.Context, host string) ([]net.IP, error) {
		if host == "raspberrypi.local" {
			return []net.IP{net.ParseIP("192.168.4.30")}, nil
		}
		return nil, fmt.Errorf("no such host")
	})

	seq, err := r.Resolve(context.Background(), TargetSpec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.4.30"}, drain(seq))
}

func TestResolveRejectsMixedSpec(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), TargetSpec{
		Fixed:  "192.168.4.20",
		Subnet: "192.168.4.0/24",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestResolveCachedAddressFirst(t *testing.T) {
	r := newTestResolver()
	cache := NewLastGood(time.Minute, testclock.NewClock(time.Now()))
	cache.Put("garage", "192.168.4.77")
	r.SetCache(cache)

	seq, err := r.Resolve(context.Background(), TargetSpec{Key: "garage", Fixed: "192.168.4.20"})
	require.NoError(t, err)

	assert.Equal(t, []string{"192.168.4.77", "192.168.4.20"}, drain(seq))

	seq.Reset()
	c, _ := seq.Next()
	assert.Equal(t, SourceCached, c.Source)
}

func TestResolveSubnet(t *testing.T) {
	r := newTestResolver()

	seq, err := r.Resolve(context.Background(), TargetSpec{Subnet: "192.0.2.0/28"})
	require.NoError(t, err)

	addrs := drain(seq)
	// A /28 has 16 addresses; network and broadcast are skipped.
	require.Len(t, addrs, 14)
	assert.Equal(t, "192.0.2.1", addrs[0])
	assert.Equal(t, "192.0.2.14", addrs[13])
}

func TestResolveSubnetSmallBlocks(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name string
		cidr string
		want []string
	}{
		{
			name: "slash 30",
			cidr: "192.0.2.0/30",
			want: []string{"192.0.2.1", "192.0.2.2"},
		},
		{
			name: "slash 31 keeps both",
			cidr: "192.0.2.0/31",
			want: []string{"192.0.2.0", "192.0.2.1"},
		},
		{
			name: "slash 32 single host",
			cidr: "192.0.2.7/32",
			want: []string{"192.0.2.7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := r.Resolve(context.Background(), TargetSpec{Subnet: tt.cidr})
			require.NoError(t, err)
			assert.Equal(t, tt.want, drain(seq))
		})
	}
}

func TestResolveSubnetCap(t *testing.T) {
	r := newTestResolver()
	r.SetSubnetCap(10)

	seq, err := r.Resolve(context.Background(), TargetSpec{Subnet: "10.0.0.0/24"})
	require.NoError(t, err)

	addrs := drain(seq)
	require.Len(t, addrs, 10)
	assert.Equal(t, "10.0.0.1", addrs[0])
	assert.Equal(t, "10.0.0.10", addrs[9])
}

func TestResolveSubnetRejectsIPv6(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), TargetSpec{Subnet: "2001:db8::/64"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestResolveSubnetBadCIDR(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), TargetSpec{Subnet: "not-a-subnet"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestCandidateSeqReset(t *testing.T) {
	r := newTestResolver()

	seq, err := r.Resolve(context.Background(), TargetSpec{Subnet: "192.0.2.0/29"})
	require.NoError(t, err)

	first := drain(seq)
	require.Len(t, first, 6)

	seq.Reset()
	assert.Equal(t, first, drain(seq))
}

func TestSubnetSkipsCachedDuplicate(t *testing.T) {
	r := newTestResolver()
	cache := NewLastGood(time.Minute, testclock.NewClock(time.Now()))
	cache.Put("garage", "192.0.2.5")
	r.SetCache(cache)

	seq, err := r.Resolve(context.Background(), TargetSpec{Key: "garage", Subnet: "192.0.2.0/28"})
	require.NoError(t, err)

	addrs := drain(seq)
	// The cached address leads and is not repeated by the subnet tail.
	assert.Equal(t, "192.0.2.5", addrs[0])
	assert.Len(t, addrs, 14)
	for i, addr := range addrs {
		if i > 0 {
			assert.NotEqual(t, "192.0.2.5", addr)
		}
	}
}

func TestSubnetEnumerationIsLazy(t *testing.T) {
	r := newTestResolver()
	r.SetSubnetCap(1 << 20)

	// A /8 holds ~16M hosts. Resolve must not materialize them; only the
	// addresses actually pulled get built.
	seq, err := r.Resolve(context.Background(), TargetSpec{Subnet: "10.0.0.0/8"})
	require.NoError(t, err)

	c, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", c.Address)
	assert.Equal(t, SourceSubnet, c.Source)

	c, ok = seq.Next()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", c.Address)
}

func TestCandidateSeqExplicit(t *testing.T) {
	seq := NewCandidateSeq(
		Candidate{Address: "192.168.4.20", Source: SourceFixed},
		Candidate{Address: "192.168.4.21", Source: SourceFixed},
	)
	assert.Equal(t, []string{"192.168.4.20", "192.168.4.21"}, drain(seq))
	seq.Reset()
	assert.Len(t, drain(seq), 2)
}
