// Package discover turns logical fleet targets into concrete addresses:
// resolving hint names, enumerating subnets, probing candidates under bounded
// concurrency, and remembering which address last answered for a device.
package discover

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
)

// Source records which part of a target spec produced a candidate.
type Source int

const (
	SourceFixed Source = iota
	SourceHint
	SourceSubnet
	SourceCached
)

// String returns a short label for scan tables and logs.
func (s Source) String() string {
	switch s {
	case SourceFixed:
		return "fixed"
	case SourceHint:
		return "hint"
	case SourceSubnet:
		return "subnet"
	case SourceCached:
		return "cached"
	default:
		return "unknown"
	}
}

// TargetSpec describes one logical discovery target. Exactly one of Fixed,
// Hints, or Subnet should be set; an entirely empty spec falls back to the
// default hint list. Key names the logical target for last-good caching and
// may always be set.
type TargetSpec struct {
	Key    string   // logical name, used for last-good lookups (optional)
	Fixed  string   // literal address, used as-is
	Hints  []string // names or addresses tried in order
	Subnet string   // CIDR to enumerate lazily
}

// Candidate is one address to try, tagged with where it came from.
type Candidate struct {
	Address string
	Source  Source
	Name    string // the hint that resolved to this address, when any
}

// DefaultHints are tried when a spec names no target at all. Fresh boards
// come up with these names out of the box.
func DefaultHints() []string {
	return []string{"raspberrypi.local", "raspberrypi"}
}

const (
	// DefaultSubnetCap bounds subnet enumeration so a fat CIDR doesn't turn
	// into a scan of thousands of hosts.
	DefaultSubnetCap = 64

	// DefaultHintTimeout bounds each hint's name resolution.
	DefaultHintTimeout = 2 * time.Second
)

// LookupFunc resolves a name to addresses. Injected so tests don't need DNS.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Resolver expands target specs into candidate sequences.
type Resolver struct {
	lookup      LookupFunc
	cache       *LastGood
	log         logger.Logger
	subnetCap   int
	hintTimeout time.Duration
}

// NewResolver creates a resolver with system DNS, the default subnet cap,
// and no last-good cache.
func NewResolver() *Resolver {
	return &Resolver{
		lookup:      systemLookup,
		log:         logger.Default(),
		subnetCap:   DefaultSubnetCap,
		hintTimeout: DefaultHintTimeout,
	}
}

// SetLookup replaces the name resolution function.
func (r *Resolver) SetLookup(fn LookupFunc) {
	r.lookup = fn
}

// SetCache attaches a last-good cache; its entries are yielded first.
func (r *Resolver) SetCache(cache *LastGood) {
	r.cache = cache
}

// SetSubnetCap changes the subnet enumeration bound.
func (r *Resolver) SetSubnetCap(limit int) {
	if limit > 0 {
		r.subnetCap = limit
	}
}

// SetLogger replaces the logger.
func (r *Resolver) SetLogger(log logger.Logger) {
	r.log = log
}

func systemLookup(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// Resolve expands a spec into a candidate sequence. Fixed and hint candidates
// are resolved up front (each hint bounded by the hint timeout, failures
// skipped and logged); subnet candidates are enumerated lazily as the caller
// pulls them, up to the cap. A last-good address for spec.Key is yielded
// before anything else.
func (r *Resolver) Resolve(ctx context.Context, spec TargetSpec) (*CandidateSeq, error) {
	set := 0
	if spec.Fixed != "" {
		set++
	}
	if len(spec.Hints) > 0 {
		set++
	}
	if spec.Subnet != "" {
		set++
	}
	if set > 1 {
		return nil, errors.New(errors.ErrConfig,
			"A target needs exactly one of: a fixed address, hints, or a subnet",
			"Split it into separate targets if you want to try several forms.")
	}
	if set == 0 {
		spec.Hints = DefaultHints()
		r.log.Debug("no target given, falling back to default hints %v", spec.Hints)
	}

	var head []Candidate
	seen := make(map[string]struct{})
	add := func(c Candidate) {
		if _, dup := seen[c.Address]; dup {
			return
		}
		seen[c.Address] = struct{}{}
		head = append(head, c)
	}

	if r.cache != nil && spec.Key != "" {
		if addr, ok := r.cache.Get(spec.Key); ok {
			add(Candidate{Address: addr, Source: SourceCached})
		}
	}

	if spec.Fixed != "" {
		add(Candidate{Address: spec.Fixed, Source: SourceFixed})
	}

	for _, hint := range spec.Hints {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrTimeout,
				"Target resolution was cancelled", "")
		}

		// Literal addresses skip DNS entirely.
		if ip := net.ParseIP(hint); ip != nil {
			add(Candidate{Address: hint, Source: SourceHint, Name: hint})
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, r.hintTimeout)
		ips, err := r.lookup(hctx, hint)
		cancel()
		if err != nil {
			// One dead hint never sinks the rest.
			r.log.Debug("hint %q didn't resolve: %v", hint, err)
			continue
		}
		for _, ip := range ips {
			add(Candidate{Address: ip.String(), Source: SourceHint, Name: hint})
		}
	}

	var subnet *subnetIter
	if spec.Subnet != "" {
		var err error
		subnet, err = newSubnetIter(spec.Subnet, r.subnetCap, seen)
		if err != nil {
			return nil, err
		}
		if subnet.hostCount() > r.subnetCap {
			r.log.Info("subnet %s has %d hosts, scanning the first %d",
				spec.Subnet, subnet.hostCount(), r.subnetCap)
		}
	}

	return &CandidateSeq{head: head, subnet: subnet}, nil
}

// CandidateSeq is a finite, restartable pull iterator over candidates.
// Fixed, cached, and hint candidates come first, then the subnet tail is
// enumerated lazily so an early match stops the scan cheaply.
type CandidateSeq struct {
	head   []Candidate
	subnet *subnetIter
	pos    int
}

// NewCandidateSeq wraps an explicit candidate list, for callers that already
// know their addresses.
func NewCandidateSeq(candidates ...Candidate) *CandidateSeq {
	return &CandidateSeq{head: candidates}
}

// Next returns the next candidate, or false when the sequence is exhausted.
func (s *CandidateSeq) Next() (Candidate, bool) {
	if s.pos < len(s.head) {
		c := s.head[s.pos]
		s.pos++
		return c, true
	}
	if s.subnet != nil {
		if addr, ok := s.subnet.next(); ok {
			return Candidate{Address: addr, Source: SourceSubnet}, true
		}
	}
	return Candidate{}, false
}

// Reset rewinds the sequence to the beginning. Hint resolution is not redone.
func (s *CandidateSeq) Reset() {
	s.pos = 0
	if s.subnet != nil {
		s.subnet.reset()
	}
}

// subnetIter enumerates usable IPv4 host addresses of a CIDR block in order,
// skipping the network and broadcast addresses, bounded by cap.
type subnetIter struct {
	base    uint32
	total   uint32
	cap     int
	skip    map[string]struct{}
	pos     uint32
	emitted int
}

func newSubnetIter(cidr string, limit int, skip map[string]struct{}) (*subnetIter, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a valid subnet", cidr),
			"Use CIDR notation, like 192.168.4.0/24.")
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Subnet '%s' is IPv6, which can't be enumerated for scanning", cidr),
			"Give an IPv4 subnet, or list the addresses as hints instead.")
	}

	ones, bits := ipnet.Mask.Size()
	total := uint32(1) << (bits - ones)

	return &subnetIter{
		base:  binary.BigEndian.Uint32(ip4),
		total: total,
		cap:   limit,
		skip:  skip,
	}, nil
}

// hostCount returns the number of usable addresses in the block.
func (s *subnetIter) hostCount() int {
	if s.total <= 2 {
		return int(s.total)
	}
	return int(s.total) - 2
}

func (s *subnetIter) next() (string, bool) {
	for {
		if s.emitted >= s.cap || s.pos >= s.total {
			return "", false
		}
		off := s.pos
		s.pos++

		// /31 and /32 have no network/broadcast addresses to skip.
		if s.total > 2 && (off == 0 || off == s.total-1) {
			continue
		}

		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], s.base+off)
		addr := net.IP(buf[:]).String()
		if _, dup := s.skip[addr]; dup {
			continue
		}

		s.emitted++
		return addr, true
	}
}

func (s *subnetIter) reset() {
	s.pos = 0
	s.emitted = 0
}
