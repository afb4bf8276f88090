package discover

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// ProbeError represents a failed probe with categorized failure reason.
type ProbeError struct {
	Address string
	Reason  ProbeFailReason
	Cause   error
}

// ProbeFailReason categorizes why a probe failed.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
	ProbeFailNoBanner
)

// String returns a human-readable description of the failure reason.
func (r ProbeFailReason) String() string {
	switch r {
	case ProbeFailTimeout:
		return "connection timed out"
	case ProbeFailRefused:
		return "connection refused"
	case ProbeFailUnreachable:
		return "host unreachable"
	case ProbeFailNoBanner:
		return "no service banner"
	default:
		return "unknown error"
	}
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Address, e.Reason, e.Cause)
	}
	return fmt.Sprintf("probe %s failed: %s", e.Address, e.Reason)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// probeService connects to the service port and reads the protocol banner.
// An SSH server speaks first, so nothing is sent. Returns the total latency
// and the banner line; a connection that opens but yields no banner before
// the deadline fails with ProbeFailNoBanner.
func probeService(ctx context.Context, address string, timeout time.Duration) (time.Duration, string, error) {
	start := time.Now()

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, "", categorizeProbeError(address, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(start.Add(timeout))

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return time.Since(start), "", &ProbeError{
			Address: address,
			Reason:  ProbeFailNoBanner,
			Cause:   err,
		}
	}

	banner := strings.TrimSpace(strings.SplitN(string(buf[:n]), "\n", 2)[0])
	return time.Since(start), banner, nil
}

// probeReachability checks whether anything answers at the address. A refused
// connection still counts: the host sent the refusal, so it is up.
func probeReachability(ctx context.Context, address string, timeout time.Duration) (time.Duration, bool, error) {
	start := time.Now()

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		probeErr := categorizeProbeError(address, err)
		if probeErr.Reason == ProbeFailRefused {
			return time.Since(start), true, nil
		}
		return 0, false, probeErr
	}
	conn.Close()

	return time.Since(start), true, nil
}

// isSSHBanner reports whether a banner line identifies a secure-shell
// listener.
func isSSHBanner(banner string) bool {
	return strings.HasPrefix(banner, "SSH-")
}

// joinPort appends the port unless the address already carries one.
func joinPort(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, fmt.Sprintf("%d", port))
}

// categorizeProbeError converts a generic error into a ProbeError with
// a categorized failure reason.
func categorizeProbeError(address string, err error) *ProbeError {
	probeErr := &ProbeError{
		Address: address,
		Reason:  ProbeFailUnknown,
		Cause:   err,
	}

	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		probeErr.Reason = ProbeFailTimeout
		return probeErr
	}

	if strings.Contains(errStr, "connection refused") {
		probeErr.Reason = ProbeFailRefused
		return probeErr
	}

	if strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "host is down") {
		probeErr.Reason = ProbeFailUnreachable
		return probeErr
	}

	return probeErr
}
