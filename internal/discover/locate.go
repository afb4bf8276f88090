package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
)

// LocateEvent reports progress while hunting for a device's address.
type LocateEvent struct {
	Type    LocateEventType
	Address string
	Source  Source
	Message string
	Error   error
	Latency time.Duration
}

// LocateEventType categorizes locate events.
type LocateEventType int

const (
	// EventTrying indicates a candidate probe is starting.
	EventTrying LocateEventType = iota
	// EventFailed indicates a candidate didn't answer.
	EventFailed
	// EventFound indicates a candidate answered with the right service.
	EventFound
	// EventCacheHit indicates the last-good address answered again.
	EventCacheHit
)

// String returns a human-readable description of the event type.
func (t LocateEventType) String() string {
	switch t {
	case EventTrying:
		return "trying"
	case EventFailed:
		return "failed"
	case EventFound:
		return "found"
	case EventCacheHit:
		return "cache_hit"
	default:
		return "unknown"
	}
}

// EventHandler is a callback for locate events.
type EventHandler func(event LocateEvent)

// Locator finds the working address for a logical target by walking its
// candidate sequence and service-probing each one until something answers.
type Locator struct {
	resolver *Resolver
	cache    *LastGood
	timeout  time.Duration
	port     int
	handler  EventHandler
	log      logger.Logger
}

// NewLocator creates a locator over the given resolver.
func NewLocator(resolver *Resolver) *Locator {
	return &Locator{
		resolver: resolver,
		timeout:  DefaultProbeTimeout,
		port:     DefaultServicePort,
		log:      logger.Default(),
	}
}

// SetCache attaches a last-good cache, shared with the resolver so confirmed
// addresses float to the front of later resolutions.
func (l *Locator) SetCache(cache *LastGood) {
	l.cache = cache
	l.resolver.SetCache(cache)
}

// SetProbeTimeout changes the per-candidate probe timeout.
func (l *Locator) SetProbeTimeout(timeout time.Duration) {
	if timeout > 0 {
		l.timeout = timeout
	}
}

// SetPort changes the service port probed on each candidate.
func (l *Locator) SetPort(port int) {
	if port > 0 {
		l.port = port
	}
}

// SetEventHandler sets a callback for progress events.
func (l *Locator) SetEventHandler(handler EventHandler) {
	l.handler = handler
}

// emit sends an event to the handler if one is configured.
func (l *Locator) emit(event LocateEvent) {
	if l.handler != nil {
		l.handler(event)
	}
}

// Locate walks the target's candidates in order and returns the first
// address with a live service listener. The winner is recorded in the
// last-good cache under spec.Key.
func (l *Locator) Locate(ctx context.Context, spec TargetSpec) (string, error) {
	seq, err := l.resolver.Resolve(ctx, spec)
	if err != nil {
		return "", err
	}

	var lastErr error
	tried := 0
	for {
		candidate, ok := seq.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrTimeout,
				fmt.Sprintf("Gave up looking for '%s'", specLabel(spec)), "")
		}
		tried++

		l.emit(LocateEvent{
			Type:    EventTrying,
			Address: candidate.Address,
			Source:  candidate.Source,
			Message: fmt.Sprintf("trying %s (%s)", candidate.Address, candidate.Source),
		})

		pctx, cancel := context.WithTimeout(ctx, l.timeout)
		latency, banner, err := probeService(pctx, joinPort(candidate.Address, l.port), l.timeout)
		cancel()
		if err == nil {
			eventType := EventFound
			if candidate.Source == SourceCached {
				eventType = EventCacheHit
			}
			l.emit(LocateEvent{
				Type:    eventType,
				Address: candidate.Address,
				Source:  candidate.Source,
				Message: banner,
				Latency: latency,
			})
			if l.cache != nil && spec.Key != "" {
				l.cache.Put(spec.Key, candidate.Address)
			}
			return candidate.Address, nil
		}

		l.emit(LocateEvent{
			Type:    EventFailed,
			Address: candidate.Address,
			Source:  candidate.Source,
			Message: probeFailMessage(err),
			Error:   err,
		})
		if l.cache != nil && candidate.Source == SourceCached && spec.Key != "" {
			// The remembered address went dark; stop preferring it.
			l.cache.Forget(spec.Key)
		}
		lastErr = err
	}

	if tried == 0 {
		return "", errors.New(errors.ErrUnreachable,
			fmt.Sprintf("No candidates to try for '%s'", specLabel(spec)),
			"Check the device's address, hints, or subnet in the config.")
	}
	return "", errors.WrapWithCode(lastErr, errors.ErrUnreachable,
		fmt.Sprintf("Couldn't find '%s' anywhere (tried %d candidate(s))", specLabel(spec), tried),
		"The device might be powered off, or on a different network.")
}

// probeFailMessage extracts the categorized reason when available.
func probeFailMessage(err error) string {
	if probeErr, ok := err.(*ProbeError); ok {
		return probeErr.Reason.String()
	}
	return "probe failed"
}

// specLabel names a spec for error messages.
func specLabel(spec TargetSpec) string {
	switch {
	case spec.Key != "":
		return spec.Key
	case spec.Fixed != "":
		return spec.Fixed
	case spec.Subnet != "":
		return spec.Subnet
	case len(spec.Hints) > 0:
		return spec.Hints[0]
	default:
		return "target"
	}
}
