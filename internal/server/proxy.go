package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
)

// forwardedHeader marks a request that already crossed one controller hop.
// A daemon seeing it executes locally no matter what its registry says, so
// a forwarded request can never bounce back out.
const forwardedHeader = "X-Pifleet-Forwarded"

// routed wraps a device handler with the routing decision: requests for a
// device that runs its own control daemon are reverse-proxied there, one
// hop at most, WebSocket upgrades included.
func (s *Server) routed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		firstHop := r.Header.Get(forwardedHeader) == ""
		decision, err := registry.Route(s.cfg.Registry, r.PathValue("id"), firstHop)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !decision.Forward {
			next(w, r)
			return
		}
		s.proxyTo(w, r, decision.BaseURL)
	}
}

func (s *Server) proxyTo(w http.ResponseWriter, r *http.Request, baseURL string) {
	target, err := url.Parse(baseURL)
	if err != nil {
		s.writeError(w, errors.WrapWithCode(err, errors.ErrConfig,
			"The device's control URL doesn't parse",
			"Fix control_url for this device in the config file."))
		return
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header.Set(forwardedHeader, "1")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.cfg.Log.Warn("forwarding %s to %s failed: %v", r.URL.Path, target.Host, err)
			s.writeError(w, errors.WrapWithCode(err, errors.ErrUnreachable,
				"The device's control daemon didn't answer",
				"Check that the daemon is running and its control_url is right."))
		},
	}
	proxy.ServeHTTP(w, r)
}
