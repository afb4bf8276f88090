package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rileyhilliard/pifleet/internal/discover"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// writeJSON sends a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.cfg.Log.Warn("encoding response failed: %v", err)
	}
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
	Code       string `json:"code,omitempty"`
}

// writeError maps a structured error onto an HTTP status and JSON body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Code: errors.Code(err)}

	var fe *errors.Error
	if stderrors.As(err, &fe) {
		body.Error = fe.Message
		body.Suggestion = fe.Suggestion
		if fe.Cause != nil {
			body.Error = fmt.Sprintf("%s: %s", fe.Message, fe.Cause.Error())
		}
	}

	s.writeJSON(w, httpStatus(err), body)
}

// httpStatus picks the response status for an error. Remote-side failures
// surface as gateway errors so a caller can tell "the device is down" from
// "the request is wrong".
func httpStatus(err error) int {
	switch errors.Code(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrConfig, errors.ErrParse:
		return http.StatusBadRequest
	case errors.ErrTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrUnreachable, errors.ErrConnLost, errors.ErrExhausted,
		errors.ErrAuth, errors.ErrSSH:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return errors.WrapWithCode(err, errors.ErrParse,
			"The request body isn't valid JSON", "")
	}
	return nil
}

// originAllowed implements the browser origin policy shared by CORS and the
// WebSocket upgrader. Non-browser clients send no Origin and always pass.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(s.cfg.Origins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.cfg.Origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.cfg.Log.Debug("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": s.cfg.Version,
	})
}

// deviceSummary is one row of the inventory listing.
type deviceSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Port       int      `json:"port"`
	User       string   `json:"user"`
	Tags       []string `json:"tags,omitempty"`
	ControlURL string   `json:"control_url,omitempty"`
	State      string   `json:"state"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]session.State)
	for _, st := range s.cfg.Sessions.States() {
		states[st.Address] = st.State
	}

	devices := s.cfg.Registry.List()
	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		state := "unknown"
		if st, ok := states[d.Address]; ok {
			state = st.String()
		}
		out = append(out, deviceSummary{
			ID:         d.ID,
			Name:       d.Name,
			Address:    d.Address,
			Port:       d.Port,
			User:       d.User,
			Tags:       d.Tags,
			ControlURL: d.ControlURL,
			State:      state,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

type scanRequest struct {
	Target   string   `json:"target,omitempty"`
	Hints    []string `json:"hints,omitempty"`
	Subnet   string   `json:"subnet,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
	Port     int      `json:"port,omitempty"`
}

// scanDevice is one reachable board in a scan response.
type scanDevice struct {
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	Method    string `json:"method"`
	Source    string `json:"source"`
	LatencyMS int64  `json:"latency_ms"`
	Board     bool   `json:"board"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	opts := discover.Options{
		Concurrency: s.cfg.Discovery.Concurrency,
		Timeout:     s.cfg.Discovery.ProbeTimeout,
		Port:        s.cfg.Discovery.Port,
	}
	if req.Strategy != "" {
		strategy, err := discover.ParseStrategy(req.Strategy)
		if err != nil {
			s.writeError(w, err)
			return
		}
		opts.Strategy = strategy
	}
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			s.writeError(w, errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' isn't a valid probe timeout", req.Timeout),
				"Use a Go duration like 3s or 500ms."))
			return
		}
		opts.Timeout = timeout
	}
	if req.Port > 0 {
		opts.Port = req.Port
	}

	found, probed, err := s.runScan(r.Context(), req, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": found,
		"probed":  probed,
	})
}

// runScan probes the requested target set, falling back from the configured
// hints to the configured subnet when the request names nothing itself.
func (s *Server) runScan(ctx context.Context, req scanRequest, opts discover.Options) ([]scanDevice, int, error) {
	var specs []discover.TargetSpec
	switch {
	case req.Target != "":
		specs = []discover.TargetSpec{{Fixed: req.Target}}
	case len(req.Hints) > 0:
		specs = []discover.TargetSpec{{Hints: req.Hints}}
	case req.Subnet != "":
		specs = []discover.TargetSpec{{Subnet: req.Subnet}}
	default:
		if len(s.cfg.Discovery.Hints) > 0 {
			specs = append(specs, discover.TargetSpec{Hints: s.cfg.Discovery.Hints})
		}
		if s.cfg.Discovery.Subnet != "" {
			specs = append(specs, discover.TargetSpec{Subnet: s.cfg.Discovery.Subnet})
		}
		if len(specs) == 0 {
			specs = []discover.TargetSpec{{}}
		}
	}

	resolver := discover.NewResolver()
	resolver.SetLogger(s.cfg.Log)
	if s.cfg.Discovery.SubnetCap > 0 {
		resolver.SetSubnetCap(s.cfg.Discovery.SubnetCap)
	}

	s.publish(events.Event{Type: events.ScanStarted})

	var found []scanDevice
	probed := 0
	for _, spec := range specs {
		seq, err := resolver.Resolve(ctx, spec)
		if err != nil {
			return nil, probed, err
		}
		results, err := discover.Scan(ctx, seq, opts)
		if err != nil {
			return nil, probed, err
		}
		for result := range results {
			probed++
			s.cfg.Metrics.ProbesTotal.Inc()
			if !result.Reachable {
				continue
			}
			found = append(found, scanDevice{
				Address:   result.Address,
				Name:      result.IdentityHint,
				Method:    result.Method.String(),
				Source:    result.Source.String(),
				LatencyMS: result.Latency.Milliseconds(),
				Board:     result.IsTargetClass,
			})
			s.publish(events.Event{
				Type:    events.DeviceFound,
				Address: result.Address,
				Message: result.IdentityHint,
			})
		}
		// Later specs are fallbacks; stop once something answered.
		if len(found) > 0 {
			break
		}
	}

	s.publish(events.Event{
		Type:    events.ScanFinished,
		Message: fmt.Sprintf("%d found, %d probed", len(found), probed),
	})
	return found, probed, nil
}

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		s.writeError(w, errors.New(errors.ErrConfig,
			"The request body needs a 'command'", ""))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := sess.Execute(ctx, req.Command)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, execResponse{
		Code:   result.ExitCode,
		Stdout: result.Stdout,
		Stderr: result.Stderr,
	})
}

func (s *Server) handleMetricsOnce(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	snapshot, err := s.cfg.Sampler.Sample(ctx, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.cfg.Metrics.SnapshotsTotal.Inc()
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHostInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := telemetry.CollectHostInfo(ctx, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	units, err := telemetry.ListServices(ctx, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"services": units})
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := telemetry.QueryService(ctx, sess, r.PathValue("unit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type serviceActionRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	var req serviceActionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	_, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := telemetry.ManageService(ctx, sess, r.PathValue("unit"), req.Action); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type powerRequest struct {
	Action  string `json:"action"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Action != "reboot" && req.Action != "poweroff" {
		s.writeError(w, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a power action", req.Action),
			"Use 'reboot' or 'poweroff'."))
		return
	}
	if !req.Confirm {
		s.writeError(w, errors.New(errors.ErrConfig,
			fmt.Sprintf("Refusing to %s without confirmation", req.Action),
			"Set 'confirm': true in the request body."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	d, sess, err := s.acquire(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Action == "reboot" {
		err = telemetry.Reboot(ctx, sess)
	} else {
		err = telemetry.Poweroff(ctx, sess)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The host is going down; drop the session now instead of letting the
	// keepalive discover it and spin through reconnects.
	s.cfg.Sessions.Release(d.Address)

	status := "rebooting"
	if req.Action == "poweroff" {
		status = "powering-off"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
