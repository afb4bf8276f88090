package registry

// Decision says where a request for a device should run.
type Decision struct {
	// Forward is true when the request should be proxied to the
	// device's own control daemon instead of executed here.
	Forward bool

	// BaseURL is the daemon to proxy to when Forward is set.
	BaseURL string
}

// Route decides between executing locally and forwarding. Only the
// controller forwards; a request already handled by the device's own
// daemon executes there, which is what stops a forwarded request from
// bouncing between the two. Routing only: rewriting the request and
// streaming the response stay with the server layer, and nothing here
// re-checks auth.
func Route(r Registry, deviceID string, callerIsController bool) (Decision, error) {
	d, err := r.Lookup(deviceID)
	if err != nil {
		return Decision{}, err
	}
	if callerIsController && d.ControlURL != "" {
		return Decision{Forward: true, BaseURL: d.ControlURL}, nil
	}
	return Decision{}, nil
}
