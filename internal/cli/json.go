package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/discover"
	"github.com/rileyhilliard/pifleet/internal/errors"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
// These map to specific actions automation can take.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeSSHTimeout        = "SSH_TIMEOUT"
	ErrCodeSSHAuthFailed     = "SSH_AUTH_FAILED"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeConnectionLost    = "CONNECTION_LOST"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeParseFailed       = "PARSE_FAILED"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	jsonErr := ErrorToJSON(err)
	env := JSONEnvelope{
		Success: false,
		Error:   jsonErr,
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	// Probe failures carry the most specific classification, so check the
	// chain for one before falling back to the structured code.
	var probeErr *discover.ProbeError
	if stderrors.As(err, &probeErr) {
		return probeErrorToJSON(probeErr)
	}

	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		return &JSONError{
			Code:       mapErrorCode(fleetErr.Code, fleetErr.Message),
			Message:    fleetErr.Message,
			Suggestion: fleetErr.Suggestion,
		}
	}

	// Generic error
	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		// Distinguish between not found and invalid
		msgLower := strings.ToLower(message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") || strings.Contains(msgLower, "no config") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrNotFound:
		return ErrCodeDeviceNotFound
	case errors.ErrUnreachable:
		return ErrCodeDeviceUnreachable
	case errors.ErrTimeout:
		return ErrCodeSSHTimeout
	case errors.ErrAuth:
		return ErrCodeSSHAuthFailed
	case errors.ErrSSH:
		return ErrCodeSSHConnectionFail
	case errors.ErrConnLost:
		return ErrCodeConnectionLost
	case errors.ErrExec, errors.ErrExhausted:
		return ErrCodeCommandFailed
	case errors.ErrParse:
		return ErrCodeParseFailed
	}

	return ErrCodeUnknown
}

// probeErrorToJSON converts a probe error to JSON with specific SSH error codes.
func probeErrorToJSON(probeErr *discover.ProbeError) *JSONError {
	var code string
	var suggestion string

	switch probeErr.Reason {
	case discover.ProbeFailTimeout:
		code = ErrCodeSSHTimeout
		suggestion = "Check if the device is powered on and reachable: ping the address"
	case discover.ProbeFailRefused:
		code = ErrCodeSSHConnectionFail
		suggestion = "The host is up but sshd isn't listening; enable SSH on the device"
	case discover.ProbeFailUnreachable:
		code = ErrCodeDeviceUnreachable
		suggestion = "Check the address and that you're on the same network"
	case discover.ProbeFailNoBanner:
		code = ErrCodeSSHConnectionFail
		suggestion = "Something answered the port but it doesn't speak SSH"
	default:
		code = ErrCodeSSHConnectionFail
	}

	return &JSONError{
		Code:       code,
		Message:    probeErr.Error(),
		Suggestion: suggestion,
		Details: map[string]interface{}{
			"reason":  probeErr.Reason.String(),
			"address": probeErr.Address,
		},
	}
}
