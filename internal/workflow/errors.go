package workflow

import "fmt"

// GatewayError reports a failed workflow call: transport failure, non-2xx
// response, undecodable body or an engine-side failed run.
type GatewayError struct {
	Flow       Flow
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("workflow %s failed (status %d): %s", e.Flow, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("workflow %s failed: %s", e.Flow, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
