package mpesa

import (
	"errors"
	"fmt"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// GatewayAuthError is returned when an access token cannot be obtained.
type GatewayAuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa: token request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mpesa: token request failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *GatewayAuthError) Unwrap() error {
	return e.Err
}

// GatewayRequestError is returned when the push request is rejected, either
// at the HTTP level or by a non-zero ResponseCode. Body carries the upstream
// payload for logs and must not be echoed to API callers.
type GatewayRequestError struct {
	StatusCode   int
	ResponseCode string
	Body         string
	Err          error
}

func (e *GatewayRequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("mpesa: push request failed (status %d): %v", e.StatusCode, e.Err)
	case e.ResponseCode != "":
		return fmt.Sprintf("mpesa: push request rejected (response code %s): %s", e.ResponseCode, e.Body)
	default:
		return fmt.Sprintf("mpesa: push request failed (status %d): %s", e.StatusCode, e.Body)
	}
}

func (e *GatewayRequestError) Unwrap() error {
	return e.Err
}
