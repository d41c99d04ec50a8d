package taxapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Detail markers the backend embeds in error responses.
const (
	SessionExpiredMarker = "JWT"
	UserNotFoundMarker   = "User not found"
)

// passwordMarkers identify uploads rejected because the file is encrypted
// or the supplied password is wrong. Compared case-insensitively.
var passwordMarkers = []string{
	"password protected",
	"invalid password",
	"password required",
}

// APIError is a non-2xx response from either service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taxapi: status %d: %s", e.StatusCode, e.Detail)
}

// newAPIError builds an APIError from a response body. The backend sends
// {"detail": "..."}; validation failures send a detail array, which is
// kept as raw JSON.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			detail = s
		} else {
			detail = string(payload.Detail)
		}
	}
	return &APIError{StatusCode: status, Detail: detail}
}

// AsAPIError extracts an APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsSessionExpired reports whether err signals expired or invalid credentials.
func IsSessionExpired(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && strings.Contains(ae.Detail, SessionExpiredMarker)
}

// IsUserNotFound reports whether the acting account no longer exists.
func IsUserNotFound(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && strings.Contains(ae.Detail, UserNotFoundMarker)
}

// IsPasswordRequired reports whether an upload failed because the file is
// password protected or the password was wrong.
func IsPasswordRequired(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	d := strings.ToLower(ae.Detail)
	for _, m := range passwordMarkers {
		if strings.Contains(d, m) {
			return true
		}
	}
	return false
}
