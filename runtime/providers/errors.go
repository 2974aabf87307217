package providers

import (
	"encoding/json"
	"fmt"
)

// HTTPError is a non-2xx response from a provider API.
type HTTPError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Platform, e.StatusCode, e.Message)
}

// ParsePlatformHTTPError extracts a human-readable error from an error body.
// Bedrock returns {"message":"..."}, the vendor APIs {"error":{"message":"..."}};
// anything else falls back to the raw body.
func ParsePlatformHTTPError(platform string, statusCode int, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			msg = errResp.Message
		case errResp.Error.Message != "":
			msg = errResp.Error.Message
		}
	}
	return &HTTPError{Platform: platform, StatusCode: statusCode, Message: msg}
}
