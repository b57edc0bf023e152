package transport

import (
	"errors"
	"fmt"
	"net/http"

	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
)

// HTTPError is a non-2xx reply from the dataset server.
//
// 401 and 403 match domain.ErrAuthentication, 404 matches
// domain.ErrNotFound and every other status matches domain.ErrDownloadFailed.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string // first bytes of the reply, for diagnostics
}

func (e *HTTPError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("server rejected API key (%d) for %s: %s; check %s or the settings file",
			e.StatusCode, e.URL, e.Body, config.EnvAPIKey)
	case http.StatusNotFound:
		return fmt.Sprintf("not found (404) at %s: %s", e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return target == domain.ErrAuthentication
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	}
	return target == domain.ErrDownloadFailed
}

// Retryable reports whether the request may succeed if sent again.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// errTruncated is returned when fewer bytes arrived than announced.
var errTruncated = errors.New("response body truncated")

// ServerError is an error object the server sent with a 2xx status.
type ServerError struct {
	URL     string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned an error for %s: %s", e.URL, e.Message)
}

func (e *ServerError) Is(target error) bool {
	return target == domain.ErrDownloadFailed
}
