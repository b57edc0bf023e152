package domain

import "errors"

// Error kinds shared by the transport, reader and universe packages.
// Callers match them with errors.Is to choose retry/skip logic per kind.
var (
	// ErrAuthentication is returned when the API key is missing or rejected.
	// Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound is returned when the requested entity or time bucket does not
	// exist, either server side (HTTP 404) or in a loaded universe.
	ErrNotFound = errors.New("not found")

	// ErrDownloadFailed is returned when a download keeps failing after the
	// bounded retry policy gave up.
	ErrDownloadFailed = errors.New("download failed")

	// ErrCorruptDataset is returned when a cached file cannot be parsed,
	// typically after an interrupted download.
	ErrCorruptDataset = errors.New("corrupt dataset")

	// ErrDataUnavailable is returned for valid requests that have no data in
	// the requested range.
	ErrDataUnavailable = errors.New("data unavailable")
)
