package reader

import (
	"fmt"

	"dex-market-data/internal/domain"
)

// CorruptDatasetError is returned when a cached file cannot be decoded.
// It matches domain.ErrCorruptDataset. The file is left in place.
type CorruptDatasetError struct {
	Path    string
	Dataset string
	Err     error
}

func (e *CorruptDatasetError) Error() string {
	return fmt.Sprintf("corrupt %s dataset at %s: %v (likely an interrupted download; purge this file from the cache and fetch it again)",
		e.Dataset, e.Path, e.Err)
}

func (e *CorruptDatasetError) Unwrap() error { return e.Err }

func (e *CorruptDatasetError) Is(target error) bool {
	return target == domain.ErrCorruptDataset
}
