package vectorstore

import "errors"

var (
	// ErrSourceRequired is returned when brute-force ranking has no vector source.
	ErrSourceRequired = errors.New("vector source required")

	// ErrIndexRequired is returned when native ranking has no similarity index.
	ErrIndexRequired = errors.New("similarity index required")
)
