// Package ingest loads ESG file drops into the store in bounded windows,
// scheduling a continuation when a run's budget is spent.
package ingest

import "errors"

var (
	// ErrSourceRead marks a blob that could not be fetched or decoded.
	ErrSourceRead = errors.New("source read failure")

	// ErrStoreUnavailable marks a store write that failed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownEvent marks a payload that names no blob.
	ErrUnknownEvent = errors.New("unknown event")
)
