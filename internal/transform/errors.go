// Package transform turns raw ESG rows into canonical records: presence
// validation, timestamp normalization, score coercion and rating.
package transform

import "errors"

var (
	// ErrRowInvalid marks a row missing one of the required fields.
	ErrRowInvalid = errors.New("row invalid")

	// ErrMalformedTimestamp marks a timestamp matching none of the known layouts.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrWriteFailure marks a row that cannot be coerced into a record.
	ErrWriteFailure = errors.New("write failure")
)
