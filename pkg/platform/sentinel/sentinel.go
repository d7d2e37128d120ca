// Package sentinel holds the infrastructure facts stores report. Callers
// match them with errors.Is and translate them into domain errors; field
// problems never travel through here.
package sentinel

import "errors"

var (
	// ErrNotFound means the snapshot or blob does not exist, or has expired.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
