package nodeapi

import "fmt"

// ErrNotFound is returned by StorageBlock when the node has no record of the
// requested header id.
var ErrNotFound = fmt.Errorf("nodeapi: block not found")

// RejectedError is returned by any Client operation when the node answers
// with a status of 400 or above other than 404 (which yields ErrNotFound);
// Reason holds the first 500 bytes of the response body. It is distinct
// from a transport failure. Server errors (5xx) are reported this way too.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("nodeapi: transaction rejected: %s", e.Reason)
}
