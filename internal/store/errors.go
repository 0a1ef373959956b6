// Sentinel errors shared by every Store implementation.  Higher layers
// use errors.Is on these to pick status codes instead of matching on
// driver-specific failures.
package store

import "errors"

// ErrNotFound is returned when a customer, reservation or user does not
// exist.  Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is
// already registered.  Handlers translate it into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")
