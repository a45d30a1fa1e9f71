package registry

import "errors"

// ErrNotFound is returned when a lookup by name finds no live registration.
var ErrNotFound = errors.New("registry: pattern not found")
