package repository

import "errors"

// ErrJobNotFound is returned when a lookup by job id finds no row.
var ErrJobNotFound = errors.New("job not found")
