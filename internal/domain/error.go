package domain

import "errors"

var (
	// Common domain errors
	ErrMissingParameters = errors.New("missing required parameters")
	ErrEmptyResult       = errors.New("provider response has no result")
)
