package configstore

import "errors"

var (
	// ErrPathViolation is returned when a path resolves outside the config directory.
	ErrPathViolation = errors.New("path is outside config directory")
	// ErrNotFound is returned when a required file or backup does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidationFailed is returned when the post-write configuration check fails.
	ErrValidationFailed = errors.New("configuration validation failed")
	// ErrWriteFailed is returned when writing a file or a registry resource fails.
	ErrWriteFailed = errors.New("write failed")
)
