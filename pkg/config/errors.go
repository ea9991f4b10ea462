package config

import "errors"

var (
	// ErrNilPointer is returned when a nil pointer is passed to Load.
	ErrNilPointer = errors.New("config target cannot be nil")
	// ErrParsingConfig indicates environment variables could not be parsed into the struct.
	ErrParsingConfig = errors.New("failed to parse configuration")
)
