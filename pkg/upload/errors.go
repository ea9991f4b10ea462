package upload

import "errors"

var (
	// ErrEmptyFile is returned for zero-length upload content.
	ErrEmptyFile = errors.New("file content is empty")
	// ErrFileTooLarge is returned when content exceeds the configured limit.
	ErrFileTooLarge = errors.New("file size exceeds maximum allowed size")
)
