package files

import "errors"

var (
	// ErrNotFound is returned when a file does not exist or has been deleted.
	ErrNotFound = errors.New("file not found")
	// ErrAlreadyExists is returned on an identifier collision during save.
	ErrAlreadyExists = errors.New("file already exists")
	// ErrInvalidCursor is returned for pagination cursors that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
	// ErrInvalidTags is returned when tags violate the shared constraints.
	ErrInvalidTags = errors.New("invalid tags")
	// ErrContentTooLarge is returned by the document store when content
	// exceeds the inline storage cap.
	ErrContentTooLarge = errors.New("content exceeds inline storage limit")

	// Backend availability errors
	ErrStoreUnavailable = errors.New("storage backend temporarily unavailable")
	ErrAccessDenied     = errors.New("access denied by storage backend")

	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid storage configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)
