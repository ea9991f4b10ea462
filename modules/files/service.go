// Package files implements the file-upload API: a single Store contract with
// two interchangeable implementations (S3 blob store, DynamoDB document
// store) and the HTTP handlers exposed on top of it.
package files

import (
	"context"
	"fmt"
	"time"
)

// Backend identifies a storage implementation.
type Backend string

const (
	BackendS3       Backend = "s3"
	BackendDynamoDB Backend = "dynamodb"
)

const (
	// DefaultListLimit is used when the client does not specify a page size.
	DefaultListLimit = 25
	// MaxListLimit caps the page size a client may request.
	MaxListLimit = 100

	// Tag limits match S3 object tagging constraints so both backends accept
	// the same input.
	maxTagCount       = 10
	maxTagKeyLength   = 128
	maxTagValueLength = 256
)

// FileInfo is the metadata record returned for every stored file.
type FileInfo struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Checksum    string            `json:"checksum,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Version     int64             `json:"version,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SaveInput carries a validated upload into a Store. Filename is the
// client-provided name; stores sanitize it before persisting.
type SaveInput struct {
	Filename string
	Content  []byte
	Tags     map[string]string
}

// ListParams controls pagination. Cursor is an opaque token returned by a
// previous List call on the same backend.
type ListParams struct {
	Limit  int32
	Cursor string
}

// Page is one page of list results. NextCursor is empty on the last page.
type Page struct {
	Files      []FileInfo `json:"files"`
	NextCursor string     `json:"-"`
}

// Download describes how to deliver file content to a client. Exactly one of
// URL and Content is set: the blob store hands out a presigned URL, the
// document store returns the inline content.
type Download struct {
	Info      *FileInfo
	Content   []byte
	URL       string
	ExpiresAt time.Time
}

// Store is the storage contract implemented by both backends.
type Store interface {
	// Save persists the upload and returns its metadata.
	Save(ctx context.Context, in SaveInput) (*FileInfo, error)
	// Get returns metadata for a single file.
	Get(ctx context.Context, id string) (*FileInfo, error)
	// List returns a page of files.
	List(ctx context.Context, p ListParams) (*Page, error)
	// Download prepares file content delivery.
	Download(ctx context.Context, id string) (*Download, error)
	// UpdateTags replaces the file's tags.
	UpdateTags(ctx context.Context, id string, tags map[string]string) (*FileInfo, error)
	// Delete removes the file. The document store soft-deletes; the blob
	// store deletes permanently.
	Delete(ctx context.Context, id string) error
	// Ping verifies the backing service is reachable.
	Ping(ctx context.Context) error
}

// ValidateTags enforces the shared tag constraints.
func ValidateTags(tags map[string]string) error {
	if len(tags) > maxTagCount {
		return fmt.Errorf("%w: %d tags exceeds limit of %d", ErrInvalidTags, len(tags), maxTagCount)
	}
	for k, v := range tags {
		if k == "" {
			return fmt.Errorf("%w: empty tag key", ErrInvalidTags)
		}
		if len(k) > maxTagKeyLength {
			return fmt.Errorf("%w: tag key %q exceeds %d characters", ErrInvalidTags, k, maxTagKeyLength)
		}
		if len(v) > maxTagValueLength {
			return fmt.Errorf("%w: value for tag %q exceeds %d characters", ErrInvalidTags, k, maxTagValueLength)
		}
	}
	return nil
}

// normalizeLimit clamps a requested page size into the allowed range.
func normalizeLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
