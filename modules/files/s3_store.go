package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/upvault/upvault/pkg/upload"
)

// metadata keys persisted alongside each object
const (
	metaFilename = "filename"
	metaChecksum = "checksum"
)

// S3Client defines the interface for S3 operations used by S3Store.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Presigner defines the subset of s3.PresignClient used for download URLs.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config contains configuration for the S3 blob store.
type S3Config struct {
	Bucket         string        `env:"S3_BUCKET"`
	Region         string        `env:"AWS_REGION"`
	AccessKeyID    string        `env:"AWS_ACCESS_KEY_ID"`
	SecretKey      string        `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint       string        `env:"S3_ENDPOINT"`                           // Optional: for S3-compatible services
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE" envDefault:"false"` // For S3-compatible services like MinIO
	PresignTTL     time.Duration `env:"S3_PRESIGN_TTL" envDefault:"15m"`       // Lifetime of presigned download URLs
}

// S3Store implements Store on an S3 bucket. Object keys are file IDs; the
// original filename and checksum travel in object metadata, tags in object
// tagging. It is safe for concurrent use.
type S3Store struct {
	client     S3Client
	presigner  S3Presigner
	bucket     string
	presignTTL time.Duration
	now        func() time.Time
}

// S3Option configures S3Store.
type S3Option func(*s3Options)

type s3Options struct {
	client    S3Client
	presigner S3Presigner
	now       func() time.Time
}

// WithS3Client sets a custom pre-configured S3 client.
// Useful for testing with mocks. Requires WithS3Presigner.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) { o.client = client }
}

// WithS3Presigner sets a custom presign client.
func WithS3Presigner(p S3Presigner) S3Option {
	return func(o *s3Options) { o.presigner = p }
}

// WithS3Clock overrides the time source. Testing support.
func WithS3Clock(now func() time.Time) S3Option {
	return func(o *s3Options) { o.now = now }
}

// NewS3Store creates a new S3-backed store.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", ErrInvalidConfig)
	}

	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	presigner := options.presigner
	if client == nil {
		if cfg.Region == "" {
			return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
		}

		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
		}

		s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
		client = s3Client
		presigner = s3.NewPresignClient(s3Client)
	}
	if presigner == nil {
		return nil, fmt.Errorf("%w: presigner is required with a custom client", ErrInvalidConfig)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := options.now
	if now == nil {
		now = time.Now
	}

	return &S3Store{
		client:     client,
		presigner:  presigner,
		bucket:     cfg.Bucket,
		presignTTL: ttl,
		now:        now,
	}, nil
}

// classifyS3Error converts S3 errors to domain errors.
func classifyS3Error(err error, operation string) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrNotFound, operation)
		case "AccessDenied":
			return fmt.Errorf("%w: %s operation", ErrAccessDenied, operation)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return fmt.Errorf("%w: %s operation", ErrStoreUnavailable, operation)
		}
	}

	return fmt.Errorf("%s operation failed: %w", operation, err)
}

// Save uploads the content as a single object keyed by a generated ID.
func (s *S3Store) Save(ctx context.Context, in SaveInput) (*FileInfo, error) {
	if len(in.Content) == 0 {
		return nil, upload.ErrEmptyFile
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	filename := upload.SanitizeFilename(in.Filename)
	contentType := upload.DetectContentType(in.Content)
	checksum := upload.Checksum(in.Content)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(id),
		Body:        bytes.NewReader(in.Content),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			metaFilename: filename,
			metaChecksum: checksum,
		},
	}
	if len(in.Tags) > 0 {
		input.Tagging = aws.String(encodeObjectTags(in.Tags))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, classifyS3Error(err, "save file")
	}

	now := s.now().UTC()
	return &FileInfo{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(in.Content)),
		Checksum:    checksum,
		Tags:        in.Tags,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Get assembles metadata from a HEAD request plus object tagging.
func (s *S3Store) Get(ctx context.Context, id string) (*FileInfo, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classifyS3Error(err, "get file")
	}

	tagging, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classifyS3Error(err, "get file tags")
	}

	return s.fileInfoFromHead(id, head, tagging.TagSet), nil
}

func (s *S3Store) fileInfoFromHead(id string, head *s3.HeadObjectOutput, tagSet []types.Tag) *FileInfo {
	info := &FileInfo{
		ID:      id,
		Size:    aws.ToInt64(head.ContentLength),
		Version: 1,
	}
	if head.ContentType != nil {
		info.ContentType = *head.ContentType
	}
	if name, ok := head.Metadata[metaFilename]; ok && name != "" {
		info.Filename = name
	} else {
		info.Filename = id
	}
	info.Checksum = head.Metadata[metaChecksum]
	if head.LastModified != nil {
		info.CreatedAt = head.LastModified.UTC()
		info.UpdatedAt = head.LastModified.UTC()
	}
	if len(tagSet) > 0 {
		info.Tags = make(map[string]string, len(tagSet))
		for _, tag := range tagSet {
			info.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return info
}

// List pages through the bucket using continuation tokens. One HEAD request
// per key fills in the stored filename and checksum; page sizes are capped so
// the fan-out stays small.
func (s *S3Store) List(ctx context.Context, p ListParams) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(normalizeLimit(p.Limit)),
	}
	if p.Cursor != "" {
		input.ContinuationToken = aws.String(p.Cursor)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		if p.Cursor != "" {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidArgument" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, p.Cursor)
			}
		}
		return nil, classifyS3Error(err, "list files")
	}

	page := &Page{Files: make([]FileInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		id := aws.ToString(obj.Key)
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(id),
		})
		if err != nil {
			// Object deleted between LIST and HEAD; skip it.
			if errors.Is(classifyS3Error(err, "head file"), ErrNotFound) {
				continue
			}
			return nil, classifyS3Error(err, "head file")
		}
		page.Files = append(page.Files, *s.fileInfoFromHead(id, head, nil))
	}

	if aws.ToBool(out.IsTruncated) {
		page.NextCursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Download hands out a presigned GET URL instead of proxying content.
func (s *S3Store) Download(ctx context.Context, id string) (*Download, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(id),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", info.Filename)),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.presignTTL
	})
	if err != nil {
		return nil, classifyS3Error(err, "presign download")
	}

	return &Download{
		Info:      info,
		URL:       req.URL,
		ExpiresAt: s.now().UTC().Add(s.presignTTL),
	}, nil
}

// UpdateTags replaces the object's tag set. S3 has no version counter; the
// reported version stays at 1.
func (s *S3Store) UpdateTags(ctx context.Context, id string, tags map[string]string) (*FileInfo, error) {
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}

	// HEAD first so a missing key surfaces as not found rather than a
	// tagging error.
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classifyS3Error(err, "update tags")
	}

	tagSet := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		tagSet = append(tagSet, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	_, err = s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(id),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return nil, classifyS3Error(err, "update tags")
	}

	info := s.fileInfoFromHead(id, head, tagSet)
	return info, nil
}

// Delete removes the object permanently. Soft delete is a document-store
// semantic; blobs are gone once deleted.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return classifyS3Error(err, "delete file")
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return classifyS3Error(err, "delete file")
	}
	return nil
}

// Ping verifies the bucket exists and is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return classifyS3Error(err, "head bucket")
	}
	return nil
}

// encodeObjectTags renders tags as the URL-encoded string PutObject expects.
func encodeObjectTags(tags map[string]string) string {
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}
