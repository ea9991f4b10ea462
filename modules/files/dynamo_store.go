package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/upvault/upvault/pkg/upload"
)

// MaxInlineContentSize caps content stored inline in a DynamoDB item.
// DynamoDB limits items to 400KB including attribute names; 256KiB leaves
// comfortable headroom for metadata and tags.
const MaxInlineContentSize = 256 << 10

// DynamoClient defines the interface for DynamoDB operations used by DynamoStore.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoConfig contains configuration for the DynamoDB document store.
type DynamoConfig struct {
	Table       string `env:"DYNAMO_TABLE"`
	Region      string `env:"AWS_REGION"`
	AccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	SecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint    string `env:"DYNAMO_ENDPOINT"` // Optional: for dynamodb-local
}

// DynamoStore implements Store on a single DynamoDB table. Small files are
// stored inline with their metadata. It is safe for concurrent use.
type DynamoStore struct {
	client DynamoClient
	table  string
	now    func() time.Time
}

// DynamoOption configures DynamoStore.
type DynamoOption func(*dynamoOptions)

type dynamoOptions struct {
	client DynamoClient
	now    func() time.Time
}

// WithDynamoClient sets a custom pre-configured DynamoDB client.
// Useful for testing with mocks.
func WithDynamoClient(client DynamoClient) DynamoOption {
	return func(o *dynamoOptions) { o.client = client }
}

// WithDynamoClock overrides the time source. Testing support.
func WithDynamoClock(now func() time.Time) DynamoOption {
	return func(o *dynamoOptions) { o.now = now }
}

// NewDynamoStore creates a new DynamoDB-backed store.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig, opts ...DynamoOption) (*DynamoStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidConfig)
	}

	options := &dynamoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
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

		client = dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}

	now := options.now
	if now == nil {
		now = time.Now
	}

	return &DynamoStore{
		client: client,
		table:  cfg.Table,
		now:    now,
	}, nil
}

// dynamoItem is the single-table record shape. Timestamps are stored as unix
// seconds so they sort and compare naturally in filter expressions.
type dynamoItem struct {
	ID          string            `dynamodbav:"id"`
	Filename    string            `dynamodbav:"filename"`
	ContentType string            `dynamodbav:"content_type"`
	Size        int64             `dynamodbav:"size"`
	Checksum    string            `dynamodbav:"checksum"`
	Content     []byte            `dynamodbav:"content"`
	Tags        map[string]string `dynamodbav:"tags,omitempty"`
	Version     int64             `dynamodbav:"version"`
	Active      bool              `dynamodbav:"active"`
	CreatedAt   int64             `dynamodbav:"created_at"`
	UpdatedAt   int64             `dynamodbav:"updated_at"`
}

func (it dynamoItem) fileInfo() *FileInfo {
	return &FileInfo{
		ID:          it.ID,
		Filename:    it.Filename,
		ContentType: it.ContentType,
		Size:        it.Size,
		Checksum:    it.Checksum,
		Tags:        it.Tags,
		Version:     it.Version,
		CreatedAt:   time.Unix(it.CreatedAt, 0).UTC(),
		UpdatedAt:   time.Unix(it.UpdatedAt, 0).UTC(),
	}
}

// classifyDynamoError converts DynamoDB errors to domain errors.
func classifyDynamoError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
			return fmt.Errorf("%w: %s operation", ErrStoreUnavailable, operation)
		case "AccessDeniedException":
			return fmt.Errorf("%w: %s operation", ErrAccessDenied, operation)
		}
	}

	return fmt.Errorf("%s operation failed: %w", operation, err)
}

// Save validates, sanitizes the filename, serializes the record and writes it
// with a conditional put so an identifier collision never overwrites data.
func (s *DynamoStore) Save(ctx context.Context, in SaveInput) (*FileInfo, error) {
	if err := upload.ValidateSize(int64(len(in.Content)), MaxInlineContentSize); err != nil {
		if errors.Is(err, upload.ErrFileTooLarge) {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLarge, len(in.Content), MaxInlineContentSize)
		}
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := dynamoItem{
		ID:          uuid.NewString(),
		Filename:    upload.SanitizeFilename(in.Filename),
		ContentType: upload.DetectContentType(in.Content),
		Size:        int64(len(in.Content)),
		Checksum:    upload.Checksum(in.Content),
		Content:     in.Content,
		Tags:        in.Tags,
		Version:     1,
		Active:      true,
		CreatedAt:   now.Unix(),
		UpdatedAt:   now.Unix(),
	}

	data, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                data,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("%w: id %s", ErrAlreadyExists, item.ID)
		}
		return nil, classifyDynamoError(err, "save file")
	}

	return item.fileInfo(), nil
}

// Get returns metadata for an active file.
func (s *DynamoStore) Get(ctx context.Context, id string) (*FileInfo, error) {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return item.fileInfo(), nil
}

func (s *DynamoStore) getItem(ctx context.Context, id string) (*dynamoItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, classifyDynamoError(err, "get file")
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	// Soft-deleted records are invisible to readers.
	if !item.Active {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &item, nil
}

// List returns a page of active files via a table scan. The cursor wraps the
// scan's last evaluated key.
func (s *DynamoStore) List(ctx context.Context, p ListParams) (*Page, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		Limit:            aws.Int32(normalizeLimit(p.Limit)),
		FilterExpression: aws.String("active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
		// Content stays in the table; listings only carry metadata.
		// size is a DynamoDB reserved word, hence the placeholder.
		ProjectionExpression: aws.String("id, filename, content_type, #size, checksum, tags, version, active, created_at, updated_at"),
		ExpressionAttributeNames: map[string]string{
			"#size": "size",
		},
	}

	if p.Cursor != "" {
		startKey, err := decodeScanCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, classifyDynamoError(err, "list files")
	}

	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}

	page := &Page{Files: make([]FileInfo, 0, len(items))}
	for _, item := range items {
		page.Files = append(page.Files, *item.fileInfo())
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.NextCursor = encodeScanCursor(out.LastEvaluatedKey)
	}
	return page, nil
}

// Download returns the inline content of an active file.
func (s *DynamoStore) Download(ctx context.Context, id string) (*Download, error) {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Download{
		Info:    item.fileInfo(),
		Content: item.Content,
	}, nil
}

// UpdateTags replaces the file's tags and bumps the version counter in one
// conditional update.
func (s *DynamoStore) UpdateTags(ctx context.Context, id string, tags map[string]string) (*FileInfo, error) {
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}

	tagsAttr, err := attributevalue.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET tags = :tags, version = version + :one, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tags":   tagsAttr,
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":now":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.now().UTC().Unix())},
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, classifyDynamoError(err, "update tags")
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item.fileInfo(), nil
}

// Delete soft-deletes: the record stays in the table with active=false.
func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET active = :inactive, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inactive": &types.AttributeValueMemberBOOL{Value: false},
			":active":   &types.AttributeValueMemberBOOL{Value: true},
			":now":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.now().UTC().Unix())},
		},
	})
	if err != nil {
		return classifyDynamoError(err, "delete file")
	}
	return nil
}

// Ping verifies the table exists and is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return classifyDynamoError(err, "describe table")
	}
	return nil
}

// encodeScanCursor packs a scan's last evaluated key into an opaque token.
// The key of this table is the id string attribute only.
func encodeScanCursor(key map[string]types.AttributeValue) string {
	idAttr, ok := key["id"].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(idAttr.Value))
}

func decodeScanCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: string(raw)},
	}, nil
}
