package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/MarcFord/netlog/internal/config"
)

// cloudWatchAPI is the subset of the CloudWatch Logs client we use.
// An interface keeps the backend testable without AWS credentials.
type cloudWatchAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// Factory variable to allow mocking in tests
var cloudWatchClientFactory = func(ctx context.Context, cfg config.Backend) (cloudWatchAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cloudwatchlogs.NewFromConfig(awsCfg), nil
}

// CloudWatchBackend delivers records to an AWS CloudWatch Logs stream.
type CloudWatchBackend struct {
	name      string
	client    cloudWatchAPI
	logGroup  string
	logStream string
	timeout   time.Duration

	mu            sync.Mutex
	sequenceToken *string
}

// NewCloudWatchBackend creates a CloudWatch backend, optionally creating
// the log group and stream when they do not exist.
func NewCloudWatchBackend(cfg config.Backend) (*CloudWatchBackend, error) {
	if cfg.LogGroup == "" || cfg.LogStream == "" {
		return nil, fmt.Errorf("log_group and log_stream are required for CloudWatch backend")
	}

	timeout := cfg.HTTPTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := cloudWatchClientFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := &CloudWatchBackend{
		name:      cfg.Name,
		client:    client,
		logGroup:  cfg.LogGroup,
		logStream: cfg.LogStream,
		timeout:   timeout,
	}

	if cfg.CreateGroup() {
		if err := b.ensureLogGroup(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.CreateStream() {
		if err := b.ensureLogStream(ctx); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (b *CloudWatchBackend) ensureLogGroup(ctx context.Context) error {
	_, err := b.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(b.logGroup),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create log group '%s': %w", b.logGroup, err)
	}
	return nil
}

func (b *CloudWatchBackend) ensureLogStream(ctx context.Context) error {
	_, err := b.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(b.logGroup),
		LogStreamName: aws.String(b.logStream),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create log stream '%s': %w", b.logStream, err)
	}
	return nil
}

// Send serializes the record as JSON and puts it as one log event.
// An invalid sequence token is corrected from the error and retried once.
func (b *CloudWatchBackend) Send(rec map[string]interface{}) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	ts := recordTime(rec).UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.putEvent(ctx, string(payload), ts)
	if err != nil {
		var seqErr *types.InvalidSequenceTokenException
		if errors.As(err, &seqErr) {
			b.sequenceToken = seqErr.ExpectedSequenceToken
			err = b.putEvent(ctx, string(payload), ts)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to put log events: %w", err)
	}
	return nil
}

func (b *CloudWatchBackend) putEvent(ctx context.Context, message string, ts int64) error {
	out, err := b.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(b.logGroup),
		LogStreamName: aws.String(b.logStream),
		SequenceToken: b.sequenceToken,
		LogEvents: []types.InputLogEvent{
			{
				Message:   aws.String(message),
				Timestamp: aws.Int64(ts),
			},
		},
	})
	if err != nil {
		return err
	}
	b.sequenceToken = out.NextSequenceToken
	return nil
}

// Close is a no-op; the CloudWatch client holds no persistent connection.
func (b *CloudWatchBackend) Close() error {
	return nil
}

// Name returns the backend's configured name.
func (b *CloudWatchBackend) Name() string {
	return b.name
}

var _ Backend = (*CloudWatchBackend)(nil)
