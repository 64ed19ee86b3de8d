// Package sqs implements the job queue on Amazon SQS.
package sqs

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
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/queue"
)

// Config options for the SQS queue.
type Config struct {
	Region          string // AWS region
	QueueName       string // Queue name, resolved to a URL on first use
	QueueURL        string // Optional explicit queue URL, skips resolution
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint (e.g. LocalStack)

	// WaitTime is the long-poll interval for Receive (default: 20s).
	WaitTime time.Duration

	// VisibilityTimeout hides received messages from other consumers
	// until deleted or timed out (default: 30s).
	VisibilityTimeout time.Duration

	// SendTimeout bounds one Enqueue call (default: 5s). A timed-out
	// send is reported as a failed enqueue, never retried in-line.
	SendTimeout time.Duration
}

// Queue is an Amazon SQS implementation of queue.JobQueue.
type Queue struct {
	client            *awssqs.Client
	queueName         string
	waitTime          time.Duration
	visibilityTimeout time.Duration
	sendTimeout       time.Duration

	// The queue URL is resolved lazily: a missing queue at startup must
	// not prevent the service from running. Resolution is retried on
	// demand and the result cached once it succeeds.
	mu       sync.Mutex
	queueURL string
}

// New creates an SQS-backed job queue.
func New(cfg Config) (*Queue, error) {
	if cfg.QueueName == "" && cfg.QueueURL == "" {
		return nil, errors.New("queue name or queue URL is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Queue{
		client:            client,
		queueName:         cfg.QueueName,
		queueURL:          cfg.QueueURL,
		waitTime:          cfg.WaitTime,
		visibilityTimeout: cfg.VisibilityTimeout,
		sendTimeout:       cfg.SendTimeout,
	}, nil
}

// resolveQueueURL looks up the queue URL by name. Pure with respect to the
// queue state: no caching, no retries.
func resolveQueueURL(ctx context.Context, client *awssqs.Client, name string) (string, error) {
	out, err := client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue URL for %q: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// url returns the cached queue URL, resolving it on first use. Failure to
// resolve degrades to ErrQueueUnavailable so callers can skip the enqueue
// instead of failing the upload.
func (q *Queue) url(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queueURL != "" {
		return q.queueURL, nil
	}

	resolved, err := resolveQueueURL(ctx, q.client, q.queueName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", picvault.ErrQueueUnavailable, err)
	}
	q.queueURL = resolved
	return resolved, nil
}

// Enqueue publishes one thumbnail job as a JSON message.
func (q *Queue) Enqueue(ctx context.Context, job picvault.ThumbnailJob) error {
	ctx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	defer cancel()

	queueURL, err := q.url(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return &picvault.QueueError{Op: "enqueue", Err: err}
	}

	_, err = q.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", picvault.ErrQueueUnavailable, err)
	}
	return nil
}

// maxReceiveBatch is the most messages SQS returns from one
// ReceiveMessage call; larger values are rejected by the API.
const maxReceiveBatch = 10

// clampBatch keeps the requested batch size within SQS limits.
func clampBatch(n int) int32 {
	if n < 1 {
		return 1
	}
	if n > maxReceiveBatch {
		return maxReceiveBatch
	}
	return int32(n)
}

// Receive long-polls for up to max messages.
func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	queueURL, err := q.url(ctx)
	if err != nil {
		return nil, err
	}

	out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: clampBatch(max),
		WaitTimeSeconds:     int32(q.waitTime / time.Second),
		VisibilityTimeout:   int32(q.visibilityTimeout / time.Second),
	})
	if err != nil {
		return nil, &picvault.QueueError{Op: "receive", Err: err}
	}

	messages := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		if m.Body == nil || m.ReceiptHandle == nil {
			continue
		}
		var job picvault.ThumbnailJob
		if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
			// Poison message: settle it so it does not redeliver forever.
			_, _ = q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
				QueueUrl:      aws.String(queueURL),
				ReceiptHandle: m.ReceiptHandle,
			})
			continue
		}
		messages = append(messages, queue.Message{Job: job, Handle: *m.ReceiptHandle})
	}
	return messages, nil
}

// Delete settles one delivery by receipt handle.
func (q *Queue) Delete(ctx context.Context, handle string) error {
	queueURL, err := q.url(ctx)
	if err != nil {
		return err
	}
	_, err = q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return &picvault.QueueError{Op: "delete", Err: err}
	}
	return nil
}
