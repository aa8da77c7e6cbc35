// Package queue publishes Tamasha domain events to SQS for downstream
// consumers such as the catalog cache invalidator.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker/v2"

	"tamasha/internal/config"
	"tamasha/internal/types"
)

// EventContentMetadataRefreshed is the event_type attribute of refresh events.
const EventContentMetadataRefreshed = "content.metadata_refreshed"

const (
	// publishTripAfter consecutive send failures open the breaker.
	publishTripAfter = 3
	// publishOpenTimeout is how long sends are skipped once the breaker opens.
	publishOpenTimeout = 30 * time.Second
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ContentEventPublisher sends content events to the content-events queue.
//
// Sends go through a circuit breaker. Event delivery is best-effort: the
// refresher logs a failed publish and moves on, so when the queue is
// unreachable the breaker opens after a few failures and the rest of the
// batch skips the SQS round trip instead of waiting on each one.
type ContentEventPublisher struct {
	client   SQSSender
	queueURL string
	breaker  *gobreaker.CircuitBreaker[*sqs.SendMessageOutput]
	logger   *slog.Logger
}

// NewContentEventPublisher returns a publisher for awsCfg.ContentEventsQueueURL,
// or nil when no queue is configured. Callers treat a nil publisher as
// "publishing disabled".
func NewContentEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ContentEventPublisher {
	if awsCfg.ContentEventsQueueURL == "" || client == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*sqs.SendMessageOutput](gobreaker.Settings{
		Name:        "sqs-content-events",
		MaxRequests: 1,
		Timeout:     publishOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= publishTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publisher breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &ContentEventPublisher{
		client:   client,
		queueURL: awsCfg.ContentEventsQueueURL,
		breaker:  breaker,
		logger:   logger,
	}
}

// PublishContentRefreshed serializes evt to JSON and sends it with
// event_type and content_id message attributes.
func (p *ContentEventPublisher) PublishContentRefreshed(ctx context.Context, evt types.ContentRefreshedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ContentRefreshedEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventContentMetadataRefreshed),
			},
			"content_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(evt.ContentID, 10)),
			},
		},
	}

	_, err = p.breaker.Execute(func() (*sqs.SendMessageOutput, error) {
		return p.client.SendMessage(ctx, input)
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send %s for content %d: %w", EventContentMetadataRefreshed, evt.ContentID, err)
	}

	p.logger.DebugContext(ctx, "content event sent",
		"event_type", EventContentMetadataRefreshed,
		"event_id", evt.EventID,
		"content_id", evt.ContentID,
	)
	return nil
}
