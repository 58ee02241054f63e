// Package sqsnotify publishes successful lifetime access grants to an SQS queue so
// downstream workers (welcome email, analytics) can react without sitting on
// the webhook's critical path.
package sqsnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// Sender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type Sender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// GrantMessage is the JSON body of each queued message.
type GrantMessage struct {
	Provider     string    `json:"provider"`
	EventID      string    `json:"event_id,omitempty"`
	EventType    string    `json:"event_type"`
	SessionID    string    `json:"session_id"`
	MatchedBy    string    `json:"matched_by"`
	AccountIDs   []string  `json:"account_ids"`
	NewlyGranted int       `json:"newly_granted"`
	OccurredAt   time.Time `json:"occurred_at,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// Config configures a Publisher.
type Config struct {
	QueueURL string

	// SkipRepeats drops deliveries that granted nothing new.
	SkipRepeats bool

	Logger entitlement.Logger
}

// Publisher sends a GrantMessage per successful grant.
type Publisher struct {
	client      Sender
	queueURL    string
	fifo        bool
	skipRepeats bool
	logger      entitlement.Logger
	now         func() time.Time
}

// NewPublisher creates a Publisher targeting cfg.QueueURL.
func NewPublisher(client Sender, cfg Config) (*Publisher, error) {
	if client == nil || strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, fmt.Errorf("%w: sqs client and queue url are required", billing.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}
	return &Publisher{
		client:      client,
		queueURL:    cfg.QueueURL,
		fifo:        strings.HasSuffix(cfg.QueueURL, ".fifo"),
		skipRepeats: cfg.SkipRepeats,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// NewFromEnvironment builds a Publisher on the default AWS credential chain.
func NewFromEnvironment(ctx context.Context, region string, cfg Config) (*Publisher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewPublisher(sqs.NewFromConfig(awsCfg), cfg)
}

// Callback returns the function to set as billing.Config.WebhookCallback.
func (p *Publisher) Callback() billing.WebhookCallback {
	return p.Publish
}

// Publish serializes event and sends it to the queue.
// FIFO queues get the session id as group and the event id as deduplication
// id, so a redelivered webhook does not enqueue twice.
func (p *Publisher) Publish(ctx context.Context, event billing.WebhookEvent) error {
	if p.skipRepeats && event.NewlyGranted == 0 {
		return nil
	}

	msg := GrantMessage{
		Provider:     event.Provider,
		EventID:      event.EventID,
		EventType:    event.EventType,
		SessionID:    event.SessionID,
		MatchedBy:    event.MatchedBy,
		AccountIDs:   event.AccountIDs,
		NewlyGranted: event.NewlyGranted,
		OccurredAt:   event.EventTimestamp,
		PublishedAt:  p.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("grant publisher: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.EventType)},
		},
	}
	if p.fifo {
		dedup := event.EventID
		if dedup == "" {
			dedup = event.SessionID
		}
		input.MessageGroupId = aws.String(event.SessionID)
		input.MessageDeduplicationId = aws.String(dedup)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("grant publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	fields := []entitlement.Field{
		{Key: "session_id", Value: event.SessionID},
		{Key: "accounts", Value: len(event.AccountIDs)},
	}
	if out != nil && out.MessageId != nil {
		fields = append(fields, entitlement.Field{Key: "message_id", Value: *out.MessageId})
	}
	p.logger.Info("Grant published", fields...)
	return nil
}
