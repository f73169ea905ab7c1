package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

// SubscriptionReader resolves a user's registered push endpoint.
type SubscriptionReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.PushSubscription, error)
}

// snsAPI is the slice of the SNS client the push transport uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Push delivers to the recipient's registered SNS platform endpoint.
// No subscription means a skip, not a failure; an expired or invalid
// endpoint is a non-retriable, non-fatal failure (logged, dropped).
type Push struct {
	client snsAPI
	subs   SubscriptionReader
	logger *zap.Logger
}

// PushConfig holds the AWS settings for the push transport.
type PushConfig struct {
	Region string
}

// NewPush creates the push transport against AWS SNS.
func NewPush(ctx context.Context, cfg PushConfig, subs SubscriptionReader, logger *zap.Logger) (*Push, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}

	return &Push{
		client: sns.NewFromConfig(awsCfg),
		subs:   subs,
		logger: logger,
	}, nil
}

// NewPushWithClient wires an explicit SNS client, used by tests.
func NewPushWithClient(client snsAPI, subs SubscriptionReader, logger *zap.Logger) *Push {
	return &Push{client: client, subs: subs, logger: logger}
}

func (t *Push) Channel() db.Channel { return db.ChannelPush }

// pushPayload is the JSON body published to the platform endpoint.
type pushPayload struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActionURL string `json:"action_url,omitempty"`
}

func (t *Push) Send(ctx context.Context, userID uuid.UUID, msg Message) Result {
	sub, err := t.subs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Skipped(db.ChannelPush, ReasonNoSubscription)
		}
		return Failed(db.ChannelPush, fmt.Errorf("resolve subscription: %w", err))
	}

	payload := pushPayload{
		Title:   msg.Title,
		Message: msg.Body,
	}
	if msg.ActionURL != nil {
		payload.ActionURL = *msg.ActionURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Failed(db.ChannelPush, fmt.Errorf("marshal push payload: %w", err))
	}

	result, err := t.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(sub.EndpointARN),
		Message:   aws.String(string(body)),
	})
	if err != nil {
		return Failed(db.ChannelPush, fmt.Errorf("sns publish failed: %w", err))
	}

	t.logger.Debug("push sent",
		zap.String("user_id", userID.String()),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return Delivered(db.ChannelPush)
}
