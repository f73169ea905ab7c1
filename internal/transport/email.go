package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

// UserReader resolves the recipient's email address.
type UserReader interface {
	Get(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// sesAPI is the slice of the SES client the email transport uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Email delivers through AWS SES when the email selector is chosen.
type Email struct {
	client sesAPI
	users  UserReader
	from   string
	logger *zap.Logger
}

// EmailConfig holds the AWS settings for the email transport.
type EmailConfig struct {
	Region    string
	FromEmail string
}

// NewEmail creates the email transport against AWS SES.
func NewEmail(ctx context.Context, cfg EmailConfig, users UserReader, logger *zap.Logger) (*Email, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SES: %w", err)
	}

	return &Email{
		client: ses.NewFromConfig(awsCfg),
		users:  users,
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// NewEmailWithClient wires an explicit SES client, used by tests.
func NewEmailWithClient(client sesAPI, users UserReader, from string, logger *zap.Logger) *Email {
	return &Email{client: client, users: users, from: from, logger: logger}
}

func (t *Email) Channel() db.Channel { return db.ChannelEmail }

func (t *Email) Send(ctx context.Context, userID uuid.UUID, msg Message) Result {
	user, err := t.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Skipped(db.ChannelEmail, ReasonNoEmail)
		}
		return Failed(db.ChannelEmail, fmt.Errorf("resolve user: %w", err))
	}
	if user.Email == "" {
		return Skipped(db.ChannelEmail, ReasonNoEmail)
	}

	body := msg.Body
	if msg.ActionURL != nil {
		body = fmt.Sprintf("%s\n\n%s", body, *msg.ActionURL)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return Failed(db.ChannelEmail, fmt.Errorf("ses send failed: %w", err))
	}

	t.logger.Debug("email sent",
		zap.String("user_id", userID.String()),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return Delivered(db.ChannelEmail)
}
