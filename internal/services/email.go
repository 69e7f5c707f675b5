// AWS SES implementation of [Notifier]
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"moodify/internal/formatter"
	"moodify/internal/models"
	"moodify/internal/shared"
)

// sesAPI is the slice of the SES v2 client the notifier uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends the playlist reminder email through AWS SES.
type SESNotifier struct {
	client    sesAPI
	sender    string
	recipient string
	retry     shared.RetryPolicy
	now       func() time.Time
}

// SESOption overrides notifier defaults, primarily for tests.
type SESOption func(*SESNotifier)

// WithSESClient replaces the SES client.
func WithSESClient(client sesAPI) SESOption {
	return func(n *SESNotifier) { n.client = client }
}

// WithClock replaces the clock used in the email body.
func WithClock(now func() time.Time) SESOption {
	return func(n *SESNotifier) { n.now = now }
}

// NewSESNotifier creates a notifier from validated email configuration.
// The AWS credential chain (environment, instance role) supplies API access.
func NewSESNotifier(ctx context.Context, cfg shared.EmailConfig, retry shared.RetryPolicy, opts ...SESOption) (*SESNotifier, error) {
	if cfg.Sender == "" || cfg.Recipient == "" {
		return nil, fmt.Errorf("%w: missing sender or recipient address", shared.ErrConfiguration)
	}

	n := &SESNotifier{
		sender:    cfg.Sender,
		recipient: cfg.Recipient,
		retry:     retry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS configuration: %v", shared.ErrConfiguration, err)
		}
		n.client = sesv2.NewFromConfig(awsCfg)
	}
	return n, nil
}

// SendReminder implements [Notifier]: exactly one outbound email per
// successful call, returning the SES message ID.
func (n *SESNotifier) SendReminder(ctx context.Context, playlist *models.Playlist) (string, error) {
	subject := formatter.ReminderSubject(playlist)
	body := formatter.ReminderBody(playlist, n.now())

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination: &types.Destination{
			ToAddresses: []string{n.recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	}

	var messageID string
	err := n.retry.Do(ctx, func() error {
		out, err := n.client.SendEmail(ctx, input)
		if err != nil {
			return mapSESError(err)
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// mapSESError translates SES failures onto the error taxonomy.
func mapSESError(err error) error {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidRecipient, err)
	}

	var badRequest *types.BadRequestException
	if errors.As(err, &badRequest) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidRecipient, err)
	}

	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		return fmt.Errorf("%w: %v", shared.ErrQuotaExceeded, err)
	}

	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}

	// Network and 5xx failures from the SDK are worth one more try.
	return fmt.Errorf("%w: %v", shared.ErrTransient, err)
}
