package transport

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/cadencehq/cadence/internal/domain"
)

// SESAPI is the slice of the SES v2 client the transport uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for the SES transport
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FromAddress     string
	FromName        string
}

// SESTransport sends email through Amazon SES v2.
type SESTransport struct {
	client SESAPI
	from   string
}

func NewSESTransport(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESTransport{
		client: sesv2.NewFromConfig(awsCfg),
		from:   formatFrom(cfg.FromName, cfg.FromAddress),
	}, nil
}

// NewSESTransportWithClient is used by tests to inject a fake SES client.
func NewSESTransportWithClient(client SESAPI, fromName, fromAddress string) *SESTransport {
	return &SESTransport{client: client, from: formatFrom(fromName, fromAddress)}
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// Send delivers one message and classifies the result.
func (t *SESTransport) Send(ctx context.Context, msg Message) domain.DeliveryOutcome {
	_, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body)},
				},
			},
		},
	})
	if err != nil {
		outcome := classifySESError(err)
		log.Printf("transport: send to=%s failed status=%s detail=%s", msg.To, outcome.Status, outcome.Detail)
		return outcome
	}

	return domain.DeliveryOutcome{Status: domain.OutcomeSent}
}

// classifySESError maps an SES error onto the outcome taxonomy. Unknown
// errors classify as transient so a provider hiccup never permanently
// suppresses a contact.
func classifySESError(err error) domain.DeliveryOutcome {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return domain.DeliveryOutcome{Status: domain.OutcomeRejected, Detail: "ses: message rejected"}
	}

	// A misconfigured mail-from domain is our problem, not the
	// recipient's. Keep it transient so nobody gets suppressed over it.
	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &notVerified) {
		return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: mail-from domain not verified"}
	}

	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: throttled"}
	}

	var overLimit *types.LimitExceededException
	if errors.As(err, &overLimit) {
		return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: sending limit exceeded"}
	}

	var paused *types.SendingPausedException
	if errors.As(err, &paused) {
		return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: account sending paused"}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: request timed out"}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return domain.DeliveryOutcome{
			Status: domain.OutcomeFailedTransient,
			Detail: "ses: " + apiErr.ErrorCode(),
		}
	}

	return domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "ses: " + err.Error()}
}
