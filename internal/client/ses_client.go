package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/models"
)

var ErrSESNotConfigured = errors.New("ses is not configured")

const charsetUTF8 = "UTF-8"

// sesAPI is the subset of *sesv2.Client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESClient sends transactional mail through Amazon SES v2 with static
// credentials.
type SESClient struct {
	api              sesAPI
	source           string
	configurationSet string
	logger           *zap.Logger
}

func NewSESClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SESClient, error) {
	sesConfig := cfg.SES
	if !sesConfig.Enabled() {
		return nil, ErrSESNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(sesConfig.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sesConfig.AccessKeyID, sesConfig.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("SES client initialized",
		zap.String("region", sesConfig.Region),
		zap.String("from", sesConfig.FromEmail),
		zap.Bool("configuration_set", sesConfig.ConfigurationSet != ""),
	)

	return newSESClient(sesv2.NewFromConfig(awsCfg), sesConfig, logger), nil
}

func newSESClient(api sesAPI, cfg config.SESConfig, logger *zap.Logger) *SESClient {
	return &SESClient{
		api:              api,
		source:           fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		configurationSet: cfg.ConfigurationSet,
		logger:           logger,
	}
}

// Send delivers one rendered message and returns the SES message id.
func (c *SESClient) Send(ctx context.Context, email models.Email) (string, error) {
	if len(email.To) == 0 {
		return "", errors.New("email has no recipients")
	}

	body := &types.Body{}
	if email.HTML != "" {
		body.Html = &types.Content{Data: aws.String(email.HTML), Charset: aws.String(charsetUTF8)}
	}
	if email.Text != "" {
		body.Text = &types.Content{Data: aws.String(email.Text), Charset: aws.String(charsetUTF8)}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.source),
		Destination:      &types.Destination{ToAddresses: email.To},
		ReplyToAddresses: email.ReplyTo,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charsetUTF8)},
				Body:    body,
			},
		},
	}
	if c.configurationSet != "" {
		input.ConfigurationSetName = aws.String(c.configurationSet)
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	c.logger.Debug("SES email sent",
		zap.String("message_id", messageID),
		zap.String("subject", email.Subject),
	)
	return messageID, nil
}

// HealthCheck confirms the credentials can read the account's sending status.
func (c *SESClient) HealthCheck(ctx context.Context) error {
	out, err := c.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses get account: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("ses sending is disabled for this account")
	}
	return nil
}
