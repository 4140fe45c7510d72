package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/BradenHooton/deepshield/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender delivers verification links
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error
}

// sesAPI is the part of the SES client the sender uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailSender sends mail through AWS SES
type SESEmailSender struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESEmailSender loads the default AWS credential chain for region
func NewSESEmailSender(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *SESEmailSender) SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error {
	subject, textBody, htmlBody := verificationEmail(link, expiresAt)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification email via SES",
			slog.String("email", logger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification email sent",
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailSender writes verification mail to the log instead of sending it.
// The link is shown outside production only.
type LogEmailSender struct {
	logger *slog.Logger
	env    string
}

func NewLogEmailSender(logger *slog.Logger, env string) *LogEmailSender {
	return &LogEmailSender{logger: logger, env: env}
}

func (s *LogEmailSender) SendVerificationEmail(ctx context.Context, to, link string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "verification email (log provider)",
		slog.String("email", logger.SanitizedEmail(to)),
		logger.RedactedAttr("link", link, s.env),
		slog.Time("expires_at", expiresAt))
	return nil
}

// verificationEmail renders the subject and both bodies
func verificationEmail(link string, expiresAt time.Time) (subject, text, htmlBody string) {
	subject = "Verify your DeepShield email address"
	expiry := expiresAt.UTC().Format("2 Jan 2006 15:04 MST")

	text = fmt.Sprintf(`Welcome to DeepShield!

Confirm your email address by opening the link below:

%s

The link expires on %s. If you did not create an account you can ignore this message.
`, link, expiry)

	escaped := html.EscapeString(link)
	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h1>Verify your email address</h1>
  <p>Welcome to DeepShield! Confirm your email address to finish setting up your account.</p>
  <p><a href="%s" style="background:#0b5fff;color:#fff;padding:10px 20px;border-radius:4px;text-decoration:none;">Verify email</a></p>
  <p>Or paste this link into your browser:<br><code>%s</code></p>
  <p style="color:#666;font-size:12px;">The link expires on %s. If you did not create an account you can ignore this message.</p>
</body>
</html>
`, escaped, escaped, expiry)

	return subject, text, htmlBody
}
