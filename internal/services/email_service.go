package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient        *ses.Client
	fromAddress      string
	verificationBase string
	resetBase        string
	logger           *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, verificationBase, resetBase string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:        ses.NewFromConfig(cfg),
		fromAddress:      fromAddress,
		verificationBase: verificationBase,
		resetBase:        resetBase,
		logger:           logger,
	}, nil
}

// SendVerificationEmail sends a verification link to the user
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s?token=%s&email=%s", s.verificationBase, token, email)

	textBody := fmt.Sprintf(`Verify Your Email Address

Thank you for creating an account. To complete your registration, please verify your email address by opening the link below:

%s

This link expires soon and only the most recently requested link works.

If you didn't sign up for this account, you can ignore this email.
`, link)

	htmlBody := fmt.Sprintf(`<html><body>
<h1>Verify Your Email Address</h1>
<p>Thank you for creating an account. To complete your registration, please verify your email address:</p>
<p><a href="%s">Verify Email Address</a></p>
<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
<p>If you didn't sign up for this account, you can ignore this email.</p>
</body></html>`, link, link)

	return s.send(ctx, email, "Verify your email address", textBody, htmlBody)
}

// SendPasswordResetEmail sends a password reset link to the user
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s?token=%s&email=%s", s.resetBase, token, email)

	textBody := fmt.Sprintf(`Reset Your Password

We received a request to reset your password. Open the link below to choose a new one:

%s

This link expires soon and can be used once. If you didn't request a reset, you can ignore this email and your password will stay unchanged.
`, link)

	htmlBody := fmt.Sprintf(`<html><body>
<h1>Reset Your Password</h1>
<p>We received a request to reset your password:</p>
<p><a href="%s">Reset Password</a></p>
<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
<p>This link expires soon and can be used once. If you didn't request a reset, you can ignore this email.</p>
</body></html>`, link, link)

	return s.send(ctx, email, "Reset your password", textBody, htmlBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
