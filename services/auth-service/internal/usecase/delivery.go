package usecase

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// DeliveryRequest carries a freshly issued reset token to its owner.
type DeliveryRequest struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// DeliveryResult is returned by a delivery. DevToken is only set by
// deliveries meant for local development.
type DeliveryResult struct {
	DevToken string
}

// ResetDelivery sends reset tokens to account owners.
type ResetDelivery interface {
	Deliver(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error)
}

type htmlMailer interface {
	SendHTML(to []string, subject, htmlBody, textBody string) error
}

type emailDelivery struct {
	mailer   htmlMailer
	resetURL string
}

// NewEmailDelivery mails a reset link built from resetURL.
func NewEmailDelivery(mailer htmlMailer, resetURL string) ResetDelivery {
	return &emailDelivery{mailer: mailer, resetURL: resetURL}
}

func (d *emailDelivery) Deliver(_ context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	resetLink := buildResetLink(d.resetURL, req.Token)
	expiresIn := time.Until(req.ExpiresAt).Round(time.Minute)

	escaped := html.EscapeString(resetLink)
	htmlBody := fmt.Sprintf(`
		<p>Hi,</p>
		<p>We received a request to reset the password for your account.</p>
		<p>If you made this request, please click the link below to create a new password:</p>

		<p><a href="%s">%s</a></p>

		<p>This link will expire in %s and can only be used once.</p>
		<p>If you did not request a password reset, you can safely ignore this email.</p>
	`, escaped, escaped, expiresIn)

	textBody := fmt.Sprintf(
		"We received a request to reset the password for your account.\n\n"+
			"Open this link to choose a new password:\n%s\n\n"+
			"The link expires in %s and can only be used once.\n",
		resetLink, expiresIn,
	)

	if err := d.mailer.SendHTML([]string{req.Email}, "Password Reset Request", htmlBody, textBody); err != nil {
		return nil, err
	}

	return &DeliveryResult{}, nil
}

type devDelivery struct {
	resetURL string
	logger   *zerolog.Logger
}

// NewDevDelivery logs the reset link instead of sending it and hands the
// token back to the caller.
func NewDevDelivery(resetURL string, logger *zerolog.Logger) ResetDelivery {
	return &devDelivery{resetURL: resetURL, logger: logger}
}

func (d *devDelivery) Deliver(_ context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	d.logger.Info().
		Str("email", req.Email).
		Str("reset_link", buildResetLink(d.resetURL, req.Token)).
		Time("expires_at", req.ExpiresAt).
		Msg("password reset link (development delivery)")

	return &DeliveryResult{DevToken: req.Token}, nil
}

func buildResetLink(resetURL, token string) string {
	u, err := url.Parse(resetURL)
	if err != nil || resetURL == "" {
		return fmt.Sprintf("%s?token=%s", resetURL, url.QueryEscape(token))
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String()
}
