package mailer

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

var (
	ErrNoRecipients = errors.New("no recipients specified")
	ErrEmptyBody    = errors.New("message has no body")
)

// Message is an outgoing email. When both bodies are set the HTML part is
// the preferred alternative.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

// Config is read from the SMTP_* environment variables.
type Config struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"      envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"CRM"`
	// SSL enables implicit TLS, usually on port 465.
	SSL bool `env:"SSL"`
}

// Mailer sends email through one SMTP relay.
type Mailer struct {
	cfg    *Config
	dialer *gomail.Dialer
}

// NewMailer creates a Mailer from the environment and stops the process if
// the configuration is unusable.
func NewMailer(logger *zerolog.Logger) *Mailer {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load mailer configuration")
	}

	return New(cfg)
}

// LoadConfig parses and validates the SMTP_* variables.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "SMTP_"})
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func New(cfg *Config) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL

	return &Mailer{cfg: cfg, dialer: dialer}
}

// Send delivers msg. The SMTP connection is opened per call.
func (m *Mailer) Send(msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if msg.Text == "" && msg.HTML == "" {
		return ErrEmptyBody
	}

	return m.dialer.DialAndSend(m.compose(msg))
}

// SendHTML sends an HTML email with a plain text fallback.
func (m *Mailer) SendHTML(to []string, subject, htmlBody, textBody string) error {
	return m.Send(Message{
		To:      to,
		Subject: subject,
		Text:    textBody,
		HTML:    htmlBody,
	})
}

func (m *Mailer) compose(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		gm.SetBody("text/html", msg.HTML)
	default:
		gm.SetBody("text/plain", msg.Text)
	}

	return gm
}

func (c *Config) validate() error {
	if c.Host == "" {
		return errors.New("missing SMTP_HOST environment variable")
	}
	if c.Port <= 0 {
		return errors.New("missing SMTP_PORT environment variable")
	}
	if c.From == "" {
		return errors.New("missing SMTP_FROM environment variable")
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.New("SMTP_USERNAME and SMTP_PASSWORD must be set together")
	}

	return nil
}
