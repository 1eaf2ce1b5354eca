package resend

import "time"

// Config holds Resend email provider configuration, populated by caarlos0/env.
type Config struct {
	APIKey      string        `env:"RESEND_API_KEY"`
	SenderEmail string        `env:"RESEND_FROM_EMAIL"`
	SenderName  string        `env:"RESEND_FROM_NAME"`
	Timeout     time.Duration `env:"RESEND_TIMEOUT" envDefault:"15s"`
}

// From returns the formatted default sender.
func (c Config) From() string {
	if c.SenderName != "" {
		return c.SenderName + " <" + c.SenderEmail + ">"
	}
	return c.SenderEmail
}
