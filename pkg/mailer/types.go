package mailer

import "fmt"

// Tags are provider tags. Presence-only tags use struct{}{} values; Resend
// sends them as name="true".
type Tags map[string]any

// SimpleTags creates presence-only tags from a list of tag names.
func SimpleTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, n := range names {
		t[n] = struct{}{}
	}
	return t
}

// Recipient formats a name and email into RFC 5322 address format.
// Returns "Name <email>" if name is provided, otherwise just email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// Receipt is the provider acknowledgement of an accepted email.
type Receipt struct {
	ID       string // Provider message id
	Provider string
}

// Email is a fully rendered message ready for a provider.
type Email struct {
	Headers map[string]string
	Tags    Tags
	Subject string
	HTML    string
	Text    string // Plain text alternative
	From    string // Overrides the provider default sender
	ReplyTo string
	To      []string
}
