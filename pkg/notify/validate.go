package notify

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidPhone reports whether phone is an E.164 number such as +15550001111.
func ValidPhone(phone string) bool {
	return e164.MatchString(phone)
}

// ValidEmail reports whether addr is a single bare RFC 5322 address.
func ValidEmail(addr string) bool {
	if addr == "" || strings.ContainsAny(addr, "<>") {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

func requireText(kind queue.Kind, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(kind, field, "is required")
	}
	return nil
}

// validateContact requires at least one valid channel. A channel that is
// present must be well formed.
func validateContact(kind queue.Kind, c Contact) error {
	if !c.HasPhone() && !c.HasEmail() {
		return invalid(kind, "recipient", "needs a phone or an email")
	}
	if c.HasPhone() && !ValidPhone(c.Phone) {
		return invalid(kind, "recipient.phone", "must be in E.164 format")
	}
	if c.HasEmail() && !ValidEmail(c.Email) {
		return invalid(kind, "recipient.email", "must be a valid email address")
	}
	return nil
}

func validateCompany(kind queue.Kind, c Company) error {
	if err := requireText(kind, "company.name", c.Name); err != nil {
		return err
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return invalid(kind, "company.time_zone", "is not a known IANA time zone")
		}
	}
	return nil
}
