package render

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
)

const (
	dateLayout     = "January 2, 2006"
	dateTimeLayout = "Mon, Jan 2 at 3:04 PM MST"
)

// funcs are available to every template and frontmatter field.
func funcs() template.FuncMap {
	return template.FuncMap{
		"date":     formatDate,
		"datetime": formatDateTime,
		"humanize": humanize,
		"title":    title,
		"money":    money,
		"mileage":  mileage,
	}
}

// formatDate renders t as a calendar date in the company time zone.
func formatDate(c notify.Company, t time.Time) string {
	return t.In(c.Location()).Format(dateLayout)
}

func formatDateTime(c notify.Company, t time.Time) string {
	return t.In(c.Location()).Format(dateTimeLayout)
}

// humanize turns identifiers like "ready_for_pickup" into "ready for pickup".
func humanize(v any) string {
	s := strings.TrimSpace(fmt.Sprint(v))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.ToLower(s)
}

func title(v any) string {
	// Casers keep state and are not safe for concurrent use.
	return cases.Title(language.English).String(humanize(v))
}

// money formats minor units as "1,234.50 USD".
func money(cents int64, currency string) string {
	p := message.NewPrinter(language.English)
	amount := p.Sprintf("%.2f", float64(cents)/100)
	if currency == "" {
		return amount
	}
	return amount + " " + strings.ToUpper(currency)
}

// mileage groups thousands: 45000 renders as "45,000".
func mileage(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
