package notify

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// Contact is the recipient of a templated notification. Either channel may
// be empty; at least one must be set.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c Contact) HasPhone() bool { return strings.TrimSpace(c.Phone) != "" }

func (c Contact) HasEmail() bool { return strings.TrimSpace(c.Email) != "" }

// Company is the auto-service business sending the notification.
type Company struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Website string `json:"website,omitempty"`
	// IANA zone used to render dates, UTC when empty.
	TimeZone string `json:"time_zone,omitempty"`
}

// Location returns the company time zone, falling back to UTC.
func (c Company) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Car identifies the customer vehicle.
type Car struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	VIN          string `json:"vin,omitempty"`
	Mileage      int    `json:"mileage,omitempty"`
}

// String renders "2019 Toyota Corolla (AB123C)" leaving out unknown parts.
func (c Car) String() string {
	var parts []string
	if c.Year > 0 {
		parts = append(parts, fmt.Sprint(c.Year))
	}
	if c.Make != "" {
		parts = append(parts, c.Make)
	}
	if c.Model != "" {
		parts = append(parts, c.Model)
	}
	s := strings.Join(parts, " ")
	if c.LicensePlate != "" {
		if s == "" {
			return c.LicensePlate
		}
		s += " (" + c.LicensePlate + ")"
	}
	return s
}

func (c Car) empty() bool {
	return c.Make == "" && c.Model == "" && c.LicensePlate == "" && c.VIN == ""
}
