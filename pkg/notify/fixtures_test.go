package notify_test

import (
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
)

var (
	company = notify.Company{Name: "Downtown Auto", Phone: "+15550009999", TimeZone: "America/New_York"}
	contact = notify.Contact{Name: "Ann Lee", Phone: "+15550001111", Email: "ann@example.com"}
	car     = notify.Car{Make: "Toyota", Model: "Corolla", Year: 2019, LicensePlate: "AB123C"}
)

func reminder(id string) notify.MaintenanceReminder {
	due := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	return notify.MaintenanceReminder{
		ReminderID: id,
		Car:        car,
		Type:       "oil_change",
		DueDate:    &due,
		Recipient:  contact,
		Company:    company,
	}
}

func booking(id string) notify.BookingConfirmation {
	return notify.BookingConfirmation{
		AppointmentID:    id,
		ConfirmationCode: "K7Q2",
		ScheduledAt:      time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC),
		Service:          "Brake inspection",
		Car:              car,
		Recipient:        contact,
		Company:          company,
	}
}

func order(id string) notify.OrderNotification {
	return notify.OrderNotification{
		OrderID:     id,
		OrderNumber: "RO-1001",
		Status:      notify.OrderStatusReady,
		TotalCents:  12550,
		Currency:    "USD",
		Car:         car,
		Recipient:   contact,
		Company:     company,
	}
}
