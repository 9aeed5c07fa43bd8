// Package views holds the customer, seller and admin screens as plain Go
// state built on the orchestrator.
package views

import (
	"ms-rental/internal/booking"
	"ms-rental/internal/models"
	"ms-rental/internal/orchestrator"
	"ms-rental/internal/pricing"
)

type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionPay      Action = "pay"
)

// BookingRow is one line of a booking table.
type BookingRow struct {
	Booking     models.Booking
	StatusLabel string
	Total       string
	Actions     []Action
	// Busy disables every action while a mutation of the booking is in flight.
	Busy bool
}

func actionFor(to models.BookingStatus) (Action, bool) {
	switch to {
	case models.StatusAccepted:
		return ActionAccept, true
	case models.StatusDeclined:
		return ActionDecline, true
	case models.StatusCancelled:
		return ActionCancel, true
	case models.StatusCompleted:
		return ActionComplete, true
	}
	return "", false
}

func rowsFor(o *orchestrator.Orchestrator, bookings []models.Booking, withActions bool) []BookingRow {
	snap := o.Snapshot()
	now := o.Now()
	rows := make([]BookingRow, 0, len(bookings))
	for _, b := range bookings {
		row := BookingRow{
			Booking:     b,
			StatusLabel: b.StatusLabel(),
			Total:       pricing.FormatCents(b.TotalPrice, b.Currency),
			Busy:        o.Busy(b.ID),
		}
		if withActions {
			for _, to := range booking.AllowedTransitions(b.Status, o.Role()) {
				if booking.Ready(b, to, now) != nil {
					continue
				}
				a, ok := actionFor(to)
				if ok && a == ActionDecline && o.Role() == models.RoleCustomer {
					continue
				}
				if ok {
					row.Actions = append(row.Actions, a)
				}
			}
			if o.Role() == models.RoleCustomer && b.Status == models.StatusAccepted && !snap.Paid[b.ID] {
				row.Actions = append(row.Actions, ActionPay)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// HasAction reports whether the row offers a.
func (r BookingRow) HasAction(a Action) bool {
	for _, x := range r.Actions {
		if x == a {
			return true
		}
	}
	return false
}
