package pricing

import (
	"time"

	"ms-rental/internal/models"
)

// Window is a half-open rental interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func WindowOf(b models.Booking) Window {
	return Window{Start: b.StartDate, End: b.EndDate}
}

func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Blocks reports whether a booking in status s holds its car for its window.
// Pending requests never block: several customers may ask for the same dates
// and the first one a seller accepts wins.
func Blocks(s models.BookingStatus) bool {
	return s == models.StatusAccepted || s == models.StatusPaid
}

// Conflicts returns the bookings of existing that block req. A booking whose
// ID equals excludeID is ignored so a booking never conflicts with itself.
func Conflicts(existing []models.Booking, req Window, excludeID string) []models.Booking {
	var out []models.Booking
	for _, b := range existing {
		if b.ID == excludeID || !Blocks(b.Status) {
			continue
		}
		if WindowOf(b).Overlaps(req) {
			out = append(out, b)
		}
	}
	return out
}

func Available(existing []models.Booking, req Window, excludeID string) bool {
	return len(Conflicts(existing, req, excludeID)) == 0
}
