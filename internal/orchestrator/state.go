package orchestrator

import (
	"time"

	"ms-rental/internal/models"
)

// Phase is the request lifecycle of one slice.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseFulfilled Phase = "fulfilled"
	PhaseRejected  Phase = "rejected"
)

// Slice names one independently loading part of the state.
type Slice string

const (
	SliceBookings Slice = "bookings"
	SliceBooking  Slice = "booking"
	SlicePayment  Slice = "payment"
	SliceCars     Slice = "cars"
)

var allSlices = []Slice{SliceBookings, SliceBooking, SlicePayment, SliceCars}

type SliceState struct {
	Phase          Phase            `json:"phase"`
	Loading        bool             `json:"loading"`
	Error          string           `json:"error,omitempty"`
	ErrorKind      models.ErrorKind `json:"errorKind,omitempty"`
	SuccessMessage string           `json:"successMessage,omitempty"`
}

// State is the local view of server data. Callers receive copies.
type State struct {
	Bookings []models.Booking                 `json:"bookings"`
	Page     *models.BookingPage              `json:"page,omitempty"`
	Current  *models.Booking                  `json:"current,omitempty"`
	Cars     []models.Car                     `json:"cars"`
	Car      *models.Car                      `json:"car,omitempty"`
	Sessions map[string]models.PaymentSession `json:"sessions"`

	// Paid holds bookings whose payment has been verified.
	Paid   map[string]bool      `json:"paid"`
	Slices map[Slice]SliceState `json:"slices"`

	// seen counts server copies applied per booking.
	seen map[string]uint64
}

func newState() State {
	s := State{
		Sessions: map[string]models.PaymentSession{},
		Paid:     map[string]bool{},
		Slices:   map[Slice]SliceState{},
		seen:     map[string]uint64{},
	}
	for _, sl := range allSlices {
		s.Slices[sl] = SliceState{Phase: PhaseIdle}
	}
	return s
}

func (s State) clone() State {
	out := State{
		Bookings: make([]models.Booking, len(s.Bookings)),
		Cars:     append([]models.Car(nil), s.Cars...),
		Sessions: make(map[string]models.PaymentSession, len(s.Sessions)),
		Paid:     make(map[string]bool, len(s.Paid)),
		Slices:   make(map[Slice]SliceState, len(s.Slices)),
	}
	for i, b := range s.Bookings {
		out.Bookings[i] = b.Clone()
	}
	if s.Page != nil {
		p := *s.Page
		p.Items = make([]models.Booking, len(s.Page.Items))
		for i, b := range s.Page.Items {
			p.Items[i] = b.Clone()
		}
		out.Page = &p
	}
	if s.Current != nil {
		b := s.Current.Clone()
		out.Current = &b
	}
	if s.Car != nil {
		c := *s.Car
		out.Car = &c
	}
	for k, v := range s.Sessions {
		out.Sessions[k] = v
	}
	for k, v := range s.Paid {
		out.Paid[k] = v
	}
	for k, v := range s.Slices {
		out.Slices[k] = v
	}
	return out
}

// find returns the locally known copy of a booking.
func (s *State) find(id string) (models.Booking, bool) {
	if s.Current != nil && s.Current.ID == id {
		return *s.Current, true
	}
	for _, b := range s.Bookings {
		if b.ID == id {
			return b, true
		}
	}
	if s.Page != nil {
		for _, b := range s.Page.Items {
			if b.ID == id {
				return b, true
			}
		}
	}
	return models.Booking{}, false
}

// loaded records a list fetched from the server and brings the open booking
// in line with it.
func (s *State) loaded(bookings []models.Booking) {
	for _, b := range bookings {
		s.seen[b.ID]++
		if s.Current != nil && s.Current.ID == b.ID {
			c := b.Clone()
			s.Current = &c
		}
	}
}

// merge replaces every local copy of b by id. A booking missing from the
// list is prepended.
func (s *State) merge(b models.Booking) {
	s.seen[b.ID]++
	found := false
	for i := range s.Bookings {
		if s.Bookings[i].ID == b.ID {
			s.Bookings[i] = b.Clone()
			found = true
		}
	}
	if !found {
		s.Bookings = append([]models.Booking{b.Clone()}, s.Bookings...)
	}
	if s.Page != nil {
		for i := range s.Page.Items {
			if s.Page.Items[i].ID == b.ID {
				s.Page.Items[i] = b.Clone()
			}
		}
	}
	if s.Current != nil && s.Current.ID == b.ID {
		c := b.Clone()
		s.Current = &c
	}
}

// setStatus rewrites the status of every local copy of id.
func (s *State) setStatus(id string, status models.BookingStatus) {
	for i := range s.Bookings {
		if s.Bookings[i].ID == id {
			s.Bookings[i].Status = status
		}
	}
	if s.Page != nil {
		for i := range s.Page.Items {
			if s.Page.Items[i].ID == id {
				s.Page.Items[i].Status = status
			}
		}
	}
	if s.Current != nil && s.Current.ID == id {
		s.Current.Status = status
	}
}

// liveSession returns an unexpired session for the booking, from either the
// session cache or the booking's payment record.
func (s *State) liveSession(bookingID string, now time.Time) (models.PaymentSession, bool) {
	if sess, ok := s.Sessions[bookingID]; ok && !sess.Expired(now) {
		return sess, true
	}
	if b, ok := s.find(bookingID); ok && b.Payment.Usable(now) {
		return models.PaymentSession{
			BookingID: b.ID,
			SessionID: b.Payment.ProviderSessionID,
			URL:       b.Payment.URL,
			ExpiresAt: b.Payment.ExpiresAt,
			Amount:    b.Payment.Amount,
			Currency:  b.Payment.Currency,
		}, true
	}
	return models.PaymentSession{}, false
}
