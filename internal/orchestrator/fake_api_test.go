package orchestrator

import (
	"context"
	"sync"
	"time"

	"ms-rental/internal/models"
)

// fakeAPI is an in-memory stand-in for the REST client.
type fakeAPI struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	calls    map[string]int
	errs     map[string]error
	now      func() time.Time

	// acceptGate and verifyGate, when set, block AcceptBooking and
	// VerifyPayment until closed.
	acceptGate chan struct{}
	acceptSeen chan struct{}
	verifyGate chan struct{}
	verifySeen chan struct{}
	panicOn    string
	noURL      bool
}

func newFakeAPI(now func() time.Time, bookings ...models.Booking) *fakeAPI {
	f := &fakeAPI{
		bookings: map[string]*models.Booking{},
		calls:    map[string]int{},
		errs:     map[string]error{},
		now:      now,
	}
	for i := range bookings {
		b := bookings[i]
		f.bookings[b.ID] = &b
	}
	return f
}

func (f *fakeAPI) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.panicOn == op {
		panic("boom")
	}
	return f.errs[op]
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) fail(op string, err error) {
	f.mu.Lock()
	f.errs[op] = err
	f.mu.Unlock()
}

// set changes a booking behind the orchestrator's back.
func (f *fakeAPI) set(id string, status models.BookingStatus) {
	f.mu.Lock()
	f.bookings[id].Status = status
	f.mu.Unlock()
}

func (f *fakeAPI) get(id string) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, models.Errorf(models.KindNotFound, "booking %s not found", id)
	}
	return b, nil
}

func (f *fakeAPI) list() []models.Booking {
	out := make([]models.Booking, 0, len(f.bookings))
	for _, b := range f.bookings {
		out = append(out, b.Clone())
	}
	return out
}

func (f *fakeAPI) move(id string, from []models.BookingStatus, to models.BookingStatus) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.get(id)
	if err != nil {
		return nil, err
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			c := b.Clone()
			return &c, nil
		}
	}
	return nil, models.Errorf(models.KindInvalidTransition, "cannot move booking from %s to %s", b.Status, to)
}

func (f *fakeAPI) CreateBooking(_ context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Booking{ID: "bk_new", CarID: req.CarID, StartDate: req.StartDate, EndDate: req.EndDate, Status: models.StatusPending}
	f.bookings[b.ID] = b
	c := b.Clone()
	return &c, nil
}

func (f *fakeAPI) ListMyBookings(context.Context) ([]models.Booking, error) {
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(), nil
}

func (f *fakeAPI) ListSellerBookings(_ context.Context, page, limit int) (*models.BookingPage, error) {
	if err := f.enter("list_seller"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.list()
	return &models.BookingPage{Items: items, Page: page, Limit: limit, Total: len(items)}, nil
}

func (f *fakeAPI) ListAllBookings(_ context.Context, page, limit int) (*models.BookingPage, error) {
	if err := f.enter("list_all"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.list()
	return &models.BookingPage{Items: items, Page: page, Limit: limit, Total: len(items)}, nil
}

func (f *fakeAPI) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.get(id)
	if err != nil {
		return nil, err
	}
	c := b.Clone()
	return &c, nil
}

func (f *fakeAPI) PaymentStatus(_ context.Context, id string) (*models.PaymentStatusResponse, error) {
	if err := f.enter("payment_status"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return &models.PaymentStatusResponse{BookingID: id, Status: b.Status, DisplayStatus: b.StatusLabel(), Payment: b.Clone().Payment}, nil
}

func (f *fakeAPI) AcceptBooking(_ context.Context, id string) (*models.AcceptResponse, error) {
	if err := f.enter("accept"); err != nil {
		return nil, err
	}
	if f.acceptGate != nil {
		close(f.acceptSeen)
		<-f.acceptGate
	}
	b, err := f.move(id, []models.BookingStatus{models.StatusPending}, models.StatusAccepted)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.bookings[id]
	stored.Payment = &models.Payment{
		URL:               "https://checkout.test/cs_" + id,
		ExpiresAt:         f.now().Add(time.Hour),
		ProviderSessionID: "cs_" + id,
		Status:            models.PaymentOpen,
		Amount:            stored.TotalPrice,
		Currency:          "usd",
	}
	*b = stored.Clone()
	return &models.AcceptResponse{Booking: *b, PaymentURL: stored.Payment.URL, ExpiresAt: stored.Payment.ExpiresAt}, nil
}

func (f *fakeAPI) CancelBooking(_ context.Context, id string) (*models.Booking, error) {
	if err := f.enter("cancel"); err != nil {
		return nil, err
	}
	return f.move(id, []models.BookingStatus{models.StatusPending, models.StatusAccepted}, models.StatusCancelled)
}

func (f *fakeAPI) DeclineBooking(_ context.Context, id string) (*models.Booking, error) {
	if err := f.enter("decline"); err != nil {
		return nil, err
	}
	return f.move(id, []models.BookingStatus{models.StatusPending}, models.StatusDeclined)
}

func (f *fakeAPI) CompleteBooking(_ context.Context, id string) (*models.Booking, error) {
	if err := f.enter("complete"); err != nil {
		return nil, err
	}
	return f.move(id, []models.BookingStatus{models.StatusPaid}, models.StatusCompleted)
}

func (f *fakeAPI) UpdateStatus(_ context.Context, id string, to models.BookingStatus) (*models.Booking, error) {
	if err := f.enter("update"); err != nil {
		return nil, err
	}
	return nil, models.Errorf(models.KindInvalidTransition, "unsupported move to %s", to)
}

func (f *fakeAPI) InitiatePayment(_ context.Context, req models.InitiatePaymentRequest) (*models.PaymentSession, error) {
	if err := f.enter("initiate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.get(req.BookingID)
	if err != nil {
		return nil, err
	}
	n := f.calls["initiate"]
	sess := &models.PaymentSession{
		BookingID: b.ID,
		SessionID: "cs_fresh_" + string(rune('0'+n)),
		URL:       "https://checkout.test/fresh",
		ExpiresAt: f.now().Add(time.Hour),
	}
	if f.noURL {
		sess.URL = ""
	}
	b.Payment = &models.Payment{URL: sess.URL, ExpiresAt: sess.ExpiresAt, ProviderSessionID: sess.SessionID, Status: models.PaymentOpen}
	return sess, nil
}

func (f *fakeAPI) VerifyPayment(_ context.Context, sessionID string) (*models.PaymentVerification, error) {
	if err := f.enter("verify"); err != nil {
		return nil, err
	}
	if f.verifyGate != nil {
		close(f.verifySeen)
		<-f.verifyGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Payment != nil && b.Payment.ProviderSessionID == sessionID {
			if b.Status == models.StatusAccepted {
				b.Status = models.StatusPaid
				b.Payment.Status = models.PaymentPaid
			}
			return &models.PaymentVerification{Paid: b.Status == models.StatusPaid, Booking: b.Clone()}, nil
		}
	}
	return nil, models.Errorf(models.KindNotFound, "no booking for session %s", sessionID)
}

func (f *fakeAPI) ListCars(context.Context, models.CarFilter) ([]models.Car, error) {
	if err := f.enter("cars"); err != nil {
		return nil, err
	}
	return []models.Car{{ID: "car-1", DailyRate: 5000}}, nil
}

func (f *fakeAPI) GetCar(_ context.Context, id string) (*models.Car, error) {
	if err := f.enter("car"); err != nil {
		return nil, err
	}
	return &models.Car{ID: id, DailyRate: 5000}, nil
}
