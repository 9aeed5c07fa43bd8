// Package orchestrator wraps every booking API call in a pending, fulfilled
// or rejected lifecycle over a local state container.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"

	"github.com/puzpuzpuz/xsync/v3"
)

const DefaultLoginRedirectDelay = 2 * time.Second

// API is the subset of the REST client the orchestrator drives.
type API interface {
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
	ListMyBookings(ctx context.Context) ([]models.Booking, error)
	ListSellerBookings(ctx context.Context, page, limit int) (*models.BookingPage, error)
	ListAllBookings(ctx context.Context, page, limit int) (*models.BookingPage, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	PaymentStatus(ctx context.Context, id string) (*models.PaymentStatusResponse, error)
	AcceptBooking(ctx context.Context, id string) (*models.AcceptResponse, error)
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)
	DeclineBooking(ctx context.Context, id string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, to models.BookingStatus) (*models.Booking, error)
	InitiatePayment(ctx context.Context, req models.InitiatePaymentRequest) (*models.PaymentSession, error)
	VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentVerification, error)
	ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error)
	GetCar(ctx context.Context, id string) (*models.Car, error)
}

// Notification is the transient toast raised after each operation.
type Notification struct {
	Slice   Slice
	Op      string
	Success bool
	Message string
	Kind    models.ErrorKind
}

type Orchestrator struct {
	api    API
	role   models.Role
	logger *logger.Logger

	mu    sync.RWMutex
	state State

	inFlight *xsync.MapOf[string, struct{}]

	notify        func(Notification)
	loginRedirect func()
	redirectDelay time.Duration
	redirectMu    sync.Mutex
	redirectTimer *time.Timer

	now func() time.Time
}

type Option func(*Orchestrator)

func WithNotifier(fn func(Notification)) Option {
	return func(o *Orchestrator) { o.notify = fn }
}

// WithLoginRedirect registers the callback fired after an unauthenticated failure.
func WithLoginRedirect(fn func(), delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.loginRedirect = fn
		if delay >= 0 {
			o.redirectDelay = delay
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator acting as role, used to validate transitions
// locally before calling the server.
func New(api API, role models.Role, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:           api,
		role:          role,
		logger:        logger.Discard(),
		state:         newState(),
		inFlight:      xsync.NewMapOf[string, struct{}](),
		notify:        func(Notification) {},
		redirectDelay: DefaultLoginRedirectDelay,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Role() models.Role { return o.role }

// Now reads the orchestrator's clock.
func (o *Orchestrator) Now() time.Time { return o.now() }

// Snapshot returns a copy of the whole state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

func (o *Orchestrator) Slice(s Slice) SliceState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Slices[s]
}

// Booking returns the local copy of a booking.
func (o *Orchestrator) Booking(id string) (models.Booking, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.state.find(id)
	if !ok {
		return models.Booking{}, false
	}
	return b.Clone(), true
}

// Busy reports whether a mutation of the booking is in flight.
func (o *Orchestrator) Busy(bookingID string) bool {
	_, ok := o.inFlight.Load(bookingID)
	return ok
}

// MessageClear drops the error and success message of a slice.
func (o *Orchestrator) MessageClear(s Slice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.state.Slices[s]
	st.Error = ""
	st.ErrorKind = ""
	st.SuccessMessage = ""
	o.state.Slices[s] = st
}

// Close stops a pending login redirect.
func (o *Orchestrator) Close() {
	o.redirectMu.Lock()
	defer o.redirectMu.Unlock()
	if o.redirectTimer != nil {
		o.redirectTimer.Stop()
		o.redirectTimer = nil
	}
}

// guard admits one mutation per booking at a time.
func (o *Orchestrator) guard(bookingID string) (func(), error) {
	if _, loaded := o.inFlight.LoadOrStore(bookingID, struct{}{}); loaded {
		return nil, models.Errorf(models.KindConflict, "another action on booking %s is still in progress", bookingID)
	}
	return func() { o.inFlight.Delete(bookingID) }, nil
}

// outcome is what a successful call hands back to run.
type outcome struct {
	reduce  func(*State)
	message string
}

// run drives one operation through its phases. The call never touches state
// directly; its reducer is applied under the lock on success. Panics are
// reported as internal errors.
func (o *Orchestrator) run(ctx context.Context, s Slice, op string, call func(ctx context.Context) (outcome, error)) (err error) {
	o.mu.Lock()
	st := o.state.Slices[s]
	st.Phase = PhasePending
	st.Loading = true
	st.Error = ""
	st.ErrorKind = ""
	o.state.Slices[s] = st
	o.mu.Unlock()

	var out outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("CLIENT", fmt.Sprintf("%s panicked: %v", op, r))
				err = models.Errorf(models.KindInternal, "%s failed unexpectedly", op)
			}
		}()
		out, err = call(ctx)
	}()

	if err != nil {
		o.reject(s, op, err)
		return models.AsError(err)
	}

	o.mu.Lock()
	if out.reduce != nil {
		out.reduce(&o.state)
	}
	st = o.state.Slices[s]
	st.Phase = PhaseFulfilled
	st.Loading = false
	st.SuccessMessage = out.message
	o.state.Slices[s] = st
	o.mu.Unlock()

	o.notify(Notification{Slice: s, Op: op, Success: true, Message: out.message})
	return nil
}

func (o *Orchestrator) reject(s Slice, op string, err error) {
	e := models.AsError(err)

	o.mu.Lock()
	st := o.state.Slices[s]
	st.Phase = PhaseRejected
	st.Loading = false
	st.Error = e.UserMessage()
	st.ErrorKind = e.Kind
	st.SuccessMessage = ""
	o.state.Slices[s] = st
	o.mu.Unlock()

	o.logger.Debug("CLIENT", fmt.Sprintf("%s rejected: %v", op, err))
	o.notify(Notification{Slice: s, Op: op, Message: e.UserMessage(), Kind: e.Kind})

	if e.Kind == models.KindUnauthenticated {
		o.scheduleLoginRedirect()
	}
}

// refuse reports a failure caught before dispatch. Slice state is left as is
// since another operation may own it.
func (o *Orchestrator) refuse(s Slice, op string, err error) error {
	e := models.AsError(err)
	o.notify(Notification{Slice: s, Op: op, Message: e.UserMessage(), Kind: e.Kind})
	return e
}

func (o *Orchestrator) scheduleLoginRedirect() {
	if o.loginRedirect == nil {
		return
	}
	o.redirectMu.Lock()
	defer o.redirectMu.Unlock()
	if o.redirectTimer != nil {
		return
	}
	o.redirectTimer = time.AfterFunc(o.redirectDelay, func() {
		o.redirectMu.Lock()
		o.redirectTimer = nil
		o.redirectMu.Unlock()
		o.loginRedirect()
	})
}
