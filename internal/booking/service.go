package booking

import (
	"context"
	"strings"
	"time"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/pricing"
	"ms-rental/internal/utils"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByPaymentSession(ctx context.Context, sessionID string) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error)
	ListBySeller(ctx context.Context, sellerID string, page, limit int) ([]models.Booking, int, error)
	ListAll(ctx context.Context, page, limit int) ([]models.Booking, int, error)
	ListBlockingForCar(ctx context.Context, carID string, start, end time.Time) ([]models.Booking, error)
	ListPaidEndedBefore(ctx context.Context, t time.Time, limit int) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking, expectedVersion int64) error
}

type CarReader interface {
	GetCar(ctx context.Context, id string) (*models.Car, error)
}

type BookingLock interface {
	LockBooking(ctx context.Context, bookingID, owner string) (bool, error)
	UnlockBooking(ctx context.Context, bookingID, owner string) error
	LockCar(ctx context.Context, carID, owner string) (bool, error)
	UnlockCar(ctx context.Context, carID, owner string) error
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev models.BookingEvent) error
}

type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	GetCheckout(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	ExpireCheckout(ctx context.Context, sessionID string) error
}

// StatusNotifier pushes booking events to live subscribers.
type StatusNotifier interface {
	Notify(ev models.BookingEvent)
}

const (
	DefaultPaymentLinkTTL = time.Hour
	sweepBatchSize        = 100
)

type BookingService struct {
	DB       DBLayer
	Cars     CarReader
	Lock     BookingLock
	Events   EventPublisher
	Payments PaymentGateway
	Logger   *logger.Logger

	notifier StatusNotifier
	calc     pricing.Calculator
	linkTTL  time.Duration
	currency string
	now      func() time.Time
}

type Option func(*BookingService)

func WithCalculator(c pricing.Calculator) Option {
	return func(s *BookingService) { s.calc = c }
}

func WithPaymentLinkTTL(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.linkTTL = d
		}
	}
}

// WithCurrency sets the currency used for cars that carry none.
func WithCurrency(currency string) Option {
	return func(s *BookingService) {
		if currency != "" {
			s.currency = strings.ToLower(currency)
		}
	}
}

func WithNotifier(n StatusNotifier) Option {
	return func(s *BookingService) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *BookingService) { s.now = now }
}

// NewBookingService wires the booking rules to storage, locking, events and payments.
// events may be nil when Kafka is disabled.
func NewBookingService(db DBLayer, cars CarReader, lock BookingLock, events EventPublisher, payments PaymentGateway, log *logger.Logger, opts ...Option) *BookingService {
	if log == nil {
		log = logger.Discard()
	}
	s := &BookingService{
		DB:       db,
		Cars:     cars,
		Lock:     lock,
		Events:   events,
		Payments: payments,
		Logger:   log,
		calc:     pricing.NewCalculator(pricing.DefaultTaxRateBps),
		linkTTL:  DefaultPaymentLinkTTL,
		currency: "usd",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BookingService) Calculator() pricing.Calculator {
	return s.calc
}

// ---------------- BOOKINGS ----------------

// CreateBooking prices a customer's request against the car's current rate and
// stores it as pending. Pending bookings never block other requests.
func (s *BookingService) CreateBooking(ctx context.Context, p models.Principal, req models.CreateBookingRequest) (*models.Booking, error) {
	if p.Role != models.RoleCustomer {
		return nil, models.NewError(models.KindForbidden, "only customers can book a car")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := pricing.DurationDays(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	car, err := s.Cars.GetCar(ctx, req.CarID)
	if err != nil {
		return nil, err
	}
	if !car.Available {
		return nil, models.Errorf(models.KindUnavailable, "%s is not available for rent", car.DisplayName())
	}

	start, end := req.StartDate.UTC(), req.EndDate.UTC()
	quote, err := s.calc.Quote(car.DailyRate, car.DiscountPercent, start, end)
	if err != nil {
		return nil, err
	}

	blocking, err := s.DB.ListBlockingForCar(ctx, car.ID, start, end)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not check availability")
	}
	if !pricing.Available(blocking, pricing.Window{Start: start, End: end}, "") {
		return nil, models.Errorf(models.KindUnavailable, "%s is already booked for the requested dates", car.DisplayName())
	}

	currency := strings.ToLower(car.Currency)
	if currency == "" {
		currency = s.currency
	}
	now := s.now().UTC()
	b := &models.Booking{
		ID:              utils.NewBookingID(),
		CarID:           car.ID,
		CustomerID:      p.UserID,
		SellerID:        car.SellerID,
		StartDate:       start,
		EndDate:         end,
		Days:            quote.Days,
		DailyRate:       quote.DailyRate,
		DiscountPercent: quote.DiscountPercent,
		BaseTotal:       quote.BaseTotal,
		Subtotal:        quote.DiscountedTotal,
		TaxAmount:       quote.TaxAmount,
		TotalPrice:      quote.GrandTotal,
		Currency:        currency,
		Status:          models.StatusPending,
		DriverName:      req.DriverName,
		DriverPhone:     req.DriverPhone,
		DriverEmail:     req.DriverEmail,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.DB.CreateBooking(ctx, b); err != nil {
		s.Logger.Error("BOOKING", "create failed: "+err.Error())
		return nil, models.WrapError(models.KindInternal, err, "could not create booking")
	}
	s.Logger.LogBooking("CREATED", b.ID, pricing.FormatCents(b.TotalPrice, b.Currency)+" for "+car.DisplayName())

	s.emit(ctx, models.NewBookingEvent(models.EventBookingCreated, *b, "", p.Role, now))
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	b, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, b) {
		return nil, models.NewError(models.KindForbidden, "you cannot view this booking")
	}
	return b, nil
}

func (s *BookingService) ListCustomerBookings(ctx context.Context, p models.Principal) ([]models.Booking, error) {
	if p.Role != models.RoleCustomer {
		return nil, models.NewError(models.KindForbidden, "only customers have personal bookings")
	}
	bookings, err := s.DB.ListByCustomer(ctx, p.UserID)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not load bookings")
	}
	return bookings, nil
}

func (s *BookingService) ListSellerBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error) {
	if p.Role != models.RoleSeller {
		return nil, models.NewError(models.KindForbidden, "only sellers have a booking dashboard")
	}
	page, limit = utils.NormalizePage(page, limit)
	items, total, err := s.DB.ListBySeller(ctx, p.UserID, page, limit)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not load bookings")
	}
	return &models.BookingPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func (s *BookingService) ListAllBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error) {
	if p.Role != models.RoleAdmin {
		return nil, models.NewError(models.KindForbidden, "admin access required")
	}
	page, limit = utils.NormalizePage(page, limit)
	items, total, err := s.DB.ListAll(ctx, page, limit)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not load bookings")
	}
	return &models.BookingPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// canView: the booking's customer and seller, admins and the system.
func canView(p models.Principal, b *models.Booking) bool {
	switch p.Role {
	case models.RoleAdmin, models.RoleSystem:
		return true
	case models.RoleCustomer:
		return b.CustomerID == p.UserID
	case models.RoleSeller:
		return b.SellerID == p.UserID
	}
	return false
}

// canChange reports whether p is a party to b. Whether the move itself is
// allowed is up to Transition.
func canChange(p models.Principal, b *models.Booking) bool {
	switch p.Role {
	case models.RoleCustomer:
		return b.CustomerID == p.UserID
	case models.RoleSeller:
		return b.SellerID == p.UserID
	case models.RoleSystem, models.RoleAdmin:
		return true
	}
	return false
}

func (s *BookingService) emit(ctx context.Context, ev models.BookingEvent) {
	if s.Events != nil {
		if err := s.Events.PublishBookingEvent(ctx, ev); err != nil {
			s.Logger.Warn("KAFKA", "publish "+ev.Type+" for "+ev.BookingID+" failed: "+err.Error())
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
}

// withBookingLock runs fn while holding the distributed lock on bookingID.
func (s *BookingService) withBookingLock(ctx context.Context, bookingID string, fn func() error) error {
	owner := utils.NewLockOwner()
	ok, err := s.Lock.LockBooking(ctx, bookingID, owner)
	if err != nil {
		return models.WrapError(models.KindInternal, err, "could not lock booking")
	}
	if !ok {
		return models.Errorf(models.KindConflict, "booking %s is being updated, try again", bookingID)
	}
	defer func() {
		if err := s.Lock.UnlockBooking(context.WithoutCancel(ctx), bookingID, owner); err != nil {
			s.Logger.Warn("REDIS", "unlock booking "+bookingID+": "+err.Error())
		}
	}()
	return fn()
}
