package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-rental/internal/booking/db"
	"ms-rental/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	_, err = bunDB.NewCreateTable().Model((*models.Booking)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return &db.DB{Bun: bunDB}
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func newBooking(sellerID string, status models.BookingStatus, start, end time.Time) *models.Booking {
	now := time.Now().UTC()
	return &models.Booking{
		ID:         uuid.NewString(),
		CarID:      "car-1",
		CustomerID: "cust-1",
		SellerID:   sellerID,
		StartDate:  start,
		EndDate:    end,
		Days:       int(end.Sub(start).Hours() / 24),
		DailyRate:  5000,
		TotalPrice: 15120,
		Currency:   "usd",
		Status:     status,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("seller-1", models.StatusPending, day(1), day(4))
	require.NoError(t, d.CreateBooking(ctx, b))

	got, err := d.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.Payment)
	assert.True(t, got.StartDate.Equal(day(1)))
	assert.Equal(t, int64(15120), got.TotalPrice)
}

func TestGetBookingNotFound(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetBookingByID(context.Background(), "missing")
	assert.True(t, models.IsKind(err, models.KindNotFound))

	_, err = d.GetBookingByPaymentSession(context.Background(), "cs_missing")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestUpdateBookingChecksVersion(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("seller-1", models.StatusPending, day(1), day(4))
	require.NoError(t, d.CreateBooking(ctx, b))

	b.Status = models.StatusAccepted
	b.Payment = &models.Payment{
		URL:               "https://pay.example/cs_1",
		ExpiresAt:         day(2),
		ProviderSessionID: "cs_1",
		Status:            models.PaymentOpen,
	}
	b.PaymentSessionID = "cs_1"
	require.NoError(t, d.UpdateBooking(ctx, b, 1))
	assert.Equal(t, int64(2), b.Version)

	got, err := d.GetBookingByPaymentSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, "https://pay.example/cs_1", got.Payment.URL)
	assert.Equal(t, int64(2), got.Version)

	// a writer still holding version 1 loses
	stale := *got
	stale.Status = models.StatusCancelled
	err = d.UpdateBooking(ctx, &stale, 1)
	assert.True(t, models.IsKind(err, models.KindConflict))

	got, err = d.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
}

func TestUpdateBookingNeverTouchesPrices(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("seller-1", models.StatusAccepted, day(1), day(4))
	require.NoError(t, d.CreateBooking(ctx, b))

	b.Status = models.StatusPaid
	b.TotalPrice = 1
	b.StartDate = day(20)
	require.NoError(t, d.UpdateBooking(ctx, b, 1))

	got, err := d.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.Equal(t, int64(15120), got.TotalPrice)
	assert.True(t, got.StartDate.Equal(day(1)))
}

func TestUpdateBookingKeepsCallerTimestamp(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("seller-1", models.StatusPending, day(1), day(4))
	require.NoError(t, d.CreateBooking(ctx, b))

	stamp := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	b.Status = models.StatusDeclined
	b.UpdatedAt = stamp
	require.NoError(t, d.UpdateBooking(ctx, b, 1))

	got, err := d.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(stamp), "updated_at = %s", got.UpdatedAt)
}

func TestUpdateMissingBooking(t *testing.T) {
	d := setupTestDB(t)

	b := newBooking("seller-1", models.StatusPending, day(1), day(2))
	err := d.UpdateBooking(context.Background(), b, 1)
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestListBlockingForCar(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	accepted := newBooking("seller-1", models.StatusAccepted, day(1), day(5))
	pending := newBooking("seller-1", models.StatusPending, day(2), day(6))
	paid := newBooking("seller-1", models.StatusPaid, day(10), day(12))
	for _, b := range []*models.Booking{accepted, pending, paid} {
		require.NoError(t, d.CreateBooking(ctx, b))
	}

	blocking, err := d.ListBlockingForCar(ctx, "car-1", day(3), day(7))
	require.NoError(t, err)
	require.Len(t, blocking, 1)
	assert.Equal(t, accepted.ID, blocking[0].ID)

	blocking, err = d.ListBlockingForCar(ctx, "car-1", day(5), day(10))
	require.NoError(t, err)
	assert.Empty(t, blocking)

	blocking, err = d.ListBlockingForCar(ctx, "car-2", day(1), day(30))
	require.NoError(t, err)
	assert.Empty(t, blocking)
}

func TestListBySellerPaginates(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		b := newBooking("seller-1", models.StatusPending, day(1), day(2))
		b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, d.CreateBooking(ctx, b))
	}
	require.NoError(t, d.CreateBooking(ctx, newBooking("seller-2", models.StatusPending, day(1), day(2))))

	page1, total, err := d.ListBySeller(ctx, "seller-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page1, 2)
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page3, _, err := d.ListBySeller(ctx, "seller-1", 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	all, total, err := d.ListAll(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, all, 6)

	mine, err := d.ListByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, mine, 6)
}

func TestListPaidEndedBefore(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	ended := newBooking("seller-1", models.StatusPaid, day(1), day(3))
	running := newBooking("seller-1", models.StatusPaid, day(2), day(9))
	acceptedEnded := newBooking("seller-1", models.StatusAccepted, day(1), day(3))
	for _, b := range []*models.Booking{ended, running, acceptedEnded} {
		require.NoError(t, d.CreateBooking(ctx, b))
	}

	got, err := d.ListPaidEndedBefore(ctx, day(5), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ended.ID, got[0].ID)
}
