package views

import (
	"context"
	"fmt"
	"sync"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/orchestrator"
	"ms-rental/internal/utils"

	"golang.org/x/sync/errgroup"
)

const defaultPollConcurrency = 4

// SellerDashboard lists the seller's bookings a page at a time. Every
// successful action reloads the current page.
type SellerDashboard struct {
	Orch            *orchestrator.Orchestrator
	PollConcurrency int
	Logger          *logger.Logger

	mu    sync.Mutex
	page  int
	limit int
}

func NewSellerDashboard(o *orchestrator.Orchestrator) *SellerDashboard {
	return &SellerDashboard{
		Orch:            o,
		PollConcurrency: defaultPollConcurrency,
		Logger:          logger.Discard(),
		page:            1,
		limit:           utils.DefaultPageLimit,
	}
}

func (d *SellerDashboard) Load(ctx context.Context, page, limit int) error {
	page, limit = utils.NormalizePage(page, limit)
	d.mu.Lock()
	d.page, d.limit = page, limit
	d.mu.Unlock()
	return d.Orch.FetchSellerBookings(ctx, page, limit)
}

func (d *SellerDashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	page, limit := d.page, d.limit
	d.mu.Unlock()
	return d.Orch.FetchSellerBookings(ctx, page, limit)
}

func (d *SellerDashboard) Rows() []BookingRow {
	return rowsFor(d.Orch, d.Orch.Snapshot().Bookings, true)
}

// Page returns the loaded page metadata, or nil before the first load.
func (d *SellerDashboard) Page() *models.BookingPage {
	return d.Orch.Snapshot().Page
}

func (d *SellerDashboard) Accept(ctx context.Context, id string) (*models.Booking, error) {
	return d.act(ctx, id, d.Orch.Accept)
}

func (d *SellerDashboard) Decline(ctx context.Context, id string) (*models.Booking, error) {
	return d.act(ctx, id, d.Orch.Decline)
}

func (d *SellerDashboard) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	return d.act(ctx, id, d.Orch.Cancel)
}

func (d *SellerDashboard) Complete(ctx context.Context, id string) (*models.Booking, error) {
	return d.act(ctx, id, d.Orch.Complete)
}

func (d *SellerDashboard) act(ctx context.Context, id string, fn func(context.Context, string) (*models.Booking, error)) (*models.Booking, error) {
	b, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	// the action already succeeded; a failed reload also shows on the bookings slice
	if err := d.Refresh(ctx); err != nil {
		d.Logger.Warn("CLIENT", fmt.Sprintf("reload after change to %s failed: %v", id, err))
	}
	return b, nil
}

// PollPaymentStatus refreshes the payment status of several bookings at
// once. Results gathered before the first failure are still returned.
func (d *SellerDashboard) PollPaymentStatus(ctx context.Context, ids ...string) (map[string]models.PaymentStatusResponse, error) {
	var mu sync.Mutex
	out := make(map[string]models.PaymentStatusResponse, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	limit := d.PollConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			st, err := d.Orch.RefreshPaymentStatus(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = *st
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}
