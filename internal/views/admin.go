package views

import (
	"context"
	"sync"

	"ms-rental/internal/models"
	"ms-rental/internal/orchestrator"
	"ms-rental/internal/utils"

	"golang.org/x/sync/errgroup"
)

// BookingLister pages through every booking.
type BookingLister interface {
	ListAllBookings(ctx context.Context, page, limit int) (*models.BookingPage, error)
}

// AdminView is read-only oversight of all bookings.
type AdminView struct {
	Orch   *orchestrator.Orchestrator
	Source BookingLister
}

func NewAdminView(o *orchestrator.Orchestrator, source BookingLister) *AdminView {
	return &AdminView{Orch: o, Source: source}
}

func (a *AdminView) Load(ctx context.Context, page, limit int) error {
	page, limit = utils.NormalizePage(page, limit)
	return a.Orch.FetchAllBookings(ctx, page, limit)
}

func (a *AdminView) Rows() []BookingRow {
	return rowsFor(a.Orch, a.Orch.Snapshot().Bookings, false)
}

// Overview summarizes all bookings.
type Overview struct {
	Total    int                          `json:"total"`
	ByStatus map[models.BookingStatus]int `json:"byStatus"`
	// Revenue sums paid and completed bookings per currency.
	Revenue map[string]int64 `json:"revenue"`
}

// Overview reads every page, fetching pages after the first concurrently.
func (a *AdminView) Overview(ctx context.Context, limit int) (*Overview, error) {
	_, limit = utils.NormalizePage(1, limit)

	first, err := a.Source.ListAllBookings(ctx, 1, limit)
	if err != nil {
		return nil, err
	}

	pages := make([][]models.Booking, first.TotalPages()+1)
	pages[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultPollConcurrency)
	var mu sync.Mutex
	for p := 2; p <= first.TotalPages(); p++ {
		p := p
		g.Go(func() error {
			res, err := a.Source.ListAllBookings(gctx, p, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			pages[p-1] = res.Items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := &Overview{
		ByStatus: map[models.BookingStatus]int{},
		Revenue:  map[string]int64{},
	}
	seen := map[string]bool{}
	for _, items := range pages {
		for _, b := range items {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			ov.Total++
			ov.ByStatus[b.Status]++
			if b.Status == models.StatusPaid || b.Status == models.StatusCompleted {
				ov.Revenue[b.Currency] += b.TotalPrice
			}
		}
	}
	return ov, nil
}
