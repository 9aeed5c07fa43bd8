package sse

import (
	"context"
	"sync"

	"ms-rental/internal/models"
)

const clientBuffer = 10

// BookingEventEmitter fans booking events out to the seller and the customer
// of each booking.
type BookingEventEmitter struct {
	// sellerID -> subscriber channels
	sellerClients map[string][]chan models.BookingEvent
	sellerMutex   sync.RWMutex

	// customerID -> subscriber channels
	customerClients map[string][]chan models.BookingEvent
	customerMutex   sync.RWMutex
}

func NewBookingEventEmitter() *BookingEventEmitter {
	return &BookingEventEmitter{
		sellerClients:   make(map[string][]chan models.BookingEvent),
		customerClients: make(map[string][]chan models.BookingEvent),
	}
}

// SubscribeSeller adds a client to a seller's booking events. The channel is
// closed once ctx is done.
func (e *BookingEventEmitter) SubscribeSeller(ctx context.Context, sellerID string) <-chan models.BookingEvent {
	return subscribe(ctx, &e.sellerMutex, e.sellerClients, sellerID)
}

// SubscribeCustomer adds a client to a customer's booking events.
func (e *BookingEventEmitter) SubscribeCustomer(ctx context.Context, customerID string) <-chan models.BookingEvent {
	return subscribe(ctx, &e.customerMutex, e.customerClients, customerID)
}

// Notify broadcasts ev to the booking's seller and customer. Slow clients
// miss events rather than block the caller.
func (e *BookingEventEmitter) Notify(ev models.BookingEvent) {
	broadcast(&e.sellerMutex, e.sellerClients, ev.SellerID, ev)
	broadcast(&e.customerMutex, e.customerClients, ev.CustomerID, ev)
}

func (e *BookingEventEmitter) SellerClientCount(sellerID string) int {
	e.sellerMutex.RLock()
	defer e.sellerMutex.RUnlock()
	return len(e.sellerClients[sellerID])
}

func (e *BookingEventEmitter) CustomerClientCount(customerID string) int {
	e.customerMutex.RLock()
	defer e.customerMutex.RUnlock()
	return len(e.customerClients[customerID])
}

func subscribe(ctx context.Context, mu *sync.RWMutex, clients map[string][]chan models.BookingEvent, key string) <-chan models.BookingEvent {
	ch := make(chan models.BookingEvent, clientBuffer)

	mu.Lock()
	clients[key] = append(clients[key], ch)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		remove(mu, clients, key, ch)
	}()
	return ch
}

// broadcast sends under the read lock so remove cannot close a channel mid-send.
func broadcast(mu *sync.RWMutex, clients map[string][]chan models.BookingEvent, key string, ev models.BookingEvent) {
	if key == "" {
		return
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, ch := range clients[key] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func remove(mu *sync.RWMutex, clients map[string][]chan models.BookingEvent, key string, ch chan models.BookingEvent) {
	mu.Lock()
	defer mu.Unlock()

	list := clients[key]
	for i, c := range list {
		if c == ch {
			clients[key] = append(list[:i], list[i+1:]...)
			close(ch)
			break
		}
	}
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}
