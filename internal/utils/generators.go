package utils

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

func NewBookingID() string {
	return "bk_" + uuid.NewString()
}

// NewLockOwner returns a token identifying one holder of a distributed lock.
func NewLockOwner() string {
	return uuid.NewString()
}

// ParsePagination reads ?page=&limit=, falling back to page 1 and the default limit.
func ParsePagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return NormalizePage(page, limit)
}

func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
