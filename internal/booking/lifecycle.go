package booking

import (
	"time"

	"ms-rental/internal/models"
)

// transitions lists every allowed edge and the roles that may take it.
// Terminal states have no outgoing edges.
var transitions = map[models.BookingStatus]map[models.BookingStatus][]models.Role{
	models.StatusPending: {
		models.StatusAccepted:  {models.RoleSeller},
		models.StatusDeclined:  {models.RoleSeller, models.RoleCustomer},
		models.StatusCancelled: {models.RoleSeller, models.RoleCustomer},
	},
	models.StatusAccepted: {
		models.StatusPaid:      {models.RoleSystem},
		models.StatusCancelled: {models.RoleCustomer, models.RoleSeller},
	},
	models.StatusPaid: {
		models.StatusCompleted: {models.RoleSystem, models.RoleSeller},
	},
}

// Transition validates moving a booking from one status to another on behalf of role.
// It returns invalid_transition when the edge does not exist and forbidden when
// the edge exists but role may not take it.
func Transition(from, to models.BookingStatus, role models.Role) error {
	if !to.Valid() {
		return models.Errorf(models.KindInvalidRequest, "unknown status %q", to)
	}
	if from.Terminal() {
		return models.Errorf(models.KindInvalidTransition, "booking is %s and can no longer change", from)
	}
	if from == to {
		return models.Errorf(models.KindInvalidTransition, "booking is already %s", from)
	}
	roles, ok := transitions[from][to]
	if !ok {
		return models.Errorf(models.KindInvalidTransition, "cannot move booking from %s to %s", from, to)
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return models.Errorf(models.KindForbidden, "%s may not move booking from %s to %s", role, from, to)
}

// Ready checks the conditions on b itself that must hold at now before it may
// move to status to. A rental can only be completed once its period has ended.
func Ready(b models.Booking, to models.BookingStatus, now time.Time) error {
	if to == models.StatusCompleted && b.EndDate.After(now) {
		return models.Errorf(models.KindInvalidTransition, "rental runs until %s and cannot be completed yet", b.EndDate.UTC().Format("2006-01-02"))
	}
	return nil
}

// AllowedTransitions returns the statuses role may move a booking in from to,
// in lifecycle order.
func AllowedTransitions(from models.BookingStatus, role models.Role) []models.BookingStatus {
	var out []models.BookingStatus
	for _, to := range models.AllStatuses {
		if Transition(from, to, role) == nil {
			out = append(out, to)
		}
	}
	return out
}

func CanTransition(from, to models.BookingStatus, role models.Role) bool {
	return Transition(from, to, role) == nil
}
