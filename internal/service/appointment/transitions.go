package appointment

import (
	"github.com/clinicore/clinic-api/internal/model"
)

// transitions is the closed set of legal status moves. Completed,
// cancelled and no-show are terminal; rescheduled is terminal for the
// original record and spawns a linked successor.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusScheduled: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusInProgress: {
		model.AppointmentStatusCompleted,
	},
	model.AppointmentStatusCompleted:   {},
	model.AppointmentStatusCancelled:   {},
	model.AppointmentStatusNoShow:      {},
	model.AppointmentStatusRescheduled: {},
}

// CanTransition reports whether moving from one status to another is
// legal.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
