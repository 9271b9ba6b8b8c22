package invoice

import (
	"net/http"

	"ledgerd/internal/core/apperror"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusSent    Status = "SENT"
	StatusViewed  Status = "VIEWED"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

// Event drives a status change.
type Event string

const (
	EventSend               Event = "SEND"
	EventView               Event = "VIEW"
	EventPartialPayment     Event = "PARTIAL_PAYMENT"
	EventFullPayment        Event = "FULL_PAYMENT"
	EventDueDatePassed      Event = "DUE_DATE_PASSED"
	EventReminderEscalation Event = "REMINDER_ESCALATION"
)

// transitions is the complete state machine. A missing entry is an invalid event
// for that state.
var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventSend:           StatusSent,
		EventPartialPayment: StatusSent,
		EventFullPayment:    StatusPaid,
		EventDueDatePassed:  StatusDraft,
	},
	StatusSent: {
		EventSend:               StatusSent,
		EventView:               StatusViewed,
		EventPartialPayment:     StatusSent,
		EventFullPayment:        StatusPaid,
		EventDueDatePassed:      StatusOverdue,
		EventReminderEscalation: StatusOverdue,
	},
	StatusViewed: {
		EventSend:               StatusViewed,
		EventView:               StatusViewed,
		EventPartialPayment:     StatusViewed,
		EventFullPayment:        StatusPaid,
		EventDueDatePassed:      StatusOverdue,
		EventReminderEscalation: StatusOverdue,
	},
	StatusOverdue: {
		EventSend:               StatusOverdue,
		EventView:               StatusOverdue,
		EventPartialPayment:     StatusOverdue,
		EventFullPayment:        StatusPaid,
		EventDueDatePassed:      StatusOverdue,
		EventReminderEscalation: StatusOverdue,
	},
	StatusPaid: {
		EventView: StatusPaid,
	},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsIssued reports whether the invoice has left DRAFT and is still collectable.
func (s Status) IsIssued() bool {
	return s == StatusSent || s == StatusViewed || s == StatusOverdue
}

// IsEditable reports whether lines may still be replaced.
func (s Status) IsEditable() bool {
	return s == StatusDraft || s == StatusSent || s == StatusViewed
}

// Transition returns the status reached from current on ev.
func Transition(current Status, ev Event) (Status, error) {
	events, ok := transitions[current]
	if !ok {
		return current, apperror.NewValidation("unknown invoice status").WithDetail("status", string(current))
	}
	next, ok := events[ev]
	if !ok {
		if current == StatusPaid {
			return current, apperror.NewImmutableState("invoice", "", "paid invoices cannot change").
				WithDetail("event", string(ev))
		}
		return current, &apperror.AppError{
			Code:       apperror.CodeInvalidTransition,
			Message:    "event is not allowed in the current status",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"status": string(current), "event": string(ev)},
		}
	}
	return next, nil
}
