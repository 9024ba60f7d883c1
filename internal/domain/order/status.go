package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bazaar/internal/domain/validation"
)

// ErrInvalidTransition is matched by *TransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a status change that is not allowed.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move order from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions is the forward lifecycle. Cancellation from any non-terminal
// status is added by Allowed.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed},
	StatusConfirmed:      {StatusProcessing},
	StatusProcessing:     {StatusShipped},
	StatusShipped:        {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {StatusReturned, StatusRefunded},
	StatusCancelled:      nil,
	StatusReturned:       nil,
	StatusRefunded:       nil,
}

// Allowed reports whether an order may move from one status to another.
// Re-applying the current status is allowed.
func Allowed(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	if to == StatusCancelled && from.Valid() && !from.Terminal() {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Next lists the statuses reachable from s, excluding s itself.
func Next(s Status) []Status {
	next := slices.Clone(transitions[s])
	if s.Valid() && !s.Terminal() {
		next = append(next, StatusCancelled)
	}
	return next
}

// Change is a requested status change.
type Change struct {
	To        Status
	Note      string
	UpdatedBy string
}

// Guard vetoes a transition the table allows. It returns a reason or "".
type Guard func(o *Order, to Status) string

// RequireCapturedPayment blocks shipping an order whose payment has not
// completed, unless it is cash on delivery.
func RequireCapturedPayment(o *Order, to Status) string {
	if to != StatusShipped || o.Status == StatusShipped {
		return ""
	}
	if o.Payment.Method == MethodCOD || o.Payment.Status == PaymentCompleted {
		return ""
	}
	return "payment not captured"
}

// UpdateStatus applies ch. On success it appends one history entry and sets
// the status timestamp the first time the status is reached. On failure the
// order is unchanged.
func (o *Order) UpdateStatus(ch Change, now time.Time, guards ...Guard) error {
	if !ch.To.Valid() {
		return validation.New("status", "unknown status %q", ch.To)
	}
	if !Allowed(o.Status, ch.To) {
		return &TransitionError{From: o.Status, To: ch.To}
	}
	for _, g := range guards {
		if reason := g(o, ch.To); reason != "" {
			return &TransitionError{From: o.Status, To: ch.To, Reason: reason}
		}
	}

	o.Status = ch.To
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:    ch.To,
		Timestamp: now,
		Note:      ch.Note,
		UpdatedBy: ch.UpdatedBy,
	})
	switch ch.To {
	case StatusConfirmed:
		setOnce(&o.ConfirmedAt, now)
	case StatusShipped:
		setOnce(&o.ShippedAt, now)
	case StatusDelivered:
		setOnce(&o.DeliveredAt, now)
	case StatusCancelled:
		setOnce(&o.CancelledAt, now)
	}
	o.UpdatedAt = now
	return nil
}

func setOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}
