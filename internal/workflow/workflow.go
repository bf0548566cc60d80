// Package workflow defines the review lifecycle shared by entities, concept art
// and lore entries.
package workflow

import "fmt"

type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusReview},
	StatusReview:   {StatusApproved, StatusRejected, StatusDraft},
	StatusRejected: {StatusDraft},
	StatusApproved: {StatusDraft},
}

// TransitionError is returned when a status change is not allowed.
type TransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func Parse(value string) (Status, bool) {
	status := Status(value)
	_, ok := transitions[status]
	return status, ok
}

// Allowed returns the statuses reachable from from.
func Allowed(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Transition validates from → to.
func Transition(from, to Status) error {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Allowed: Allowed(from)}
}

// RequiresApproval reports whether moving into to is a review decision.
func RequiresApproval(to Status) bool {
	return to == StatusApproved || to == StatusRejected
}

// KeepsNote reports whether a status note should be stored with to.
func KeepsNote(to Status) bool {
	return to == StatusRejected
}
