package item

import "time"

// CompletionStatus records whether a task is done and, when known,
// the instant it was completed at.
type CompletionStatus struct {
	completed bool
	at        *time.Time
}

// Uncompleted is the status of a task still waiting to be done.
func Uncompleted() CompletionStatus {
	return CompletionStatus{}
}

// Completed marks a done task; at may be nil when the source document
// carried no completion timestamp.
func Completed(at *time.Time) CompletionStatus {
	return CompletionStatus{completed: true, at: at}
}

func (c CompletionStatus) IsCompleted() bool {
	return c.completed
}

// CompletedAt returns the completion instant, nil when unknown or
// when the task is not completed.
func (c CompletionStatus) CompletedAt() *time.Time {
	if !c.completed {
		return nil
	}
	return c.at
}

func (c CompletionStatus) String() string {
	switch {
	case !c.completed:
		return "uncompleted"
	case c.at == nil:
		return "completed"
	default:
		return "completed at " + c.at.UTC().Format(time.RFC3339)
	}
}
