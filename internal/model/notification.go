package model

import "time"

// Notification is a reminder that has been fired for a deadline. It is
// created at fire time, appended to the history and never mutated.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// DeadlineID links this notification to the deadline it warns about.
	DeadlineID string `json:"deadline_id"`

	// Task is a snapshot of the deadline's task label.
	Task string `json:"task"`

	// DueLabel is the formatted due timestamp at fire time.
	DueLabel string `json:"deadline_date"`

	// Threshold is the number of hours before due that triggered this
	// notification; zero means the immediate class.
	Threshold int `json:"threshold"`

	// TimeContext is the human phrase for the threshold, e.g. "in 1 hour".
	TimeContext string `json:"time_context"`

	Subject string `json:"subject"`
	Body    string `json:"body"`

	// SentAt is when the notification fired.
	SentAt time.Time `json:"timestamp"`
}
