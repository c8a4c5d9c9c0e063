package model

import "time"

// EmailRecord is a retrieved email reduced to what deadline extraction
// needs.
type EmailRecord struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	Date    time.Time `json:"date"`
	Body    string    `json:"body"`
}
