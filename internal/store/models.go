package store

import "time"

// OrderSummary is a row of the order listing.
type OrderSummary struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Currency  string    `json:"currency"`
	Total     float64   `json:"total"`
	Items     int       `json:"items"`
	Tracked   bool      `json:"tracked"`
	CreatedAt time.Time `json:"created_at"`
}
