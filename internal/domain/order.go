package domain

import (
	"errors"
	"time"
)

// ErrOrderNotFound is returned when an order id is unknown to the store.
var ErrOrderNotFound = errors.New("order not found")

// Order is a customer request referencing remote files that must be fetched.
// It is created once by intake and never mutated afterwards.
type Order struct {
	// ID is assigned by the store on insert.
	ID int64 `json:"id"`

	Brand      string `json:"brand"`
	Variant    string `json:"variant"`
	NetContent string `json:"netContent"`
	OrderNeed  string `json:"orderNeed"`

	// FileLinks are the source URLs, in the order they were supplied.
	FileLinks []string `json:"fileLinks"`

	CreatedAt time.Time `json:"createdAt"`
}

// FileLink is one remote URL of an order, tracked through its own
// pending/processed lifecycle.
//
// Brand and Variant are copied from the owning order when links are listed so
// the worker can build destination paths without another lookup.
type FileLink struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"orderId"`
	URL       string `json:"url"`
	Brand     string `json:"brand"`
	Variant   string `json:"variant"`
	Processed bool   `json:"processed"`
}
