package model

import "time"

// EntryStatus is the outcome state of a draw entry.
type EntryStatus string

const (
	EntryStatusPending     EntryStatus = "PENDING"
	EntryStatusSelected    EntryStatus = "SELECTED"
	EntryStatusNotSelected EntryStatus = "NOT_SELECTED"
	EntryStatusPurchased   EntryStatus = "PURCHASED"
)

// DrawEntry is one user's bid for one product inside a DRAW drop. There is
// at most one entry per (user, drop, product).
type DrawEntry struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	DropID     string      `json:"drop_id"`
	ProductID  string      `json:"product_id"`
	VariantID  *string     `json:"variant_id,omitempty"`
	Status     EntryStatus `json:"status"`
	EntryCode  string      `json:"entry_code"`
	SelectedAt *time.Time  `json:"selected_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
