package model

import "time"

// DropType selects how a drop sells its inventory.
type DropType string

const (
	DropTypeStandard        DropType = "STANDARD"
	DropTypeDraw            DropType = "DRAW"
	DropTypeMemberExclusive DropType = "MEMBER_EXCLUSIVE"
	DropTypeEarlyAccess     DropType = "EARLY_ACCESS"
)

// Valid reports whether t is one of the known drop types.
func (t DropType) Valid() bool {
	switch t {
	case DropTypeStandard, DropTypeDraw, DropTypeMemberExclusive, DropTypeEarlyAccess:
		return true
	}
	return false
}

// DropStatus is the lifecycle state of a drop. SOLD_OUT and ENDED are
// terminal for customers.
type DropStatus string

const (
	DropStatusUpcoming DropStatus = "UPCOMING"
	DropStatusLive     DropStatus = "LIVE"
	DropStatusEnded    DropStatus = "ENDED"
	DropStatusSoldOut  DropStatus = "SOLD_OUT"
)

// Valid reports whether s is one of the known statuses.
func (s DropStatus) Valid() bool {
	switch s {
	case DropStatusUpcoming, DropStatusLive, DropStatusEnded, DropStatusSoldOut:
		return true
	}
	return false
}

// Closed reports whether customers can no longer act on the drop.
func (s DropStatus) Closed() bool {
	return s == DropStatusEnded || s == DropStatusSoldOut
}

// Drop is one limited release event together with the products it
// commits inventory for.
//
// Fields:
//  ID                – drops.id (UUID).
//  Type              – STANDARD, DRAW, MEMBER_EXCLUSIVE or EARLY_ACCESS.
//  Status            – stored lifecycle state; recomputed by the state machine.
//  StartTime         – when regular access opens.
//  EndTime           – optional close of the drop.
//  EarlyAccessStart  – optional opening of the members-only early window;
//                      never after StartTime.
//  DrawCompleted     – set once a selection pass has run.
//  Allocations       – one row per product included in the drop.
type Drop struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Type              DropType         `json:"type"`
	Status            DropStatus       `json:"status"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
	EarlyAccessStart  *time.Time       `json:"early_access_start,omitempty"`
	MemberOnly        bool             `json:"member_only"`
	NotifySubscribers bool             `json:"notify_subscribers"`
	HeroImage         string           `json:"hero_image"`
	TeaserText        *string          `json:"teaser_text,omitempty"`
	DrawCompleted     bool             `json:"draw_completed"`
	DrawCompletedAt   *time.Time       `json:"draw_completed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Allocations       []DropAllocation `json:"allocations"`
}

// Allocation returns the allocation for productID, or nil.
func (d *Drop) Allocation(productID string) *DropAllocation {
	for i := range d.Allocations {
		if d.Allocations[i].ProductID == productID {
			return &d.Allocations[i]
		}
	}
	return nil
}

// DropAllocation is the inventory one drop commits for one product.
// RemainingQuantity starts at AllocatedQuantity and only ever decreases.
type DropAllocation struct {
	ID                string `json:"id"`                 // drop_allocations.id
	DropID            string `json:"drop_id"`            // drop_allocations.drop_id
	ProductID         string `json:"product_id"`         // drop_allocations.product_id
	AllocatedQuantity int    `json:"allocated_quantity"` // immutable once set
	RemainingQuantity int    `json:"remaining_quantity"` // 0 <= remaining <= allocated
	MaxPerCustomer    int    `json:"max_per_customer"`
}
