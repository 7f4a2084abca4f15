package repository

import (
	"time"

	"github.com/iliyamo/limited-drops/internal/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DropFilter narrows ListDrops. Zero values disable a condition. StartFrom
// and StartTo are inclusive bounds on start_time.
type DropFilter struct {
	Status    *model.DropStatus
	Statuses  []model.DropStatus
	Type      *model.DropType
	StartFrom *time.Time
	StartTo   *time.Time
	Limit     int
}

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (f DropFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// SelectionCommit is the outcome of one product's selection pass. It is
// applied atomically: winners become SELECTED, losers NOT_SELECTED and the
// allocation's remaining quantity drops by len(Winners), or nothing
// changes.
type SelectionCommit struct {
	DropID       string
	ProductID    string
	AllocationID string
	Winners      []string // entry ids
	Losers       []string // entry ids
	SelectedAt   time.Time
}
