// Package repository defines the MySQL-backed stores for drops, their
// allocations, draw entries and notification subscriptions, plus the
// sentinel errors shared with the in-memory implementation. Higher layers
// translate these sentinels into typed application errors.
package repository

import "errors"

// ErrNotFound is returned when the requested drop or entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEntry is returned when a (user, drop, product) entry already
// exists. The unique index makes the check-and-insert atomic.
var ErrDuplicateEntry = errors.New("duplicate entry")

// ErrEntryCodeTaken is returned when a freshly generated entry code
// collides with an existing one. Callers regenerate and retry.
var ErrEntryCodeTaken = errors.New("entry code taken")

// ErrInsufficientInventory is returned when a decrement would push
// remaining_quantity below zero.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrEntryNotPending is returned by a selection commit when one of the
// entries it would decide has already left PENDING. The whole commit is
// rolled back.
var ErrEntryNotPending = errors.New("entry not pending")

// ErrConflict is returned when a conditional update found the row in an
// unexpected state.
var ErrConflict = errors.New("conflict")
