package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/limited-drops/internal/model"
)

const (
	uqEntryUserDropProduct = "uq_entry_user_drop_product"
	uqEntryCode            = "uq_entry_code"

	entryCodePrefix = "DRW-"
	entryCodeBytes  = 10
)

var entryCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewEntryCode returns a customer-visible entry code built from
// crypto/rand bytes, e.g. "DRW-MFRGGZDFMZTWQ2LK". Codes are not derived
// from any counter so they cannot be enumerated.
func NewEntryCode() (string, error) {
	b := make([]byte, entryCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return entryCodePrefix + entryCodeEncoding.EncodeToString(b), nil
}

// EntryRepo provides data access to the draw_entries table.
type EntryRepo struct {
	db *sql.DB
}

// NewEntryRepo returns a new EntryRepo bound to the provided database.
func NewEntryRepo(db *sql.DB) *EntryRepo { return &EntryRepo{db: db} }

const entryColumns = `id, user_id, drop_id, product_id, variant_id, status, entry_code, selected_at, created_at`

// CreateEntry inserts a PENDING entry. The unique index on
// (user_id, drop_id, product_id) turns concurrent duplicates into
// ErrDuplicateEntry; a clash on the entry code yields ErrEntryCodeTaken.
func (r *EntryRepo) CreateEntry(ctx context.Context, e *model.DrawEntry) error {
	const q = `INSERT INTO draw_entries (id, user_id, drop_id, product_id, variant_id, status, entry_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.DropID, e.ProductID, nullString(e.VariantID), string(e.Status), e.EntryCode, e.CreatedAt.UTC())
	if err != nil {
		switch {
		case isDuplicateKey(err, uqEntryUserDropProduct):
			return ErrDuplicateEntry
		case isDuplicateKey(err, uqEntryCode):
			return ErrEntryCodeTaken
		}
		return errors.Wrap(err, "insert entry")
	}
	return nil
}

// ListPendingEntries returns the PENDING entries for one product of a drop.
func (r *EntryRepo) ListPendingEntries(ctx context.Context, dropID, productID string) ([]model.DrawEntry, error) {
	return r.query(ctx,
		`SELECT `+entryColumns+` FROM draw_entries
		 WHERE drop_id = ? AND product_id = ? AND status = 'PENDING' ORDER BY created_at, id`,
		dropID, productID)
}

// ListUserEntries returns all entries of a user, newest first.
func (r *EntryRepo) ListUserEntries(ctx context.Context, userID string) ([]model.DrawEntry, error) {
	return r.query(ctx,
		`SELECT `+entryColumns+` FROM draw_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
}

// LatestEntryForDrop returns the user's most recent entry in a drop, or
// ErrNotFound.
func (r *EntryRepo) LatestEntryForDrop(ctx context.Context, userID, dropID string) (*model.DrawEntry, error) {
	entries, err := r.query(ctx,
		`SELECT `+entryColumns+` FROM draw_entries WHERE user_id = ? AND drop_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID, dropID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// GetEntry returns the entry for (user, drop, product), or ErrNotFound.
func (r *EntryRepo) GetEntry(ctx context.Context, userID, dropID, productID string) (*model.DrawEntry, error) {
	entries, err := r.query(ctx,
		`SELECT `+entryColumns+` FROM draw_entries WHERE user_id = ? AND drop_id = ? AND product_id = ?`,
		userID, dropID, productID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// UpdateEntryStatus moves an entry from one status to another and returns
// ErrConflict if the entry was not in the expected status.
func (r *EntryRepo) UpdateEntryStatus(ctx context.Context, entryID string, from, to model.EntryStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE draw_entries SET status = ? WHERE id = ? AND status = ?`, string(to), entryID, string(from))
	if err != nil {
		return errors.Wrap(err, "update entry status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update entry status")
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CommitSelection applies one product's selection outcome in a single
// transaction. The allocation row is locked first; the commit fails with
// ErrInsufficientInventory if it no longer has room for every winner and
// with ErrEntryNotPending if any listed entry was already decided. On any
// failure nothing is written.
func (r *EntryRepo) CommitSelection(ctx context.Context, c SelectionCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin selection")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT remaining_quantity FROM drop_allocations WHERE id = ? AND drop_id = ? FOR UPDATE`,
		c.AllocationID, c.DropID).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return errors.Wrap(err, "lock allocation")
	}
	if remaining < len(c.Winners) {
		return ErrInsufficientInventory
	}

	if err := markEntriesTx(ctx, tx, c.Winners, model.EntryStatusSelected, &c.SelectedAt); err != nil {
		return err
	}
	if err := markEntriesTx(ctx, tx, c.Losers, model.EntryStatusNotSelected, nil); err != nil {
		return err
	}

	if len(c.Winners) > 0 {
		res, err := tx.ExecContext(ctx,
			`UPDATE drop_allocations SET remaining_quantity = remaining_quantity - ?
			 WHERE id = ? AND remaining_quantity >= ?`, len(c.Winners), c.AllocationID, len(c.Winners))
		if err != nil {
			return errors.Wrap(err, "decrement allocation")
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return ErrInsufficientInventory
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit selection")
	}
	committed = true
	return nil
}

// markEntriesTx flips PENDING entries to status. Every listed entry must
// still be PENDING.
func markEntriesTx(ctx context.Context, tx *sql.Tx, ids []string, status model.EntryStatus, selectedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(status), nullTime(selectedAt))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE draw_entries SET status = ?, selected_at = ?
		 WHERE status = 'PENDING' AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return errors.Wrapf(err, "mark entries %s", status)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "mark entries %s", status)
	}
	if int(n) != len(ids) {
		return ErrEntryNotPending
	}
	return nil
}

func (r *EntryRepo) query(ctx context.Context, q string, args ...any) ([]model.DrawEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select entries")
	}
	defer rows.Close()

	entries := []model.DrawEntry{}
	for rows.Next() {
		var (
			e          model.DrawEntry
			variant    sql.NullString
			status     string
			selectedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.DropID, &e.ProductID, &variant, &status,
			&e.EntryCode, &selectedAt, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		e.VariantID = stringPtr(variant)
		e.Status = model.EntryStatus(status)
		e.SelectedAt = timePtr(selectedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate entries")
	}
	return entries, nil
}
