package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/limited-drops/internal/model"
)

// DropRepo manages persistence for drops and their allocations. All
// timestamps are stored in UTC.
type DropRepo struct {
	db *sql.DB
}

// NewDropRepo returns a new DropRepo bound to the given database.
func NewDropRepo(db *sql.DB) *DropRepo { return &DropRepo{db: db} }

const dropColumns = `id, name, description, type, status, start_time, end_time, early_access_start,
	member_only, notify_subscribers, hero_image, teaser_text, draw_completed, draw_completed_at,
	created_at, updated_at`

// CreateDrop inserts the drop and its allocations in one transaction.
// IDs must already be assigned by the caller.
func (r *DropRepo) CreateDrop(ctx context.Context, d *model.Drop) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create drop")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO drops (id, name, description, type, status, start_time, end_time, early_access_start,
		member_only, notify_subscribers, hero_image, teaser_text, draw_completed, draw_completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		d.ID, d.Name, d.Description, string(d.Type), string(d.Status), d.StartTime.UTC(),
		nullTime(d.EndTime), nullTime(d.EarlyAccessStart),
		d.MemberOnly, d.NotifySubscribers, d.HeroImage, nullString(d.TeaserText),
		d.DrawCompleted, nullTime(d.DrawCompletedAt), d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
	); err != nil {
		return errors.Wrap(err, "insert drop")
	}

	if len(d.Allocations) > 0 {
		query := `INSERT INTO drop_allocations (id, drop_id, product_id, allocated_quantity, remaining_quantity, max_per_customer) VALUES `
		args := make([]interface{}, 0, len(d.Allocations)*6)
		for i, a := range d.Allocations {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?)"
			args = append(args, a.ID, d.ID, a.ProductID, a.AllocatedQuantity, a.RemainingQuantity, a.MaxPerCustomer)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isDuplicateKey(err, "") {
				return errors.Wrap(ErrConflict, "duplicate product in allocations")
			}
			return errors.Wrap(err, "insert allocations")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit create drop")
	}
	committed = true
	return nil
}

// GetDrop loads a drop with its allocations. Returns ErrNotFound when the
// drop does not exist.
func (r *DropRepo) GetDrop(ctx context.Context, id string) (*model.Drop, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dropColumns+` FROM drops WHERE id = ?`, id)
	d, err := scanDrop(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select drop")
	}
	allocs, err := r.allocationsFor(ctx, []string{d.ID})
	if err != nil {
		return nil, err
	}
	d.Allocations = allocs[d.ID]
	if d.Allocations == nil {
		d.Allocations = []model.DropAllocation{}
	}
	return d, nil
}

// ListDrops returns drops matching f ordered by start time. Allocations are
// loaded with a single follow-up query.
func (r *DropRepo) ListDrops(ctx context.Context, f DropFilter) ([]model.Drop, error) {
	where := []string{}
	args := []any{}

	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*f.Type))
	}
	if f.StartFrom != nil {
		where = append(where, "start_time >= ?")
		args = append(args, f.StartFrom.UTC())
	}
	if f.StartTo != nil {
		where = append(where, "start_time <= ?")
		args = append(args, f.StartTo.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dropColumns+` FROM drops WHERE `+cond+` ORDER BY start_time ASC, id ASC LIMIT ?`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list drops")
	}
	defer rows.Close()

	var drops []model.Drop
	var ids []string
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan drop")
		}
		drops = append(drops, *d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate drops")
	}
	if len(drops) == 0 {
		return []model.Drop{}, nil
	}

	allocs, err := r.allocationsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range drops {
		drops[i].Allocations = allocs[drops[i].ID]
		if drops[i].Allocations == nil {
			drops[i].Allocations = []model.DropAllocation{}
		}
	}
	return drops, nil
}

// UpdateStatus moves a drop from one status to another. The write only
// happens while the stored status still equals from, so concurrent
// refreshes with the same derivation are harmless. It reports whether a
// row changed.
func (r *DropRepo) UpdateStatus(ctx context.Context, id string, from, to model.DropStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drops SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, errors.Wrap(err, "update drop status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "update drop status")
	}
	return n > 0, nil
}

// MarkDrawCompleted records that a selection pass finished. Re-runs refresh
// draw_completed_at.
func (r *DropRepo) MarkDrawCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drops SET draw_completed = TRUE, draw_completed_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "mark draw completed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementRemaining takes qty units from an allocation. It fails with
// ErrInsufficientInventory rather than letting remaining_quantity go
// negative.
func (r *DropRepo) DecrementRemaining(ctx context.Context, allocationID string, qty int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drop_allocations SET remaining_quantity = remaining_quantity - ?
		 WHERE id = ? AND remaining_quantity >= ?`, qty, allocationID, qty)
	if err != nil {
		return errors.Wrap(err, "decrement remaining")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "decrement remaining")
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}

// Stats returns counts across all drops and entries.
func (r *DropRepo) Stats(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	const q = `SELECT
		COUNT(*),
		COALESCE(SUM(status = 'UPCOMING'), 0),
		COALESCE(SUM(status = 'LIVE'), 0),
		COALESCE(SUM(type = 'DRAW'), 0),
		(SELECT COUNT(*) FROM draw_entries)
		FROM drops`
	if err := r.db.QueryRowContext(ctx, q).Scan(
		&s.TotalDrops, &s.UpcomingDrops, &s.LiveDrops, &s.DrawDrops, &s.TotalEntries,
	); err != nil {
		return model.Stats{}, errors.Wrap(err, "drop stats")
	}
	return s, nil
}

func (r *DropRepo) allocationsFor(ctx context.Context, dropIDs []string) (map[string][]model.DropAllocation, error) {
	args := make([]any, 0, len(dropIDs))
	for _, id := range dropIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, drop_id, product_id, allocated_quantity, remaining_quantity, max_per_customer
		 FROM drop_allocations WHERE drop_id IN (`+placeholders(len(dropIDs))+`) ORDER BY drop_id, product_id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select allocations")
	}
	defer rows.Close()

	out := make(map[string][]model.DropAllocation, len(dropIDs))
	for rows.Next() {
		var a model.DropAllocation
		if err := rows.Scan(&a.ID, &a.DropID, &a.ProductID, &a.AllocatedQuantity, &a.RemainingQuantity, &a.MaxPerCustomer); err != nil {
			return nil, errors.Wrap(err, "scan allocation")
		}
		out[a.DropID] = append(out[a.DropID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate allocations")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrop(s rowScanner) (*model.Drop, error) {
	var (
		d                          model.Drop
		typ, status                string
		endTime, earlyStart, drawn sql.NullTime
		teaser                     sql.NullString
	)
	if err := s.Scan(
		&d.ID, &d.Name, &d.Description, &typ, &status, &d.StartTime, &endTime, &earlyStart,
		&d.MemberOnly, &d.NotifySubscribers, &d.HeroImage, &teaser, &d.DrawCompleted, &drawn,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Type = model.DropType(typ)
	d.Status = model.DropStatus(status)
	d.EndTime = timePtr(endTime)
	d.EarlyAccessStart = timePtr(earlyStart)
	d.DrawCompletedAt = timePtr(drawn)
	d.TeaserText = stringPtr(teaser)
	return &d, nil
}
