package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-perfiles/internal/models"
	"ms-perfiles/internal/registrations/lock"
)

var ErrNotFound = errors.New("registration event not found")

// DB is the event store. Locker serializes conditional appends per
// combination; when nil an in-process KeyedMutex is used.
type DB struct {
	Bun    *bun.DB
	Locker lock.Locker
}

func New(bunDB *bun.DB, locker lock.Locker) *DB {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &DB{Bun: bunDB, Locker: locker}
}

// CreateSchema creates the events table and its indexes from the model. Used
// for SQLite development databases and tests; Postgres is migrated with SQL
// files.
func CreateSchema(ctx context.Context, idb bun.IDB) error {
	_, err := idb.NewCreateTable().
		Model((*models.RegistrationEvent)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create registration_events: %w", err)
	}

	_, err = idb.NewCreateIndex().
		Model((*models.RegistrationEvent)(nil)).
		Index("idx_registration_events_combination").
		Column("serial", "model", "side").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create combination index: %w", err)
	}

	_, err = idb.NewCreateIndex().
		Model((*models.RegistrationEvent)(nil)).
		Index("idx_registration_events_serial").
		Column("serial").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create serial index: %w", err)
	}
	return nil
}

func combinationQuery(q *bun.SelectQuery, key models.CombinationKey) *bun.SelectQuery {
	return q.
		Where("serial = ?", key.Serial).
		Where("model = ?", key.Model).
		Where("side = ?", key.Side)
}

// CountFor returns the number of events recorded for key.
func (d *DB) CountFor(ctx context.Context, key models.CombinationKey) (int, error) {
	return countFor(ctx, d.Bun, key)
}

func countFor(ctx context.Context, idb bun.IDB, key models.CombinationKey) (int, error) {
	return combinationQuery(idb.NewSelect().Model((*models.RegistrationEvent)(nil)), key).Count(ctx)
}

// LastEventFor returns the most recently appended event for key, or nil when
// the combination has no events.
func (d *DB) LastEventFor(ctx context.Context, key models.CombinationKey) (*models.RegistrationEvent, error) {
	return lastEventFor(ctx, d.Bun, key)
}

func lastEventFor(ctx context.Context, idb bun.IDB, key models.CombinationKey) (*models.RegistrationEvent, error) {
	var event models.RegistrationEvent
	err := combinationQuery(idb.NewSelect().Model(&event), key).
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// AppendIfBelow inserts event only while the combination holds fewer than
// ceiling events. It returns whether the row was written and the count the
// combination holds afterwards. Attempts on the same combination are
// serialized by the Locker and, on Postgres, by a transaction-scoped advisory
// lock so separate replicas cannot interleave either.
func (d *DB) AppendIfBelow(ctx context.Context, event *models.RegistrationEvent, ceiling int) (bool, int, error) {
	key := event.Key()

	locker := d.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
		d.Locker = locker
	}
	unlock, err := locker.Lock(ctx, key.String())
	if err != nil {
		return false, 0, fmt.Errorf("acquire combination lock: %w", err)
	}
	defer unlock()

	var appended bool
	var count int
	err = d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if d.Bun.Dialect().Name() == dialect.PG {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key.String()); err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		current, err := countFor(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("count combination: %w", err)
		}
		if current >= ceiling {
			count = current
			return nil
		}

		_, err = tx.NewInsert().
			Model(event).
			ExcludeColumn("created_at").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert registration event: %w", err)
		}
		appended = true
		count = current + 1
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return appended, count, nil
}

// HistoryBySerial returns every event of serial, most recent first.
func (d *DB) HistoryBySerial(ctx context.Context, serial string) ([]models.RegistrationEvent, error) {
	events := []models.RegistrationEvent{}
	err := d.Bun.NewSelect().
		Model(&events).
		Where("serial = ?", serial).
		Order("id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

const latestBySerialQuery = `
SELECT e.id, e.serial, e.model, e.side, e.registered_on, e.employee_name,
	(SELECT COUNT(*) FROM registration_events c
		WHERE c.serial = e.serial AND c.model = e.model AND c.side = e.side) AS combination_count,
	(SELECT COUNT(*) FROM registration_events s
		WHERE s.serial = e.serial) AS serial_count
FROM registration_events e
JOIN (SELECT MAX(id) AS max_id FROM registration_events GROUP BY serial) latest
	ON latest.max_id = e.id
ORDER BY e.serial ASC
LIMIT ? OFFSET ?`

// ListLatestBySerial returns one row per serial holding its most recent event.
// combination_count is scoped to that event's combination, serial_count to
// the whole serial.
func (d *DB) ListLatestBySerial(ctx context.Context, offset, limit int) ([]models.SerialRow, error) {
	rows := []models.SerialRow{}
	if err := d.Bun.NewRaw(latestBySerialQuery, limit, offset).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Date = rows[i].RegisteredOn.Format("2006-01-02")
	}
	return rows, nil
}

// CountSerials returns the number of distinct serials with at least one event.
func (d *DB) CountSerials(ctx context.Context) (int, error) {
	var total int
	err := d.Bun.NewRaw("SELECT COUNT(DISTINCT serial) FROM registration_events").Scan(ctx, &total)
	return total, err
}

const statsQuery = `
SELECT
	COUNT(*) AS total_combinations,
	CAST(COALESCE(SUM(cnt), 0) AS INTEGER) AS total_events,
	CAST(COALESCE(SUM(CASE WHEN cnt < ? THEN 1 ELSE 0 END), 0) AS INTEGER) AS active_combinations,
	CAST(COALESCE(SUM(CASE WHEN cnt >= ? THEN 1 ELSE 0 END), 0) AS INTEGER) AS inactive_combinations
FROM (
	SELECT COUNT(*) AS cnt FROM registration_events GROUP BY serial, model, side
) combos`

// Stats aggregates per-combination counts against ceiling.
func (d *DB) Stats(ctx context.Context, ceiling int) (*models.GeneralStats, error) {
	var stats models.GeneralStats
	if err := d.Bun.NewRaw(statsQuery, ceiling, ceiling).Scan(ctx, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (d *DB) GetByID(ctx context.Context, id int64) (*models.RegistrationEvent, error) {
	var event models.RegistrationEvent
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent rewrites the descriptive columns of an existing event. The
// registration date and identifier never change.
func (d *DB) UpdateEvent(ctx context.Context, event *models.RegistrationEvent) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("serial", "model", "side", "employee_name").
		Where("id = ?", event.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	res, err := d.Bun.NewDelete().
		Model((*models.RegistrationEvent)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
