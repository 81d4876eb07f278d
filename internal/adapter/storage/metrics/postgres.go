package metricstorage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leporo/sqlf"

	"github.com/trackfit/trackfit/internal/adapter/storage"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

type PostgresStorage struct {
	db storage.DBContext
}

func NewPostgresStorage(db storage.DBContext) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Insert creates one entry row and returns it with the identifier the
// database assigned.
func (s *PostgresStorage) Insert(ctx context.Context, e metric.Entry) (metric.Entry, error) {
	q := sqlf.InsertInto("metric_entries").
		Set("kind", string(e.Kind)).
		Set("value", e.Value).
		Set("date", e.Date).
		Set("owner_id", e.OwnerID).
		Returning("entry_id").To(&e.ID)

	if err := q.QueryRowAndClose(ctx, s.db); err != nil {
		return metric.Entry{}, storage.InternalError(err)
	}

	return e, nil
}

// ListByOwner returns the owner's entries for one kind, newest date
// first. Ties on the same date come back newest row first.
func (s *PostgresStorage) ListByOwner(ctx context.Context, ownerID string, kind metric.Kind) ([]metric.Entry, error) {
	var tmp metric.Entry
	var kindCol string

	q := sqlf.From("metric_entries m").
		Select("m.entry_id").To(&tmp.ID).
		Select("m.kind").To(&kindCol).
		Select("m.value").To(&tmp.Value).
		Select("to_char(m.date, 'YYYY-MM-DD')").To(&tmp.Date).
		Select("m.owner_id").To(&tmp.OwnerID).
		Where("m.owner_id = ?", ownerID).
		Where("m.kind = ?", string(kind)).
		OrderBy("m.date DESC", "m.entry_id DESC")

	var entries []metric.Entry
	err := q.QueryAndClose(ctx, s.db, func(rows *sql.Rows) {
		e := tmp
		e.Kind = metric.Kind(kindCol)
		entries = append(entries, e)
	})

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}

	return entries, nil
}

// Delete removes one entry of the owner by identifier. The owner
// filter is the row-level access policy of the self-hosted mode.
func (s *PostgresStorage) Delete(ctx context.Context, ownerID string, id int64) error {
	q := sqlf.DeleteFrom("metric_entries").
		Where("entry_id = ?", id).
		Where("owner_id = ?", ownerID)

	res, err := q.ExecAndClose(ctx, s.db)
	if err != nil {
		return storage.InternalError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storage.InternalError(err)
	}
	if affected == 0 {
		return metric.ErrEntryNotFound
	}
	return nil
}
