package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/pkg/database"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// StoreBinder returns a SchedulingStore reading through exec, usually an open transaction.
type StoreBinder func(exec sqlx.ExtContext) SchedulingStore

// inSerializableTx runs fn in a SERIALIZABLE transaction and rolls back when
// fn or the commit fails. A panic in fn rolls back and is re-raised.
func inSerializableTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storageUnavailable(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// bookingWriteError maps Postgres failures raised while writing exams and assignments.
func bookingWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case database.IsSerializationFailure(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "concurrent booking detected, retry")
	case database.IsExclusionViolation(err):
		return appErrors.Wrap(err, appErrors.ErrRoomConflict.Code, appErrors.ErrRoomConflict.Status, appErrors.ErrRoomConflict.Message)
	case database.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrDuplicateAssignment.Code, appErrors.ErrDuplicateAssignment.Status, appErrors.ErrDuplicateAssignment.Message)
	case database.IsForeignKeyViolation(err):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "referenced record does not exist")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return storageUnavailable(err, op)
}
