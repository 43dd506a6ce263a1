package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

const recordColumns = "id, date, student_id, status, absence_reason, marked_by, marked_at, updated_at"

type recordRow struct {
	ID            string         `db:"id"`
	Date          core.Date      `db:"date"`
	StudentID     string         `db:"student_id"`
	Status        string         `db:"status"`
	AbsenceReason sql.NullString `db:"absence_reason"`
	MarkedBy      sql.NullString `db:"marked_by"`
	MarkedAt      time.Time      `db:"marked_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toRecordRow(rec attendance.Record) recordRow {
	row := recordRow{
		ID:        rec.ID,
		Date:      rec.Date,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
		MarkedAt:  rec.MarkedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	if rec.AbsenceReason != nil {
		row.AbsenceReason = sql.NullString{String: *rec.AbsenceReason, Valid: true}
	}
	if rec.MarkedBy != nil {
		row.MarkedBy = sql.NullString{String: *rec.MarkedBy, Valid: true}
	}
	return row
}

func (row recordRow) record() attendance.Record {
	rec := attendance.Record{
		ID:        row.ID,
		Date:      row.Date,
		StudentID: row.StudentID,
		Status:    attendance.Status(row.Status),
		MarkedAt:  row.MarkedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.AbsenceReason.Valid {
		rec.AbsenceReason = core.StringPtr(row.AbsenceReason.String)
	}
	if row.MarkedBy.Valid {
		rec.MarkedBy = core.StringPtr(row.MarkedBy.String)
	}
	return rec
}

type attendanceRepository struct {
	db   *sqlx.DB
	exec sqlx.ExtContext
	tx   *sqlx.Tx // set inside RunAtomic
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db, exec: db}
}

func (repo *attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, filter attendance.GetFilter) (attendance.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, filter.ID)
	} else {
		conds = append(conds, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}

	var row recordRow
	q := "SELECT " + recordColumns + " FROM attendance_records WHERE " + strings.Join(conds, " AND ")
	if err := sqlx.GetContext(ctx, repo.exec, &row, repo.exec.Rebind(q), args...); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "finding record")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Date != nil {
			conds = append(conds, "date = ?")
			args = append(args, *filter.Date)
		}
		if filter.Month != nil {
			conds = append(conds, "date >= ? AND date <= ?")
			args = append(args, filter.Month.First(), filter.Month.Last())
		}
		if filter.StudentID != "" {
			conds = append(conds, "student_id = ?")
			args = append(args, filter.StudentID)
		}
		if filter.Status != "" {
			conds = append(conds, "status = ?")
			args = append(args, string(filter.Status))
		}
	}

	q := "SELECT " + recordColumns + " FROM attendance_records"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.OrderBy(ordering, attendance.OrderingColumns, "date ASC") + ", id ASC"

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	q := `INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (:id, :date, :student_id, :status, :absence_reason, :marked_by, :marked_at, :updated_at)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = excluded.status,
			absence_reason = excluded.absence_reason,
			marked_by = excluded.marked_by,
			updated_at = excluded.updated_at
		RETURNING ` + recordColumns
	q, args, err := sqlx.Named(q, toRecordRow(rec))
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "binding record")
	}

	var row recordRow
	if err = sqlx.GetContext(ctx, repo.exec, &row, repo.exec.Rebind(q), args...); err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting record")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) InsertRecordIfAbsent(ctx context.Context, rec attendance.Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	q := `INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (:id, :date, :student_id, :status, :absence_reason, :marked_by, :marked_at, :updated_at)
		ON CONFLICT (student_id, date) DO NOTHING`
	q, args, err := sqlx.Named(q, toRecordRow(rec))
	if err != nil {
		return false, errors.Wrap(err, "binding record")
	}
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q), args...)
	if err != nil {
		return false, errors.Wrap(err, "inserting record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting inserted records")
	}
	return n > 0, nil
}

func (repo *attendanceRepository) DeleteRecord(ctx context.Context, studentID string, date core.Date) (bool, error) {
	q := "DELETE FROM attendance_records WHERE student_id = ? AND date = ?"
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q), studentID, date)
	if err != nil {
		return false, errors.Wrap(err, "deleting record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting deleted records")
	}
	return n > 0, nil
}

func (repo *attendanceRepository) UpdateAbsenceReason(ctx context.Context, id, studentID, reason string, updatedAt time.Time) (attendance.Record, error) {
	q := `UPDATE attendance_records SET absence_reason = ?, updated_at = ?
		WHERE id = ? AND student_id = ? AND status = ?
		RETURNING ` + recordColumns

	var row recordRow
	err := sqlx.GetContext(ctx, repo.exec, &row, repo.exec.Rebind(q),
		reason, updatedAt.UTC(), id, studentID, string(attendance.StatusAbsent))
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "updating absence reason")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) RunAtomic(ctx context.Context, fn func(repo attendance.Repository) error) error {
	if repo.tx != nil {
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&attendanceRepository{db: repo.db, exec: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
