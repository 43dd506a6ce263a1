package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

var recordColumns = []string{
	"id", "date", "student_id", "status", "absence_reason", "marked_by", "marked_at", "updated_at",
}

type boiledRecord struct {
	ID            string      `boil:"id"`
	Date          core.Date   `boil:"date"`
	StudentID     string      `boil:"student_id"`
	Status        string      `boil:"status"`
	AbsenceReason null.String `boil:"absence_reason"`
	MarkedBy      null.String `boil:"marked_by"`
	MarkedAt      time.Time   `boil:"marked_at"`
	UpdatedAt     time.Time   `boil:"updated_at"`
}

func (r boiledRecord) values() []interface{} {
	return []interface{}{r.ID, r.Date, r.StudentID, r.Status, r.AbsenceReason, r.MarkedBy, r.MarkedAt, r.UpdatedAt}
}

type attendanceRepository struct {
	db   core.DB
	exec core.DBExecutor
	tx   *sql.Tx // set inside RunAtomic
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db core.DB) attendance.Repository {
	return &attendanceRepository{db: db, exec: db}
}

func (repo *attendanceRepository) boil(rec attendance.Record) boiledRecord {
	return boiledRecord{
		ID:            rec.ID,
		Date:          rec.Date,
		StudentID:     rec.StudentID,
		Status:        string(rec.Status),
		AbsenceReason: null.StringFromPtr(rec.AbsenceReason),
		MarkedBy:      null.StringFromPtr(rec.MarkedBy),
		MarkedAt:      rec.MarkedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
}

func (repo *attendanceRepository) unboil(r *boiledRecord) attendance.Record {
	if r == nil {
		return attendance.Record{}
	}
	return attendance.Record{
		ID:            r.ID,
		Date:          r.Date,
		StudentID:     r.StudentID,
		Status:        attendance.Status(r.Status),
		AbsenceReason: r.AbsenceReason.Ptr(),
		MarkedBy:      r.MarkedBy.Ptr(),
		MarkedAt:      r.MarkedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func (repo *attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func quotedRecordColumns() string {
	return strings.Join(strmangle.IdentQuoteSlice('"', '"', recordColumns), ", ")
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, filter attendance.GetFilter) (attendance.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return attendance.Record{}, attendance.ErrNotFound
		}
		args = append(args, filter.ID)
		conds = append(conds, fmt.Sprintf(`"id" = $%d`, len(args)))
	} else {
		args = append(args, filter.Date)
		conds = append(conds, fmt.Sprintf(`"date" = $%d`, len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conds = append(conds, fmt.Sprintf(`"student_id" = $%d`, len(args)))
	}

	var rec boiledRecord
	q := fmt.Sprintf(`SELECT %s FROM "attendance_records" WHERE %s`, quotedRecordColumns(), strings.Join(conds, " AND "))
	if err := queries.Raw(q, args...).Bind(ctx, repo.exec, &rec); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "finding record")
	}
	return repo.unboil(&rec), nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Date != nil {
			conds = append(conds, `"date" = `+arg(*filter.Date))
		}
		if filter.Month != nil {
			conds = append(conds, fmt.Sprintf(`"date" >= %s AND "date" <= %s`, arg(filter.Month.First()), arg(filter.Month.Last())))
		}
		if filter.StudentID != "" {
			conds = append(conds, `"student_id" = `+arg(filter.StudentID))
		}
		if filter.Status != "" {
			conds = append(conds, `"status" = `+arg(string(filter.Status)))
		}
	}

	q := fmt.Sprintf(`SELECT %s FROM "attendance_records"`, quotedRecordColumns())
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + core.OrderBy(ordering, attendance.OrderingColumns, "date ASC") + ", id ASC"

	var recs []*boiledRecord
	if err := queries.Raw(q, args...).Bind(ctx, repo.exec, &recs); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	records := make([]attendance.Record, 0, len(recs))
	for _, r := range recs {
		records = append(records, repo.unboil(r))
	}
	return records, nil
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	r := repo.boil(rec)

	q := fmt.Sprintf(`INSERT INTO "attendance_records" (%s) VALUES (%s)
		ON CONFLICT ("student_id", "date") DO UPDATE SET
			"status" = EXCLUDED."status",
			"absence_reason" = EXCLUDED."absence_reason",
			"marked_by" = EXCLUDED."marked_by",
			"updated_at" = EXCLUDED."updated_at"
		RETURNING %s`,
		quotedRecordColumns(), strmangle.Placeholders(true, len(recordColumns), 1, 1), quotedRecordColumns())

	var saved boiledRecord
	if err := queries.Raw(q, r.values()...).Bind(ctx, repo.exec, &saved); err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting record")
	}
	return repo.unboil(&saved), nil
}

func (repo *attendanceRepository) InsertRecordIfAbsent(ctx context.Context, rec attendance.Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	r := repo.boil(rec)

	q := fmt.Sprintf(`INSERT INTO "attendance_records" (%s) VALUES (%s) ON CONFLICT ("student_id", "date") DO NOTHING`,
		quotedRecordColumns(), strmangle.Placeholders(true, len(recordColumns), 1, 1))
	res, err := queries.Raw(q, r.values()...).ExecContext(ctx, repo.exec)
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
	res, err := queries.Raw(`DELETE FROM "attendance_records" WHERE "student_id" = $1 AND "date" = $2`, studentID, date).
		ExecContext(ctx, repo.exec)
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
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	q := fmt.Sprintf(`UPDATE "attendance_records" SET "absence_reason" = $1, "updated_at" = $2
		WHERE "id" = $3 AND "student_id" = $4 AND "status" = $5
		RETURNING %s`, quotedRecordColumns())

	var saved boiledRecord
	err := queries.Raw(q, reason, updatedAt.UTC(), id, studentID, string(attendance.StatusAbsent)).Bind(ctx, repo.exec, &saved)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "updating absence reason")
	}
	return repo.unboil(&saved), nil
}

func (repo *attendanceRepository) RunAtomic(ctx context.Context, fn func(repo attendance.Repository) error) error {
	if repo.tx != nil {
		return fn(repo)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
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
