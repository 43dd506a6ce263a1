package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrInvalidMonthFormat = errors.New("invalid month, expected format YYYY-MM")
	ErrFutureMonth        = errors.New("cannot mark attendance for a future month")
	ErrFutureDate         = errors.New("cannot mark attendance for a future date")
	ErrInvalidStatus      = errors.New("invalid attendance status")
	ErrNotFound           = errors.New("attendance record not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrInvalidState       = errors.New("absence reason can only be set on an absent record")
)

// IsMonthError reports whether err is due to a bad month or date input.
func IsMonthError(err error) bool {
	return errors.Is(err, ErrInvalidMonthFormat) || errors.Is(err, ErrFutureMonth) || errors.Is(err, ErrFutureDate)
}

// IsNotFound reports whether err is due to a missing record or student.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStudentNotFound)
}

type (
	Repository interface {
		// GetRecord finds one record by ID or by (StudentID, Date). A non-empty StudentID always restricts the lookup.
		GetRecord(ctx context.Context, filter GetFilter) (Record, error)
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		// UpsertRecord creates the (student, date) record or replaces its status, reason, marker & updated_at.
		UpsertRecord(ctx context.Context, rec Record) (Record, error)
		// InsertRecordIfAbsent creates the record unless one exists for (student, date) and reports whether it did.
		InsertRecordIfAbsent(ctx context.Context, rec Record) (bool, error)
		DeleteRecord(ctx context.Context, studentID string, date core.Date) (bool, error)
		// UpdateAbsenceReason sets the reason of the student's ABSENT record `id`; ErrNotFound otherwise.
		UpdateAbsenceReason(ctx context.Context, id, studentID string, reason string, updatedAt time.Time) (Record, error)
		// RunAtomic calls fn with a Repository bound to a single all-or-nothing unit of work.
		RunAtomic(ctx context.Context, fn func(repo Repository) error) error
	}

	// Students gives access to the students attendance is kept for.
	Students interface {
		GetStudent(ctx context.Context, id string) (user.User, error)
		QueryStudents(ctx context.Context, search string) ([]user.User, error)
	}

	// Cache stores monthly summaries. InvalidateMonths drops a month's entries and moves its version forward;
	// a Set carrying an older version than the month's current one is discarded.
	Cache interface {
		MonthVersion(ctx context.Context, month Month) (int64, error)
		GetClassSummary(ctx context.Context, month Month) (ClassSummary, bool, error)
		SetClassSummary(ctx context.Context, month Month, version int64, summary ClassSummary) error
		GetStudentSummary(ctx context.Context, studentID string, month Month) (StudentSummary, bool, error)
		SetStudentSummary(ctx context.Context, month Month, version int64, summary StudentSummary) error
		InvalidateMonths(ctx context.Context, months ...Month) error
	}

	Service struct {
		repo     Repository
		students Students
		cache    Cache
		logger   core.Logger
	}
)

// NewService returns the attendance Service; cache may be nil.
func NewService(repo Repository, students Students, cache Cache, logger core.Logger) *Service {
	return &Service{repo: repo, students: students, cache: cache, logger: logger}
}

// Today is the current naive calendar date.
func Today() core.Date { return core.DateOf(NowFunc()) }

// CurrentMonth is the month key of Today.
func CurrentMonth() string { return MonthOf(Today()).String() }

// storageErr lets domain errors through and reports everything else as a core.StorageError.
func storageErr(op string, err error) error {
	if IsNotFound(err) || errors.Is(err, ErrInvalidState) || IsMonthError(err) {
		return err
	}
	return core.NewStorageError(op, err)
}

func (svc *Service) checkStudent(ctx context.Context, id string) error {
	if _, err := svc.students.GetStudent(ctx, id); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return ErrStudentNotFound
		}
		return core.NewStorageError("finding student", err)
	}
	return nil
}

func (svc *Service) invalidate(ctx context.Context, months ...Month) {
	if svc.cache == nil || len(months) == 0 {
		return
	}
	if err := svc.cache.InvalidateMonths(ctx, months...); err != nil {
		svc.logger.Error("invalidating summary cache", errors.Wrap(err, "invalidating summary cache"))
	}
}

// cacheVersion reads the month's cache version before its records are queried.
// Summaries are not cached when it is unavailable.
func (svc *Service) cacheVersion(ctx context.Context, month Month) (int64, bool) {
	if svc.cache == nil {
		return 0, false
	}
	version, err := svc.cache.MonthVersion(ctx, month)
	if err != nil {
		svc.logger.Warn("reading summary cache version", errors.Wrap(err, "reading summary cache version"))
		return 0, false
	}
	return version, true
}

func newRecord(studentID string, date core.Date, status Status, teacher Teacher, now time.Time) Record {
	rec := Record{
		ID:        uuid.New().String(),
		Date:      date,
		StudentID: studentID,
		Status:    status,
		MarkedAt:  now,
		UpdatedAt: now,
	}
	if teacher.ID != "" {
		rec.MarkedBy = core.StringPtr(teacher.ID)
	}
	return rec
}

func invalidStatusErr() error {
	return core.NewValidationError(ErrInvalidStatus, core.FieldError{Field: "status", Error: ErrInvalidStatus.Error()})
}

// BulkMark writes `bm.Status` for every resolved date of `bm.Month` and returns the number of days written.
// Existing records are deleted & recreated when bm.Overwrite is set, and left untouched otherwise.
// The batch is all-or-nothing.
func (svc *Service) BulkMark(ctx context.Context, teacher Teacher, bm BulkMark) (int, error) {
	month, err := ParseMonth(bm.Month)
	if err != nil {
		return 0, err
	}
	status := cleanStatus(bm.Status)
	if !status.Valid() {
		return 0, invalidStatusErr()
	}
	today := Today()
	if month.After(MonthOf(today)) {
		return 0, ErrFutureMonth
	}
	if err := svc.checkStudent(ctx, bm.StudentID); err != nil {
		return 0, err
	}

	dates := month.Dates(today)
	now := NowFunc().UTC()
	var written int

	err = svc.repo.RunAtomic(ctx, func(repo Repository) error {
		written = 0
		for _, date := range dates {
			rec := newRecord(bm.StudentID, date, status, teacher, now)
			if bm.Overwrite {
				if _, err := repo.DeleteRecord(ctx, bm.StudentID, date); err != nil {
					return errors.Wrapf(err, "deleting record of %s", date)
				}
				if _, err := repo.UpsertRecord(ctx, rec); err != nil {
					return errors.Wrapf(err, "creating record of %s", date)
				}
				written++
				continue
			}

			inserted, err := repo.InsertRecordIfAbsent(ctx, rec)
			if err != nil {
				return errors.Wrapf(err, "creating record of %s", date)
			}
			if inserted {
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("bulk marking attendance", err)
	}

	svc.invalidate(ctx, month)
	svc.logger.Info(fmt.Sprintf("bulk marked %d/%d days of %s as %s", written, len(dates), month, status),
		map[string]interface{}{"student": bm.StudentID, "teacher": teacher.ID, "overwrite": bm.Overwrite})
	return written, nil
}

// MarkDay creates or updates the record of each entry on `dm.Date`, all-or-nothing.
// A reason is kept while the record stays ABSENT and dropped otherwise.
func (svc *Service) MarkDay(ctx context.Context, teacher Teacher, dm DayMark) ([]Record, error) {
	if dm.Date.IsZero() {
		return nil, core.NewValidationError(errors.New("date is required"), core.FieldError{Field: "date", Error: "this field is required"})
	}
	if dm.Date.After(Today()) {
		return nil, ErrFutureDate
	}

	seen := make(map[string]bool, len(dm.Records))
	for i, entry := range dm.Records {
		status := cleanStatus(entry.Status)
		if !status.Valid() {
			return nil, invalidStatusErr()
		}
		dm.Records[i].Status = status
		if seen[entry.StudentID] {
			continue
		}
		if err := svc.checkStudent(ctx, entry.StudentID); err != nil {
			return nil, err
		}
		seen[entry.StudentID] = true
	}

	now := NowFunc().UTC()
	records := make([]Record, 0, len(dm.Records))

	err := svc.repo.RunAtomic(ctx, func(repo Repository) error {
		records = records[:0]
		for _, entry := range dm.Records {
			rec := newRecord(entry.StudentID, dm.Date, entry.Status, teacher, now)

			if entry.Status == StatusAbsent {
				existing, err := repo.GetRecord(ctx, GetFilter{StudentID: entry.StudentID, Date: dm.Date})
				switch {
				case err == nil:
					if existing.Status == StatusAbsent {
						rec.AbsenceReason = existing.AbsenceReason
					}
				case errors.Cause(err) != ErrNotFound:
					return errors.Wrap(err, "finding existing record")
				}
			}

			saved, err := repo.UpsertRecord(ctx, rec)
			if err != nil {
				return errors.Wrapf(err, "saving record of student %s", entry.StudentID)
			}
			records = append(records, saved)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("marking attendance", err)
	}

	svc.invalidate(ctx, MonthOf(dm.Date))
	return records, nil
}

// SetAbsenceReason overwrites the reason of the student's own ABSENT record.
// Records of other students are reported as not found.
func (svc *Service) SetAbsenceReason(ctx context.Context, student Student, recordID, reason string) (Record, error) {
	var rec Record
	err := svc.repo.RunAtomic(ctx, func(repo Repository) error {
		current, err := repo.GetRecord(ctx, GetFilter{ID: recordID, StudentID: student.ID})
		if err != nil {
			return err
		}
		if current.Status != StatusAbsent {
			return ErrInvalidState
		}
		rec, err = repo.UpdateAbsenceReason(ctx, current.ID, student.ID, reason, NowFunc().UTC())
		return err
	})
	if err != nil {
		return Record{}, storageErr("setting absence reason", err)
	}

	svc.invalidate(ctx, MonthOf(rec.Date))
	return rec, nil
}

// RecordsForDate lists the records of every student on `date`.
func (svc *Service) RecordsForDate(ctx context.Context, date core.Date) ([]Record, error) {
	if date.IsZero() {
		return []Record{}, nil
	}
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{Date: &date}, byDateAsc)
	if err != nil {
		return nil, storageErr("querying records", err)
	}
	return records, nil
}

// StudentRecords lists the student's own records, newest first, optionally restricted to a month.
func (svc *Service) StudentRecords(ctx context.Context, student Student, month string) ([]Record, error) {
	filter := &QueryFilter{StudentID: student.ID}
	if month != "" {
		m, err := ParseMonth(month)
		if err != nil {
			return nil, err
		}
		filter.Month = &m
	}
	records, err := svc.repo.QueryRecords(ctx, filter, byDateDesc)
	if err != nil {
		return nil, storageErr("querying records", err)
	}
	return records, nil
}

// ClassSummary aggregates all students' records of `month`.
func (svc *Service) ClassSummary(ctx context.Context, month string) (ClassSummary, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return ClassSummary{}, err
	}

	if svc.cache != nil {
		summary, ok, err := svc.cache.GetClassSummary(ctx, m)
		if err != nil {
			svc.logger.Warn("reading class summary cache", errors.Wrap(err, "reading class summary cache"))
		} else if ok {
			return summary, nil
		}
	}

	version, cacheable := svc.cacheVersion(ctx, m)
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{Month: &m}, byDateAsc)
	if err != nil {
		return ClassSummary{}, storageErr("querying records", err)
	}
	summary := SummarizeClass(m, records)

	if cacheable {
		if err := svc.cache.SetClassSummary(ctx, m, version, summary); err != nil {
			svc.logger.Warn("writing class summary cache", errors.Wrap(err, "writing class summary cache"))
		}
	}
	return summary, nil
}

// StudentSummary aggregates one student's records of `month`.
func (svc *Service) StudentSummary(ctx context.Context, studentID, month string) (StudentSummary, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return StudentSummary{}, err
	}
	if err := svc.checkStudent(ctx, studentID); err != nil {
		return StudentSummary{}, err
	}

	if svc.cache != nil {
		summary, ok, err := svc.cache.GetStudentSummary(ctx, studentID, m)
		if err != nil {
			svc.logger.Warn("reading student summary cache", errors.Wrap(err, "reading student summary cache"))
		} else if ok {
			return summary, nil
		}
	}

	version, cacheable := svc.cacheVersion(ctx, m)
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{StudentID: studentID, Month: &m}, byDateAsc)
	if err != nil {
		return StudentSummary{}, storageErr("querying records", err)
	}
	summary := SummarizeStudent(studentID, m, records)

	if cacheable {
		if err := svc.cache.SetStudentSummary(ctx, m, version, summary); err != nil {
			svc.logger.Warn("writing student summary cache", errors.Wrap(err, "writing student summary cache"))
		}
	}
	return summary, nil
}
