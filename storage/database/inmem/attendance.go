package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
	tx map[string]attendance.Record // staged copy; set inside RunAtomic, which holds the write lock
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) records() map[string]attendance.Record {
	if repo.tx != nil {
		return repo.tx
	}
	return repo.db.table
}

func (repo *attendanceRepository) rlock() func() {
	if repo.tx != nil {
		return func() {}
	}
	repo.db.mutex.RLock()
	return repo.db.mutex.RUnlock
}

func (repo *attendanceRepository) lock() func() {
	if repo.tx != nil {
		return func() {}
	}
	repo.db.mutex.Lock()
	return repo.db.mutex.Unlock
}

func (repo *attendanceRepository) find(studentID string, date core.Date) (attendance.Record, bool) {
	for _, rec := range repo.records() {
		if rec.StudentID == studentID && rec.Date == date {
			return rec, true
		}
	}
	return attendance.Record{}, false
}

func (repo *attendanceRepository) GetRecord(_ context.Context, filter attendance.GetFilter) (attendance.Record, error) {
	defer repo.rlock()()

	if filter.ID != "" {
		rec, ok := repo.records()[filter.ID]
		if !ok || (filter.StudentID != "" && rec.StudentID != filter.StudentID) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return rec, nil
	}
	if rec, ok := repo.find(filter.StudentID, filter.Date); ok {
		return rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	defer repo.rlock()()

	records := make([]attendance.Record, 0)
	for _, rec := range repo.records() {
		if filter.Match(rec) {
			records = append(records, rec)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: true}}
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareRecords(records[i], records[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	defer repo.lock()()

	if existing, ok := repo.find(rec.StudentID, rec.Date); ok {
		existing.Status = rec.Status
		existing.AbsenceReason = rec.AbsenceReason
		existing.MarkedBy = rec.MarkedBy
		existing.UpdatedAt = rec.UpdatedAt
		repo.records()[existing.ID] = existing
		return existing, nil
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	repo.records()[rec.ID] = rec
	return rec, nil
}

func (repo *attendanceRepository) InsertRecordIfAbsent(_ context.Context, rec attendance.Record) (bool, error) {
	defer repo.lock()()

	if _, ok := repo.find(rec.StudentID, rec.Date); ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	repo.records()[rec.ID] = rec
	return true, nil
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, studentID string, date core.Date) (bool, error) {
	defer repo.lock()()

	if rec, ok := repo.find(studentID, date); ok {
		delete(repo.records(), rec.ID)
		return true, nil
	}
	return false, nil
}

func (repo *attendanceRepository) UpdateAbsenceReason(_ context.Context, id, studentID, reason string, updatedAt time.Time) (attendance.Record, error) {
	defer repo.lock()()

	rec, ok := repo.records()[id]
	if !ok || rec.StudentID != studentID || rec.Status != attendance.StatusAbsent {
		return attendance.Record{}, attendance.ErrNotFound
	}
	rec.AbsenceReason = core.StringPtr(reason)
	rec.UpdatedAt = updatedAt
	repo.records()[id] = rec
	return rec, nil
}

// RunAtomic runs fn against a copy of the table and swaps it in only if fn succeeds.
// Other writers wait until fn returns.
func (repo *attendanceRepository) RunAtomic(ctx context.Context, fn func(repo attendance.Repository) error) error {
	if repo.tx != nil {
		return fn(repo)
	}

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	staged := make(map[string]attendance.Record, len(repo.db.table))
	for id, rec := range repo.db.table {
		staged[id] = rec
	}
	if err := fn(&attendanceRepository{db: repo.db, tx: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	repo.db.table = staged
	return nil
}

func compareRecords(a, b attendance.Record, field string) int {
	switch field {
	case "date":
		switch {
		case a.Date.Before(b.Date):
			return -1
		case a.Date.After(b.Date):
			return 1
		}
		return 0
	case "student":
		return strings.Compare(a.StudentID, b.StudentID)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "marked_at":
		return a.MarkedAt.Compare(b.MarkedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}
