package attendance

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

var Statuses = []Status{StatusPresent, StatusAbsent}

func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

func cleanStatus(s Status) Status {
	return Status(strings.ToUpper(core.CleanString(string(s))))
}

// Record is the attendance of one student on one date. There is at most one Record per (student, date).
type Record struct {
	ID            string    `json:"id"`
	Date          core.Date `json:"date"`
	StudentID     string    `json:"student"`
	Status        Status    `json:"status"`
	AbsenceReason *string   `json:"absence_reason"`
	MarkedBy      *string   `json:"marked_by"`
	MarkedAt      time.Time `json:"marked_at"`  // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// Teacher is an actor already authorized to write attendance.
type Teacher struct {
	ID string
}

// Student is an actor already authorized to read and annotate their own attendance.
type Student struct {
	ID string
}

// BulkMark marks every day of a month for one student.
type BulkMark struct {
	StudentID string `json:"student_id" validate:"required"`
	Month     string `json:"month" validate:"required,monthkey"`
	Status    Status `json:"status" validate:"required,attstatus"`
	Overwrite bool   `json:"overwrite"`
}

func (bm *BulkMark) Validate(validate *validator.Validate) error {
	bm.StudentID = core.CleanString(bm.StudentID)
	bm.Month = core.CleanString(bm.Month)
	bm.Status = cleanStatus(bm.Status)
	return validate.Struct(bm)
}

// DayMark marks a set of students on one date.
type DayMark struct {
	Date    core.Date  `json:"date" validate:"required"`
	Records []DayEntry `json:"records" validate:"dive"`
}

type DayEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,attstatus"`
}

func (dm *DayMark) Validate(validate *validator.Validate) error {
	for i := range dm.Records {
		dm.Records[i].StudentID = core.CleanString(dm.Records[i].StudentID)
		dm.Records[i].Status = cleanStatus(dm.Records[i].Status)
	}
	return validate.Struct(dm)
}

type AbsenceReasonUpdate struct {
	AbsenceReason string `json:"absence_reason"`
}

type GetFilter struct {
	ID        string
	StudentID string
	Date      core.Date
}

// QueryFilter selects records; zero fields are ignored.
type QueryFilter struct {
	Date      *core.Date
	Month     *Month
	StudentID string
	Status    Status
}

func (qf *QueryFilter) Match(rec Record) bool {
	if qf == nil {
		return true
	}
	if qf.Date != nil && rec.Date != *qf.Date {
		return false
	}
	if qf.Month != nil && !qf.Month.Contains(rec.Date) {
		return false
	}
	if qf.StudentID != "" && rec.StudentID != qf.StudentID {
		return false
	}
	if qf.Status != "" && rec.Status != qf.Status {
		return false
	}
	return true
}

// OrderingColumns maps orderable api fields to their columns.
var OrderingColumns = map[string]string{
	"date":       "date",
	"student":    "student_id",
	"status":     "status",
	"marked_at":  "marked_at",
	"updated_at": "updated_at",
}

var (
	byDateAsc  = []core.DBOrdering{{Field: "date", Ascending: true}, {Field: "student", Ascending: true}}
	byDateDesc = []core.DBOrdering{{Field: "date"}}
)
