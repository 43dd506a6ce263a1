package attendance

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

// Register is the month grid of every student's attendance, as exported to spreadsheets.
type Register struct {
	Month Month
	Dates []core.Date
	Rows  []RegisterRow
}

type RegisterRow struct {
	Student user.User
	Marks   []Status // aligned with Register.Dates; "" when unmarked
	Stats   StudentStats
}

// Register builds the register of `month` as of today.
func (svc *Service) Register(ctx context.Context, month string) (Register, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return Register{}, err
	}

	students, err := svc.students.QueryStudents(ctx, "")
	if err != nil {
		return Register{}, core.NewStorageError("querying students", err)
	}
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{Month: &m}, byDateAsc)
	if err != nil {
		return Register{}, storageErr("querying records", err)
	}

	marks := make(map[string]map[core.Date]Status, len(students))
	for _, rec := range records {
		if marks[rec.StudentID] == nil {
			marks[rec.StudentID] = make(map[core.Date]Status)
		}
		marks[rec.StudentID][rec.Date] = rec.Status
	}

	reg := Register{Month: m, Dates: m.Dates(Today()), Rows: make([]RegisterRow, 0, len(students))}
	for _, std := range students {
		row := RegisterRow{Student: std, Marks: make([]Status, len(reg.Dates))}
		for i, date := range reg.Dates {
			row.Marks[i] = marks[std.ID][date]
		}
		row.Stats = SummarizeStudent(std.ID, m, records).Stats
		reg.Rows = append(reg.Rows, row)
	}
	return reg, nil
}
