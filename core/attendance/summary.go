package attendance

import (
	"math"
	"sort"

	"github.com/trezcool/mahudhurio/core"
)

type (
	Overview struct {
		TotalRecords   int     `json:"total_records"`
		Present        int     `json:"present"`
		Absent         int     `json:"absent"`
		AttendanceRate float64 `json:"attendance_rate"`
	}

	DailyStat struct {
		Date    core.Date `json:"date"`
		Present int       `json:"present"`
		Absent  int       `json:"absent"`
		Total   int       `json:"total"`
		Rate    float64   `json:"rate"`
	}

	ClassSummary struct {
		Month    string      `json:"month"`
		Overview Overview    `json:"overview"`
		Daily    []DailyStat `json:"daily"`
	}

	StudentStats struct {
		Total   int     `json:"total"`
		Present int     `json:"present"`
		Absent  int     `json:"absent"`
		Rate    float64 `json:"rate"`
	}

	AbsenceEntry struct {
		ID            string    `json:"id"`
		Date          core.Date `json:"date"`
		AbsenceReason *string   `json:"absence_reason"`
	}

	StudentSummary struct {
		StudentID      string         `json:"student_id"`
		Month          string         `json:"month"`
		Stats          StudentStats   `json:"stats"`
		AbsenceHistory []AbsenceEntry `json:"absence_history"`
	}
)

// Rate is present/total as a percentage rounded to one decimal place; 0 when total is 0.
func Rate(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(present)*1000/float64(total)) / 10
}

// SummarizeClass aggregates the records of `month`, all students included.
// Records outside the month are ignored. Dates without records get no daily entry.
func SummarizeClass(month Month, records []Record) ClassSummary {
	summary := ClassSummary{Month: month.String(), Daily: []DailyStat{}}
	days := make(map[core.Date]*DailyStat)

	for _, rec := range records {
		if !month.Contains(rec.Date) {
			continue
		}
		day, ok := days[rec.Date]
		if !ok {
			day = &DailyStat{Date: rec.Date}
			days[rec.Date] = day
		}

		summary.Overview.TotalRecords++
		day.Total++
		switch rec.Status {
		case StatusPresent:
			summary.Overview.Present++
			day.Present++
		case StatusAbsent:
			summary.Overview.Absent++
			day.Absent++
		}
	}
	summary.Overview.AttendanceRate = Rate(summary.Overview.Present, summary.Overview.TotalRecords)

	for _, day := range days {
		day.Rate = Rate(day.Present, day.Total)
		summary.Daily = append(summary.Daily, *day)
	}
	sort.Slice(summary.Daily, func(i, j int) bool { return summary.Daily[i].Date.Before(summary.Daily[j].Date) })
	return summary
}

// SummarizeStudent aggregates the records of one student for `month`.
func SummarizeStudent(studentID string, month Month, records []Record) StudentSummary {
	summary := StudentSummary{
		StudentID:      studentID,
		Month:          month.String(),
		AbsenceHistory: []AbsenceEntry{},
	}

	own := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.StudentID == studentID && month.Contains(rec.Date) {
			own = append(own, rec)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].Date.Before(own[j].Date) })

	for _, rec := range own {
		summary.Stats.Total++
		switch rec.Status {
		case StatusPresent:
			summary.Stats.Present++
		case StatusAbsent:
			summary.Stats.Absent++
			summary.AbsenceHistory = append(summary.AbsenceHistory, AbsenceEntry{
				ID:            rec.ID,
				Date:          rec.Date,
				AbsenceReason: rec.AbsenceReason,
			})
		}
	}
	summary.Stats.Rate = Rate(summary.Stats.Present, summary.Stats.Total)
	return summary
}
