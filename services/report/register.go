// Package reportsvc renders attendance registers as spreadsheets.
package reportsvc

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/mahudhurio/core/attendance"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var marks = map[attendance.Status]string{
	attendance.StatusPresent: "P",
	attendance.StatusAbsent:  "A",
}

// RegisterFilename is the download name of the register of `month`.
func RegisterFilename(month attendance.Month) string {
	return fmt.Sprintf("attendance-%s.xlsx", month)
}

// WriteRegister writes `reg` as an xlsx workbook with one row per student and one column per date.
func WriteRegister(w io.Writer, reg attendance.Register) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = errors.Wrap(cErr, "closing workbook")
		}
	}()

	sheet := reg.Month.String()
	if err = f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	header := []interface{}{"Student", "Username"}
	for _, date := range reg.Dates {
		header = append(header, fmt.Sprintf("%02d", date.Day))
	}
	header = append(header, "Present", "Absent", "Rate (%)")
	if err = f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for i, row := range reg.Rows {
		values := []interface{}{row.Student.Name, row.Student.Username}
		for _, status := range row.Marks {
			values = append(values, marks[status])
		}
		values = append(values, row.Stats.Present, row.Stats.Absent, row.Stats.Rate)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "locating row")
		}
		if err = f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrapf(err, "writing row of %s", row.Student.ID)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return errors.Wrap(err, "locating last column")
	}
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	if err = f.SetColWidth(sheet, "A", "B", 24); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
