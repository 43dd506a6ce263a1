package reportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

func TestWriteRegister(t *testing.T) {
	month := attendance.Month{Year: 2024, Month: time.February}
	reg := attendance.Register{
		Month: month,
		Dates: []core.Date{{Year: 2024, Month: time.February, Day: 1}, {Year: 2024, Month: time.February, Day: 2}},
		Rows: []attendance.RegisterRow{
			{
				Student: user.User{ID: "s1", Name: "Hero", Username: "hero"},
				Marks:   []attendance.Status{attendance.StatusPresent, attendance.StatusAbsent},
				Stats:   attendance.StudentStats{Total: 2, Present: 1, Absent: 1, Rate: 50},
			},
			{
				Student: user.User{ID: "s2", Name: "N Dog", Username: "ndog"},
				Marks:   []attendance.Status{"", attendance.StatusPresent},
				Stats:   attendance.StudentStats{Total: 1, Present: 1, Rate: 100},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRegister(&buf, reg))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"2024-02"}, f.GetSheetList())
	rows, err := f.GetRows("2024-02")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Student", "Username", "01", "02", "Present", "Absent", "Rate (%)"}, rows[0])
	assert.Equal(t, []string{"Hero", "hero", "P", "A", "1", "1", "50"}, rows[1])
	assert.Equal(t, []string{"N Dog", "ndog", "", "P", "1", "0", "100"}, rows[2])
	assert.Equal(t, "attendance-2024-02.xlsx", RegisterFilename(month))
}
