package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	"github.com/trezcool/mahudhurio/services/report"
	"github.com/trezcool/mahudhurio/testutil"
)

type fixtures struct {
	*testApp
	teacher, student, other user.User
	teacherToken            string
	studentToken            string
}

func setupAttendance(t *testing.T) *fixtures {
	app := setup(t)
	f := &fixtures{
		testApp: app,
		teacher: testutil.CreateTeacher(t, app.usrRepo, "Teacher", "teacher"),
		student: testutil.CreateStudent(t, app.usrRepo, "Hero", "hero"),
		other:   testutil.CreateStudent(t, app.usrRepo, "Ace", "ace"),
	}
	f.teacherToken = app.getToken(t, f.teacher)
	f.studentToken = app.getToken(t, f.student)
	return f
}

func day(month time.Month, d int) core.Date { return core.Date{Year: 2024, Month: month, Day: d} }

func decode(t *testing.T, data []byte, dst interface{}) {
	require.NoError(t, json.Unmarshal(data, dst), string(data))
}

func Test_roleGates(t *testing.T) {
	f := setupAttendance(t)

	var tests []httpTest
	for _, path := range []string{"/v1/teacher/students", "/v1/teacher/attendance", "/v1/teacher/analytics/class"} {
		tests = append(tests,
			httpTest{name: "no token " + path, path: path, wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
			httpTest{name: "student " + path, path: path, token: f.studentToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		)
	}
	for _, path := range []string{"/v1/student/attendance", "/v1/student/analytics"} {
		tests = append(tests,
			httpTest{name: "no token " + path, path: path, wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
			httpTest{name: "teacher " + path, path: path, token: f.teacherToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		)
	}
	f.run(t, tests)
}

func Test_teacherApi_queryStudents(t *testing.T) {
	f := setupAttendance(t)

	f.run(t, []httpTest{
		{name: "by name", path: "/v1/teacher/students", token: f.teacherToken, wantData: marshalObj(t, []user.User{f.other, f.student})},
		{name: "by -name", path: "/v1/teacher/students?ordering=-name", token: f.teacherToken, wantData: marshalObj(t, []user.User{f.student, f.other})},
		{name: "search", path: "/v1/teacher/students?search=HER", token: f.teacherToken, wantData: marshalObj(t, []user.User{f.student})},
		{name: "teachers excluded", path: "/v1/teacher/students?search=teacher", token: f.teacherToken, wantData: []byte("[]")},
	})
}

func Test_teacherApi_bulkMark(t *testing.T) {
	f := setupAttendance(t)

	body := func(studentID, month string, status attendance.Status, overwrite bool) []byte {
		return marshalObj(t, attendance.BulkMark{StudentID: studentID, Month: month, Status: status, Overwrite: overwrite})
	}
	path := "/v1/teacher/attendance/bulk"

	f.run(t, []httpTest{
		{
			name: "past month", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body(f.student.ID, "2024-02", attendance.StatusPresent, false), wantData: []byte(`{"days_marked": 29}`),
		},
		{
			name: "no overwrite", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body(f.student.ID, "2024-02", attendance.StatusAbsent, false), wantData: []byte(`{"days_marked": 0}`),
		},
		{
			name: "overwrite", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body(f.student.ID, "2024-02", "absent", true), wantData: []byte(`{"days_marked": 29}`),
		},
		{
			name: "current month", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body(f.student.ID, "2024-03", attendance.StatusPresent, false), wantData: []byte(`{"days_marked": 15}`),
		},
		{
			name: "future month", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body(f.student.ID, "2024-04", attendance.StatusPresent, false),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: attendance.ErrFutureMonth.Error()}),
		},
		{
			name: "malformed month", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body(f.student.ID, "2024-13", attendance.StatusPresent, false),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"month": "month must be formatted as YYYY-MM"}`),
		},
		{
			name: "invalid status", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body(f.student.ID, "2024-02", "LATE", false),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status": "status must be one of PRESENT or ABSENT"}`),
		},
		{
			name: "missing student", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body("", "2024-02", attendance.StatusPresent, false),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"student_id": "this field is required"}`),
		},
		{
			name: "unknown student", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body("lol", "2024-02", attendance.StatusPresent, false),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: attendance.ErrStudentNotFound.Error()}),
		},
		{
			name: "teacher is not a student", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body(f.teacher.ID, "2024-02", attendance.StatusPresent, false),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: attendance.ErrStudentNotFound.Error()}),
		},
	})

	records, err := f.attRepo.QueryRecords(context.Background(), &attendance.QueryFilter{StudentID: f.student.ID}, nil)
	require.NoError(t, err)
	require.Len(t, records, 29+15)
	for _, rec := range records {
		assert.Equal(t, f.teacher.ID, *rec.MarkedBy)
	}
}

func Test_teacherApi_markDay(t *testing.T) {
	f := setupAttendance(t)
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.March, 14), attendance.StatusAbsent, core.StringPtr("flu"))
	path := "/v1/teacher/attendance/mark"

	body := func(date string, entries ...string) []byte {
		var records []map[string]string
		for i := 0; i+1 < len(entries); i += 2 {
			records = append(records, map[string]string{"student_id": entries[i], "status": entries[i+1]})
		}
		return marshalObj(t, map[string]interface{}{"date": date, "records": records})
	}

	t.Run("marks the day", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, f.teacherToken,
			body("2024-03-14", f.student.ID, "ABSENT", f.other.ID, "present"))
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var records []attendance.Record
		decode(t, rec.Body.Bytes(), &records)
		require.Len(t, records, 2)
		assert.Equal(t, "flu", *records[0].AbsenceReason)
		assert.Equal(t, attendance.StatusPresent, records[1].Status)
		assert.Equal(t, f.teacher.ID, *records[1].MarkedBy)
	})

	f.run(t, []httpTest{
		{
			name: "future date", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body("2024-03-16", f.student.ID, "PRESENT"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: attendance.ErrFutureDate.Error()}),
		},
		{
			name: "missing date", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body("", f.student.ID, "PRESENT"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"date": "this field is required"}`),
		},
		{
			name: "malformed date", method: http.MethodPost, path: path, token: f.teacherToken,
			body: body("14/03/2024", f.student.ID, "PRESENT"), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown student", method: http.MethodPost, path: path, token: f.teacherToken,
			body:     body("2024-03-14", "lol", "PRESENT"),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: attendance.ErrStudentNotFound.Error()}),
		},
	})
}

func Test_teacherApi_recordsForDate(t *testing.T) {
	f := setupAttendance(t)
	onDay := testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.March, 1), attendance.StatusPresent, nil)
	today := testutil.CreateRecord(t, f.attRepo, f.other.ID, day(time.March, 15), attendance.StatusAbsent, nil)

	f.run(t, []httpTest{
		{name: "by date", path: "/v1/teacher/attendance?date=2024-03-01", token: f.teacherToken, wantData: marshalObj(t, []attendance.Record{onDay})},
		{name: "today by default", path: "/v1/teacher/attendance", token: f.teacherToken, wantData: marshalObj(t, []attendance.Record{today})},
		{name: "no records", path: "/v1/teacher/attendance?date=2024-01-01", token: f.teacherToken, wantData: []byte("[]")},
		{
			name: "malformed date", path: "/v1/teacher/attendance?date=lol", token: f.teacherToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"date": "date must be formatted as YYYY-MM-DD"}`),
		},
	})
}

func Test_teacherApi_analytics(t *testing.T) {
	f := setupAttendance(t)
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 1), attendance.StatusPresent, nil)
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 2), attendance.StatusAbsent, core.StringPtr("flu"))
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 5), attendance.StatusPresent, nil)
	testutil.CreateRecord(t, f.attRepo, f.other.ID, day(time.February, 1), attendance.StatusPresent, nil)
	testutil.CreateRecord(t, f.attRepo, f.other.ID, day(time.March, 1), attendance.StatusAbsent, nil)

	t.Run("class", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teacher/analytics/class?month=2024-02", f.teacherToken)
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var summary attendance.ClassSummary
		decode(t, rec.Body.Bytes(), &summary)
		assert.Equal(t, "2024-02", summary.Month)
		assert.Equal(t, attendance.Overview{TotalRecords: 4, Present: 3, Absent: 1, AttendanceRate: 75}, summary.Overview)
		assert.Len(t, summary.Daily, 3)
	})

	t.Run("student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teacher/analytics/student?month=2024-02&student_id="+f.student.ID, f.teacherToken)
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var summary attendance.StudentSummary
		decode(t, rec.Body.Bytes(), &summary)
		assert.Equal(t, attendance.StudentStats{Total: 3, Present: 2, Absent: 1, Rate: 66.7}, summary.Stats)
		require.Len(t, summary.AbsenceHistory, 1)
		assert.Equal(t, "flu", *summary.AbsenceHistory[0].AbsenceReason)
	})

	f.run(t, []httpTest{
		{
			name: "current month by default", path: "/v1/teacher/analytics/class", token: f.teacherToken,
			wantData: []byte(`{
				"month": "2024-03",
				"overview": {"total_records": 1, "present": 0, "absent": 1, "attendance_rate": 0},
				"daily": [{"date": "2024-03-01", "present": 0, "absent": 1, "total": 1, "rate": 0}]
			}`),
		},
		{
			name: "empty month", path: "/v1/teacher/analytics/class?month=2023-07", token: f.teacherToken,
			wantData: []byte(`{
				"month": "2023-07",
				"overview": {"total_records": 0, "present": 0, "absent": 0, "attendance_rate": 0},
				"daily": []
			}`),
		},
		{
			name: "malformed month", path: "/v1/teacher/analytics/class?month=2024-1-1", token: f.teacherToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: attendance.ErrInvalidMonthFormat.Error()}),
		},
		{
			name: "student required", path: "/v1/teacher/analytics/student?month=2024-02", token: f.teacherToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"student_id": "this field is required"}`),
		},
		{
			name: "unknown student", path: "/v1/teacher/analytics/student?student_id=lol", token: f.teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: attendance.ErrStudentNotFound.Error()}),
		},
	})
}

func Test_teacherApi_exportRegister(t *testing.T) {
	f := setupAttendance(t)
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 1), attendance.StatusPresent, nil)
	testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 2), attendance.StatusAbsent, nil)

	req, rec := newAuthRequest(http.MethodGet, "/v1/teacher/attendance/export?month=2024-02", f.teacherToken)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reportsvc.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="attendance-2024-02.xlsx"`, rec.Header().Get("Content-Disposition"))

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("2024-02")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header + 2 students")
	assert.Equal(t, "Ace", rows[1][0])
	assert.Equal(t, []string{"Hero", "hero", "P", "A"}, rows[2][:4])

	req, rec = newAuthRequest(http.MethodGet, "/v1/teacher/attendance/export?month=lol", f.teacherToken)
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_studentApi(t *testing.T) {
	f := setupAttendance(t)
	absent := testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.February, 2), attendance.StatusAbsent, nil)
	present := testutil.CreateRecord(t, f.attRepo, f.student.ID, day(time.March, 1), attendance.StatusPresent, nil)
	others := testutil.CreateRecord(t, f.attRepo, f.other.ID, day(time.February, 2), attendance.StatusAbsent, nil)

	reasonPath := func(id string) string { return fmt.Sprintf("/v1/student/attendance/%s/reason", id) }
	reason := func(r string) []byte { return marshalObj(t, attendance.AbsenceReasonUpdate{AbsenceReason: r}) }

	f.run(t, []httpTest{
		{name: "own records, newest first", path: "/v1/student/attendance", token: f.studentToken, wantData: marshalObj(t, []attendance.Record{present, absent})},
		{name: "own records of a month", path: "/v1/student/attendance?month=2024-02", token: f.studentToken, wantData: marshalObj(t, []attendance.Record{absent})},
		{
			name: "own records, malformed month", path: "/v1/student/attendance?month=02-2024", token: f.studentToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: attendance.ErrInvalidMonthFormat.Error()}),
		},
		{
			name: "reason on present record", method: http.MethodPut, path: reasonPath(present.ID), token: f.studentToken, body: reason("lol"),
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: attendance.ErrInvalidState.Error()}),
		},
		{
			name: "reason on someone else's record", method: http.MethodPut, path: reasonPath(others.ID), token: f.studentToken, body: reason("lol"),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: attendance.ErrNotFound.Error()}),
		},
	})

	t.Run("set reason", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, reasonPath(absent.ID), f.studentToken, reason("dentist"))
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got attendance.Record
		decode(t, rec.Body.Bytes(), &got)
		assert.Equal(t, absent.ID, got.ID)
		assert.Equal(t, "dentist", *got.AbsenceReason)
	})

	t.Run("own summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/student/analytics?month=2024-02", f.studentToken)
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var summary attendance.StudentSummary
		decode(t, rec.Body.Bytes(), &summary)
		assert.Equal(t, f.student.ID, summary.StudentID)
		assert.Equal(t, attendance.StudentStats{Total: 1, Absent: 1}, summary.Stats)
		require.Len(t, summary.AbsenceHistory, 1)
		assert.Equal(t, "dentist", *summary.AbsenceHistory[0].AbsenceReason)
	})
}
