package main

import (
	"context"
	"fmt"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

// bulkMark marks a whole month for the student named by bm.StudentID (a username or email).
func (cli *commandLine) bulkMark(teacherName string, bm attendance.BulkMark) error {
	ctx := context.Background()

	student, err := cli.usrSvc.GetByUsernameOrEmail(ctx, bm.StudentID)
	if err != nil {
		if err == user.ErrNotFound {
			return attendance.ErrStudentNotFound
		}
		return err
	}
	bm.StudentID = student.ID

	var teacher attendance.Teacher
	if teacherName != "" {
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, teacherName)
		if err != nil {
			return err
		}
		if !usr.IsTeacher() {
			return user.ErrNotFound
		}
		teacher.ID = usr.ID
	}

	if err = bm.Validate(cli.validate); err != nil {
		return err
	}
	n, err := cli.attSvc.BulkMark(ctx, teacher, bm)
	if err != nil {
		return err
	}
	fmt.Printf("marked %d day(s) of %s as %s for %q\n", n, bm.Month, bm.Status, student.Username)
	return nil
}
