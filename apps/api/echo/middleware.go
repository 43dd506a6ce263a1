package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

const (
	teacherCapabilityKey = "teacher"
	studentCapabilityKey = "student"
)

// roleMiddleware lets through active users holding `role`, as currently stored.
func roleMiddleware(svc *user.Service, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.Role != role {
				return errHttpForbidden
			}

			switch role {
			case user.RoleTeacher:
				ctx.Set(teacherCapabilityKey, attendance.Teacher{ID: usr.ID})
			case user.RoleStudent:
				ctx.Set(studentCapabilityKey, attendance.Student{ID: usr.ID})
			}
			return next(ctx)
		}
	}
}

func teacherMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.RoleTeacher)
}

func studentMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.RoleStudent)
}

func contextTeacher(ctx echo.Context) (attendance.Teacher, error) {
	if teacher, ok := ctx.Get(teacherCapabilityKey).(attendance.Teacher); ok {
		return teacher, nil
	}
	return attendance.Teacher{}, errHttpForbidden
}

func contextStudent(ctx echo.Context) (attendance.Student, error) {
	if student, ok := ctx.Get(studentCapabilityKey).(attendance.Student); ok {
		return student, nil
	}
	return attendance.Student{}, errHttpForbidden
}
